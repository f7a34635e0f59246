package entity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/rlefko/codeindexer/internal/contenthash"
)

// ChunkType is the kind of record actually embedded and stored.
type ChunkType string

const (
	// ChunkMetadata is a short descriptor of an entity, emitted for
	// every entity.
	ChunkMetadata ChunkType = "metadata"
	// ChunkImplementation carries the full source body for entities
	// whose type is function/class/method.
	ChunkImplementation ChunkType = "implementation"
	// ChunkRelation carries a single relation as one store record.
	ChunkRelation ChunkType = "relation"
)

// EntityChunk is the unit actually embedded: either a metadata
// descriptor or an implementation body for one Entity.
type EntityChunk struct {
	id               string
	entityName       string
	entityType       Type
	chunkType        ChunkType
	content          string
	contentBM25      string
	contentHash      string
	filePath         string
	lineNumber       int
	endLineNumber    int
	hasImplementation bool
	metadata         map[string]any
}

// ID returns the chunk's deterministic string key (hashed to a u64 at
// store-write time).
func (c EntityChunk) ID() string { return c.id }

// EntityName returns the owning entity's name.
func (c EntityChunk) EntityName() string { return c.entityName }

// EntityType returns the owning entity's type.
func (c EntityChunk) EntityType() Type { return c.entityType }

// ChunkType returns metadata or implementation.
func (c EntityChunk) ChunkType() ChunkType { return c.chunkType }

// Content returns the text that gets dense-embedded.
func (c EntityChunk) Content() string { return c.content }

// ContentBM25 returns the text used to build the chunk's sparse
// (BM25) vector. Populated at construction time for metadata chunks —
// see SPEC_FULL.md's resolution of the "missing content_bm25" open
// question. Implementation chunks get no sparse vector and leave it empty.
func (c EntityChunk) ContentBM25() string { return c.contentBM25 }

// ContentHash is the sole dedup signal (§4.1): lowercase-hex SHA-256
// of Content, computed over the exact embedded string.
func (c EntityChunk) ContentHash() string { return c.contentHash }

// FilePath returns the owning entity's source file.
func (c EntityChunk) FilePath() string { return c.filePath }

// LineNumber returns the owning entity's start line.
func (c EntityChunk) LineNumber() int { return c.lineNumber }

// EndLineNumber returns the owning entity's end line.
func (c EntityChunk) EndLineNumber() int { return c.endLineNumber }

// HasImplementation reports whether a sibling implementation chunk
// exists for this entity (forced false for variable/import/constant
// per §4.7 Phase A).
func (c EntityChunk) HasImplementation() bool { return c.hasImplementation }

// Metadata returns the chunk's free-form metadata map (never nil).
func (c EntityChunk) Metadata() map[string]any { return c.metadata }

// hashContent delegates to the canonical C1 content-hash utility.
func hashContent(s string) string {
	return contenthash.Hash(s)
}

// weightedObservationContent implements create_metadata_chunk's
// weighting scheme: signature x3, docstring x2, then each observation
// weighted by its keyword prefix, joined with " | ".
func weightedObservationContent(e Entity) string {
	var parts []string

	if e.signature != "" {
		for i := 0; i < 3; i++ {
			parts = append(parts, e.signature)
		}
	}
	if e.docstring != "" {
		for i := 0; i < 2; i++ {
			parts = append(parts, e.docstring)
		}
	}

	for _, obs := range e.observations {
		weight := observationWeight(obs)
		for i := 0; i < weight; i++ {
			parts = append(parts, obs)
		}
	}

	return strings.Join(parts, " | ")
}

func observationWeight(obs string) int {
	lower := strings.ToLower(obs)
	for _, prefix := range []string{"class:", "function:", "method:", "interface:", "signature:"} {
		if strings.HasPrefix(lower, prefix) {
			return 3
		}
	}
	for _, prefix := range []string{"purpose:", "responsibility:", "description:"} {
		if strings.HasPrefix(lower, prefix) {
			return 2
		}
	}
	return 1
}

var camelSplit = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// bm25Content implements _format_bm25_content: name x2, a camelCase-
// split variant, the first non-boilerplate observation, entity type,
// file basename, and up to four key method names.
func bm25Content(e Entity) string {
	var parts []string

	parts = append(parts, e.name, e.name)

	split := camelSplit.ReplaceAllString(e.name, "$1 $2")
	if split != e.name {
		parts = append(parts, split)
	}

	if primary := primaryObservation(e.observations); primary != "" {
		parts = append(parts, primary)
	}

	parts = append(parts, string(e.entityType))

	if e.filePath != "" {
		parts = append(parts, baseName(e.filePath))
	}

	parts = append(parts, keyMethodNames(e.observations)...)

	return strings.Join(parts, " ")
}

var technicalPrefixes = []string{
	"found at line", "extracted via", "signature unavailable",
	"file has syntax errors", "fallback parsing", "file size:", "lines:",
}

// primaryObservation returns the first observation that isn't one of
// the fallback-parser's technical/boilerplate notes.
func primaryObservation(observations []string) string {
	for _, obs := range observations {
		lower := strings.ToLower(obs)
		skip := false
		for _, prefix := range technicalPrefixes {
			if strings.HasPrefix(lower, prefix) {
				skip = true
				break
			}
		}
		if !skip {
			return obs
		}
	}
	return ""
}

// keyMethodNames pulls up to four names out of an observation like
// "Key methods: Foo, Bar, Baz" or "methods: Foo, Bar".
func keyMethodNames(observations []string) []string {
	for _, obs := range observations {
		lower := strings.ToLower(obs)
		var rest string
		switch {
		case strings.HasPrefix(lower, "key methods:"):
			rest = obs[len("Key methods:"):]
		case strings.HasPrefix(lower, "methods:"):
			rest = obs[len("methods:"):]
		default:
			continue
		}
		names := strings.Split(rest, ",")
		var out []string
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			out = append(out, n)
			if len(out) == 4 {
				break
			}
		}
		return out
	}
	return nil
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

// NewMetadataChunk builds the metadata EntityChunk for e, per §3/§4.7
// Phase A. hasImplementation is forced false for variable/import/
// constant entities regardless of the caller's value.
func NewMetadataChunk(e Entity, hasImplementation bool) EntityChunk {
	if e.entityType == TypeVariable || e.entityType == TypeImport || e.entityType == TypeConstant {
		hasImplementation = false
	}

	content := weightedObservationContent(e)
	id := metadataChunkID(e)

	return EntityChunk{
		id:                id,
		entityName:        e.name,
		entityType:        e.entityType,
		chunkType:         ChunkMetadata,
		content:           content,
		contentBM25:       bm25Content(e),
		contentHash:       hashContent(content),
		filePath:          e.filePath,
		lineNumber:        e.lineNumber,
		endLineNumber:     e.endLineNumber,
		hasImplementation: hasImplementation,
		metadata:          copyMetadata(e.metadata),
	}
}

// NewImplementationChunk builds the implementation EntityChunk for e
// given its captured source body. Only valid for function/class/method
// entities; callers must not call this for variable/import/constant.
func NewImplementationChunk(e Entity, body string) EntityChunk {
	id := fmt.Sprintf("%s::%s::%s::implementation", e.filePath, e.entityType, e.name)
	return EntityChunk{
		id:            id,
		entityName:    e.name,
		entityType:    e.entityType,
		chunkType:     ChunkImplementation,
		content:       body,
		contentHash:   hashContent(body),
		filePath:      e.filePath,
		lineNumber:    e.lineNumber,
		endLineNumber: e.endLineNumber,
		metadata:      copyMetadata(e.metadata),
	}
}

// metadataChunkID implements the collision-resistant ID formula from
// analysis/entities.py: base_id + a 16-hex hash mixing the line range
// and an md5 of the observations list.
func metadataChunkID(e Entity) string {
	baseID := fmt.Sprintf("%s::%s::%s::metadata", e.filePath, e.entityType, e.name)

	obsJoined := strings.Join(e.observations, "")
	obsSum := md5.Sum([]byte(obsJoined))
	obsHash := hex.EncodeToString(obsSum[:])

	mixed := fmt.Sprintf("%s|%d|%d|%s", baseID, e.lineNumber, e.endLineNumber, obsHash)
	uniqueSum := sha256.Sum256([]byte(mixed))
	uniqueHash := hex.EncodeToString(uniqueSum[:])[:16]

	return baseID + "::" + uniqueHash
}

func copyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// RelationChunk carries a single Relation as one store record.
type RelationChunk struct {
	id           string
	fromEntity   string
	toEntity     string
	relationType RelationType
	content      string
	contentBM25  string
	contentHash  string
	context      string
	metadata     map[string]any
}

// ID returns the chunk's deterministic string key.
func (c RelationChunk) ID() string { return c.id }

// FromEntity returns the source entity's name.
func (c RelationChunk) FromEntity() string { return c.fromEntity }

// ToEntity returns the target entity's name.
func (c RelationChunk) ToEntity() string { return c.toEntity }

// RelationType returns the edge's kind.
func (c RelationChunk) RelationType() RelationType { return c.relationType }

// Content returns the natural-language form of the edge.
func (c RelationChunk) Content() string { return c.content }

// ContentBM25 returns the sparse-vector source text (same as Content
// for relation chunks).
func (c RelationChunk) ContentBM25() string { return c.contentBM25 }

// ContentHash is the dedup signal for this chunk.
func (c RelationChunk) ContentHash() string { return c.contentHash }

// Context returns the relation's optional free-text context.
func (c RelationChunk) Context() string { return c.context }

// Metadata returns the chunk's free-form metadata map (never nil).
func (c RelationChunk) Metadata() map[string]any { return c.metadata }

// NewRelationChunk builds a RelationChunk from r, implementing the ID
// and content formulas from RelationChunk.from_relation.
func NewRelationChunk(r Relation) RelationChunk {
	content := fmt.Sprintf("%s %s %s", r.fromEntity, r.relationType, r.toEntity)
	if r.context != "" {
		content = fmt.Sprintf("%s (%s)", content, r.context)
	}

	importType, _ := r.metadata["import_type"].(string)

	id := fmt.Sprintf("%s::%s::%s", r.fromEntity, r.relationType, r.toEntity)
	if importType == "" && r.context == "" {
		seed := fmt.Sprintf("%s%s%s%v", r.fromEntity, r.relationType, r.toEntity, r.metadata)
		sum := md5.Sum([]byte(seed))
		id = fmt.Sprintf("%s::%s", id, hex.EncodeToString(sum[:])[:8])
	} else {
		if importType != "" {
			id = fmt.Sprintf("%s::%s", id, importType)
		}
		if r.context != "" {
			id = fmt.Sprintf("%s::%s", id, r.context)
		}
	}

	return RelationChunk{
		id:           id,
		fromEntity:   r.fromEntity,
		toEntity:     r.toEntity,
		relationType: r.relationType,
		content:      content,
		contentBM25:  content,
		contentHash:  hashContent(content),
		context:      r.context,
		metadata:     copyMetadata(r.metadata),
	}
}
