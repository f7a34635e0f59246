// Package vectorstore defines the vector-store contract C8 and C12
// depend on (spec §6) and two implementations: a Qdrant-backed store
// for production use, and an in-memory fake for tests.
//
// Grounded on _examples/fredcamaral-mcp-alfarrabio/internal/storage/
// qdrant.go's connection/collection idiom; the named dense+sparse
// vector and payload-index pieces that file never exercises are
// grounded directly on the github.com/qdrant/go-client public API
// (see DESIGN.md).
package vectorstore

import "context"

// SparseVector is a BM25-style sparse vector: parallel index/value
// slices, one entry per nonzero dimension.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Point is one record to upsert: a u64 id, its named dense and
// (optionally) sparse vectors, and a free-form payload.
type Point struct {
	ID      uint64
	Dense   []float32
	Sparse  *SparseVector
	Payload map[string]any
}

// Condition is a single equality filter term.
type Condition struct {
	Key   string
	Match any
}

// Filter is an AND of equality conditions. A zero-value Filter matches
// every record.
type Filter struct {
	Must []Condition
}

// MatchFilePath builds the common "payload.metadata.file_path == path" filter.
func MatchFilePath(path string) Filter {
	return Filter{Must: []Condition{{Key: "metadata.file_path", Match: path}}}
}

// MatchContentHash builds the "payload.content_hash == hash" filter.
func MatchContentHash(hash string) Filter {
	return Filter{Must: []Condition{{Key: "content_hash", Match: hash}}}
}

// Record is what scroll/count read back: id, payload, and (if
// requested) the dense vector.
type Record struct {
	ID      uint64
	Payload map[string]any
	Dense   []float32
}

// Store is the vector-store contract spec §6 names. Every method takes
// the collection name explicitly; implementations must not cache it.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection provisions name with a named dense vector of
	// denseDim dimensions (cosine distance), an optional named sparse
	// vector ("bm25"), and payload indices on payloadIndices. Must be
	// idempotent: calling it again with the same schema is a no-op.
	CreateCollection(ctx context.Context, name string, denseDim uint64, withSparse bool, payloadIndices []string) error

	UpsertPoints(ctx context.Context, collection string, points []Point) error
	DeletePoints(ctx context.Context, collection string, ids []uint64) error

	// Scroll pages through records matching filter. limit of 0 means
	// "implementation default"; callers that need every record must
	// keep calling with the returned offset until it comes back empty.
	Scroll(ctx context.Context, collection string, filter Filter, withPayload, withVectors bool, limit uint32, offset uint64) (records []Record, nextOffset uint64, hasMore bool, err error)

	Count(ctx context.Context, collection string, filter Filter) (uint64, error)

	// CheckContentExists implements the contract's note: "implementable
	// via a single filtered count".
	CheckContentExists(ctx context.Context, collection string, contentHash string) (bool, error)

	// FindEntitiesForFileByType returns, for each requested chunk_type,
	// the matching records for filePath.
	FindEntitiesForFileByType(ctx context.Context, collection string, filePath string, chunkTypes []string) (map[string][]Record, error)
}

// DenseVectorName and SparseVectorName are the fixed named-vector keys
// spec §4.12 requires every collection to carry.
const (
	DenseVectorName  = "dense"
	SparseVectorName = "bm25"
)

// StandardPayloadIndices is the payload-index set spec §4.12 names.
var StandardPayloadIndices = []string{
	"entity_name", "entity_type", "chunk_type",
	"metadata.file_path", "content_hash", "relation_type",
}
