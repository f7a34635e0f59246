package process

import (
	"github.com/rlefko/codeindexer/internal/entity"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// entityChunkPayload builds the payload stored alongside an
// EntityChunk's point, matching the filter keys §4.12's payload
// indices name (entity_name, entity_type, chunk_type,
// metadata.file_path, content_hash).
func entityChunkPayload(c entity.EntityChunk) map[string]any {
	return map[string]any{
		"entity_name":  c.EntityName(),
		"entity_type":  string(c.EntityType()),
		"chunk_type":   string(c.ChunkType()),
		"content_hash": c.ContentHash(),
		"metadata": map[string]any{
			"file_path":          c.FilePath(),
			"line_number":        c.LineNumber(),
			"end_line_number":    c.EndLineNumber(),
			"has_implementation": c.HasImplementation(),
		},
	}
}

// relationChunkPayload builds the payload for a RelationChunk's point.
func relationChunkPayload(c entity.RelationChunk) map[string]any {
	payload := map[string]any{
		"chunk_type":    "relation",
		"relation_type": string(c.RelationType()),
		"from_entity":   c.FromEntity(),
		"to_entity":     c.ToEntity(),
		"content_hash":  c.ContentHash(),
		"context":       c.Context(),
	}
	if md := c.Metadata(); len(md) > 0 {
		payload["metadata"] = md
	}
	return payload
}

func payloadString(rec vectorstore.Record, key string) string {
	v, ok := rec.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
