// Package process implements C8, the unified content processor: the
// correctness-critical component that takes one batch's freshly parsed
// entities/relations/implementation chunks and makes the vector store
// reflect them exactly, reusing as much prior work as possible.
//
// Grounded on original_source/claude_indexer/processing/
// unified_processor.py (phase sequencing) and storage/diff_layers.py
// (smart relation filter, orphan cleanup).
package process

import (
	"github.com/rlefko/codeindexer/internal/entity"
)

// ChangeSet is one batch's parser output, the C8 input shape spec §4.7
// names.
type ChangeSet struct {
	// FilesBeingProcessed are the file paths this batch touched —
	// Phase B only looks for deleted/replaced entities within these
	// files.
	FilesBeingProcessed []string

	Entities             []entity.Entity
	Relations            []entity.Relation
	ImplementationChunks []entity.EntityChunk

	// ChangedEntityIDs is the set {"<file_path>::<entity_name>"} that
	// drives both entity-level replacement (Phase B) and the relation
	// smart filter (§4.8).
	ChangedEntityIDs map[string]bool
}

// Result is C8's per-batch outcome.
type Result struct {
	MetadataChunksStored       int
	ImplementationChunksStored int
	RelationsStored            int
	DeletedPoints              int
	Warnings                   []string
}
