package process

import (
	"context"
	"fmt"

	"github.com/rlefko/codeindexer/internal/entity"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// deletionPlan is Phase B's output: the point IDs to delete, the set
// of entity keys getting a fresh entity-level replacement (skip dedup
// in Phase C), and the entity names that vanished outright (feeds the
// mandatory phantom-relation sweep).
type deletionPlan struct {
	deleteIDs          []uint64
	replacedEntityIDs  map[string]bool
	deletedEntityNames []string
}

// phaseBDeletionPlanning implements §4.7 Phase B.
func (p *Processor) phaseBDeletionPlanning(ctx context.Context, collection string, cs ChangeSet, metadataChunks []entity.EntityChunk) (deletionPlan, error) {
	plan := deletionPlan{replacedEntityIDs: map[string]bool{}}

	newNamesByFile := make(map[string]map[string]bool, len(cs.FilesBeingProcessed))
	for _, c := range metadataChunks {
		if newNamesByFile[c.FilePath()] == nil {
			newNamesByFile[c.FilePath()] = map[string]bool{}
		}
		newNamesByFile[c.FilePath()][c.EntityName()] = true
	}

	seenIDs := map[uint64]bool{}
	addDelete := func(id uint64) {
		if !seenIDs[id] {
			seenIDs[id] = true
			plan.deleteIDs = append(plan.deleteIDs, id)
		}
	}

	existingByFile := make(map[string]map[string][]vectorstore.Record, len(cs.FilesBeingProcessed))

	for _, file := range cs.FilesBeingProcessed {
		existing, err := p.Store.FindEntitiesForFileByType(ctx, collection, file, []string{"metadata", "implementation"})
		if err != nil {
			return plan, fmt.Errorf("find existing entities for %s: %w", file, err)
		}
		existingByFile[file] = existing

		newNames := newNamesByFile[file]
		for _, recs := range existing {
			for _, rec := range recs {
				name := payloadString(rec, "entity_name")
				if !newNames[name] {
					addDelete(rec.ID)
					plan.deletedEntityNames = append(plan.deletedEntityNames, name)
				}
			}
		}
	}

	processedFiles := make(map[string]bool, len(cs.FilesBeingProcessed))
	for _, f := range cs.FilesBeingProcessed {
		processedFiles[f] = true
	}

	for _, mc := range metadataChunks {
		if !processedFiles[mc.FilePath()] {
			continue
		}
		key := entityKey(mc.FilePath(), mc.EntityName())
		if !cs.ChangedEntityIDs[key] {
			continue
		}

		for _, recs := range existingByFile[mc.FilePath()] {
			for _, rec := range recs {
				if payloadString(rec, "entity_name") == mc.EntityName() {
					addDelete(rec.ID)
				}
			}
		}
		plan.replacedEntityIDs[key] = true
	}

	return plan, nil
}
