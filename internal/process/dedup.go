package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/rlefko/codeindexer/internal/entity"
)

// phaseCDedupEntities implements §4.7 Phase C for metadata and
// implementation chunks: chunks belonging to an entity-level
// replacement skip the content-hash check outright (they are
// guaranteed fresh by Phase B); the rest are dropped if their hash
// already exists in the store.
func (p *Processor) phaseCDedupEntities(ctx context.Context, collection string, metadataChunks, implChunks []entity.EntityChunk, replacedEntityIDs map[string]bool) ([]entity.EntityChunk, []entity.EntityChunk, error) {
	survivingMetadata, err := p.filterByHash(ctx, collection, metadataChunks, replacedEntityIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata chunk dedup: %w", err)
	}
	survivingImpl, err := p.filterByHash(ctx, collection, implChunks, replacedEntityIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("implementation chunk dedup: %w", err)
	}
	return survivingMetadata, survivingImpl, nil
}

func (p *Processor) filterByHash(ctx context.Context, collection string, chunks []entity.EntityChunk, replacedEntityIDs map[string]bool) ([]entity.EntityChunk, error) {
	surviving := make([]entity.EntityChunk, 0, len(chunks))
	for _, c := range chunks {
		key := entityKey(c.FilePath(), c.EntityName())
		if replacedEntityIDs[key] {
			surviving = append(surviving, c)
			continue
		}

		exists, err := p.Store.CheckContentExists(ctx, collection, c.ContentHash())
		if err != nil {
			return nil, err
		}
		if !exists {
			surviving = append(surviving, c)
		}
	}
	return surviving, nil
}

// phaseCDedupRelations implements §4.8: only relations that "touch" a
// changed entity get embedded, and they are deduplicated by their
// deterministic ID rather than by content hash — two parses of the
// same edge must collapse to the same point.
func (p *Processor) phaseCDedupRelations(cs ChangeSet) []entity.RelationChunk {
	seen := map[string]bool{}
	var chunks []entity.RelationChunk

	for _, r := range cs.Relations {
		if !relationTouchesChanged(r, cs.ChangedEntityIDs) {
			continue
		}
		rc := entity.NewRelationChunk(r)
		if seen[rc.ID()] {
			continue
		}
		seen[rc.ID()] = true
		chunks = append(chunks, rc)
	}
	return chunks
}

// relationTouchesChanged mirrors SmartRelationsProcessor.
// filter_relations_for_changes's touch rule: a relation touches a
// changed entity if either endpoint IS a changed ID, or any changed ID
// ends with "::<endpoint>".
func relationTouchesChanged(r entity.Relation, changedEntityIDs map[string]bool) bool {
	from, to := r.FromEntity(), r.ToEntity()
	for changedID := range changedEntityIDs {
		if changedID == from || changedID == to {
			return true
		}
		if strings.HasSuffix(changedID, "::"+from) || strings.HasSuffix(changedID, "::"+to) {
			return true
		}
	}
	return false
}
