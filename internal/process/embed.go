package process

import (
	"context"
	"fmt"

	embedpkg "github.com/rlefko/codeindexer/internal/embed"
	"github.com/rlefko/codeindexer/internal/entity"
	"github.com/rlefko/codeindexer/internal/sparse"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// phaseDEmbed implements §4.7 Phase D: group surviving chunks by kind,
// embed each group (routed through C3's cache), and attach BM25
// sparse vectors to metadata and relation points only.
// embedResult groups phaseDEmbed's output by chunk kind so the caller
// can report how many of each actually got a usable vector — a chunk
// whose embedding failed produces no point and must not be counted as
// stored.
type embedResult struct {
	metadataPoints, implPoints, relationPoints []vectorstore.Point
	warnings                                   []string
}

func (r embedResult) allPoints() []vectorstore.Point {
	points := make([]vectorstore.Point, 0, len(r.metadataPoints)+len(r.implPoints)+len(r.relationPoints))
	points = append(points, r.metadataPoints...)
	points = append(points, r.implPoints...)
	points = append(points, r.relationPoints...)
	return points
}

func (p *Processor) phaseDEmbed(ctx context.Context, metadataChunks, implChunks []entity.EntityChunk, relationChunks []entity.RelationChunk) (embedResult, error) {
	var result embedResult

	metaTexts := make([]string, len(metadataChunks))
	for i, c := range metadataChunks {
		metaTexts[i] = c.Content()
	}
	metaVecs, metaWarnings, err := p.embedCached(ctx, metaTexts, embedpkg.ItemMetadata)
	if err != nil {
		return result, fmt.Errorf("embed metadata chunks: %w", err)
	}
	result.warnings = append(result.warnings, metaWarnings...)
	for i, c := range metadataChunks {
		if metaVecs[i] == nil {
			continue
		}
		result.metadataPoints = append(result.metadataPoints, vectorstore.Point{
			ID:      entity.PointID(c.ID()),
			Dense:   metaVecs[i],
			Sparse:  sparsePtr(sparse.Build(c.ContentBM25())),
			Payload: entityChunkPayload(c),
		})
	}

	implTexts := make([]string, len(implChunks))
	for i, c := range implChunks {
		implTexts[i] = c.Content()
	}
	implVecs, implWarnings, err := p.embedCached(ctx, implTexts, embedpkg.ItemImplementation)
	if err != nil {
		return result, fmt.Errorf("embed implementation chunks: %w", err)
	}
	result.warnings = append(result.warnings, implWarnings...)
	for i, c := range implChunks {
		if implVecs[i] == nil {
			continue
		}
		result.implPoints = append(result.implPoints, vectorstore.Point{
			ID:      entity.PointID(c.ID()),
			Dense:   implVecs[i],
			Payload: entityChunkPayload(c),
		})
	}

	relTexts := make([]string, len(relationChunks))
	for i, c := range relationChunks {
		relTexts[i] = c.Content()
	}
	relVecs, relWarnings, err := p.embedCached(ctx, relTexts, embedpkg.ItemRelation)
	if err != nil {
		return result, fmt.Errorf("embed relation chunks: %w", err)
	}
	result.warnings = append(result.warnings, relWarnings...)
	for i, c := range relationChunks {
		if relVecs[i] == nil {
			continue
		}
		result.relationPoints = append(result.relationPoints, vectorstore.Point{
			ID:      entity.PointID(c.ID()),
			Dense:   relVecs[i],
			Sparse:  sparsePtr(sparse.Build(c.ContentBM25())),
			Payload: relationChunkPayload(c),
		})
	}

	return result, nil
}

func sparsePtr(v vectorstore.SparseVector) *vectorstore.SparseVector {
	if len(v.Indices) == 0 {
		return nil
	}
	return &v
}

// embedCached routes texts through the C3 cache before falling back to
// the embedder, per spec §7's single-item embedder-failure rule: a
// failed item's vector comes back nil and is dropped by the caller
// rather than failing the whole group.
func (p *Processor) embedCached(ctx context.Context, texts []string, kind embedpkg.ItemKind) ([][]float32, []string, error) {
	vectors := make([][]float32, len(texts))
	var warnings []string

	var uncachedIdx []int
	var uncachedTexts []string

	for i, t := range texts {
		if p.Cache != nil {
			if v, ok := p.Cache.Get(t); ok {
				vectors[i] = v
				continue
			}
		}
		uncachedIdx = append(uncachedIdx, i)
		uncachedTexts = append(uncachedTexts, t)
	}

	if len(uncachedTexts) == 0 {
		return vectors, warnings, nil
	}

	results, err := p.Embedder.EmbedBatch(ctx, uncachedTexts, kind)
	if err != nil {
		return nil, nil, err
	}

	for j, r := range results {
		idx := uncachedIdx[j]
		if !r.Success() {
			warnings = append(warnings, fmt.Sprintf("embedding failed for %s item: %v", kind, r.Err))
			continue
		}
		vectors[idx] = r.Embedding
		if p.Cache != nil {
			if err := p.Cache.Set(uncachedTexts[j], r.Embedding); err != nil {
				warnings = append(warnings, fmt.Sprintf("embedding cache write failed: %v", err))
			}
		}
	}

	return vectors, warnings, nil
}
