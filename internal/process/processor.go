package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rlefko/codeindexer/internal/embed"
	"github.com/rlefko/codeindexer/internal/entity"
	"github.com/rlefko/codeindexer/internal/sparse"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// EmbedCache is the subset of embedcache.Cache the processor needs —
// an interface so tests can swap in a bare map.
type EmbedCache interface {
	Get(text string) ([]float32, bool)
	Set(text string, vec []float32) error
}

// Processor implements C8 against a Store and BatchEmbedder.
type Processor struct {
	Store    vectorstore.Store
	Embedder embed.BatchEmbedder
	Cache    EmbedCache
	Sweep    *OrphanSweeper
	Logger   *slog.Logger
}

// New constructs a Processor, using slog.Default() if logger is nil.
func New(store vectorstore.Store, embedder embed.BatchEmbedder, cache EmbedCache, sweep *OrphanSweeper, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Store: store, Embedder: embedder, Cache: cache, Sweep: sweep, Logger: logger}
}

// Process runs the full Phase A-E algorithm against collection for one
// batch's ChangeSet.
func (p *Processor) Process(ctx context.Context, collection string, cs ChangeSet) (Result, error) {
	var result Result

	metadataChunks := phaseAEnrichment(cs)

	plan, err := p.phaseBDeletionPlanning(ctx, collection, cs, metadataChunks)
	if err != nil {
		return result, fmt.Errorf("process: deletion planning: %w", err)
	}

	survivingMetadata, survivingImpl, err := p.phaseCDedupEntities(ctx, collection, metadataChunks, cs.ImplementationChunks, plan.replacedEntityIDs)
	if err != nil {
		return result, fmt.Errorf("process: entity dedup: %w", err)
	}

	survivingRelations := p.phaseCDedupRelations(cs)

	embedded, err := p.phaseDEmbed(ctx, survivingMetadata, survivingImpl, survivingRelations)
	if err != nil {
		return result, fmt.Errorf("process: embedding: %w", err)
	}
	result.Warnings = append(result.Warnings, embedded.warnings...)

	applyWarnings, err := p.phaseEApply(ctx, collection, plan.deleteIDs, embedded.allPoints(), plan.deletedEntityNames)
	if err != nil {
		return result, err
	}
	result.Warnings = append(result.Warnings, applyWarnings...)

	result.DeletedPoints = len(plan.deleteIDs)
	result.MetadataChunksStored = len(embedded.metadataPoints)
	result.ImplementationChunksStored = len(embedded.implPoints)
	result.RelationsStored = len(embedded.relationPoints)

	return result, nil
}

// phaseAEnrichment builds each entity's metadata chunk, forcing
// has_implementation false for variable/import/constant entities per
// §4.7 Phase A regardless of whether an implementation chunk happens
// to share that name.
func phaseAEnrichment(cs ChangeSet) []entity.EntityChunk {
	implNames := make(map[string]bool, len(cs.ImplementationChunks))
	for _, c := range cs.ImplementationChunks {
		implNames[c.EntityName()] = true
	}

	chunks := make([]entity.EntityChunk, 0, len(cs.Entities))
	for _, e := range cs.Entities {
		chunks = append(chunks, entity.NewMetadataChunk(e, implNames[e.Name()]))
	}
	return chunks
}

func entityKey(filePath, name string) string {
	return filePath + "::" + name
}
