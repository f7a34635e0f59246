package process

import (
	"context"
	"fmt"

	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// phaseEApply implements §4.7 Phase E: delete, then upsert, then run
// orphan cleanup — in that order, as one logical transaction. A delete
// failure aborts before any upsert; an upsert failure lets the
// preceding deletion stand (the next run observes the gap and
// rebuilds); a cleanup failure is logged as a warning but never fails
// the overall result.
func (p *Processor) phaseEApply(ctx context.Context, collection string, deleteIDs []uint64, points []vectorstore.Point, deletedEntityNames []string) ([]string, error) {
	var warnings []string

	if len(deleteIDs) > 0 {
		if err := p.Store.DeletePoints(ctx, collection, deleteIDs); err != nil {
			return warnings, fmt.Errorf("delete planned points: %w", err)
		}
	}

	if len(points) > 0 {
		if err := p.Store.UpsertPoints(ctx, collection, points); err != nil {
			return warnings, fmt.Errorf("upsert points: %w", err)
		}
	}

	if p.Sweep != nil {
		cleanupWarnings := p.Sweep.Run(ctx, p.Store, collection, deletedEntityNames)
		warnings = append(warnings, cleanupWarnings...)
	}

	return warnings, nil
}
