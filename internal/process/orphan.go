package process

import (
	"context"
	"fmt"
	"time"

	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// MemorySweepState is an in-process SweepState, used by tests and by
// callers that don't need the timestamp to survive a restart.
type MemorySweepState struct {
	lastSwept map[string]time.Time
}

// NewMemorySweepState returns an empty MemorySweepState.
func NewMemorySweepState() *MemorySweepState {
	return &MemorySweepState{lastSwept: map[string]time.Time{}}
}

func (m *MemorySweepState) LastSweptAt(collection string) (time.Time, bool) {
	t, ok := m.lastSwept[collection]
	return t, ok
}

func (m *MemorySweepState) SetLastSweptAt(collection string, t time.Time) error {
	m.lastSwept[collection] = t
	return nil
}

// SweepState persists the global hash-orphan sweep's "last swept"
// timestamp alongside the pipeline's checkpoint state (spec §4.9,
// Open Question decision #2 in DESIGN.md).
type SweepState interface {
	LastSweptAt(collection string) (time.Time, bool)
	SetLastSweptAt(collection string, t time.Time) error
}

// OrphanSweeper runs §4.9's two cleanups after a successful apply: a
// mandatory phantom-relation sweep scoped to this batch's deleted
// entity names, and a timer-gated global hash-orphan sweep.
type OrphanSweeper struct {
	State    SweepState
	Interval time.Duration
	Now      func() time.Time
}

// NewOrphanSweeper returns a sweeper with a default 10-minute interval
// when interval <= 0.
func NewOrphanSweeper(state SweepState, interval time.Duration) *OrphanSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &OrphanSweeper{State: state, Interval: interval, Now: time.Now}
}

// Run executes both cleanups. Failures are returned as warning strings
// rather than errors — per §4.7 Phase E, "if step 3 fails, a warning is
// logged but the overall operation is reported successful".
func (s *OrphanSweeper) Run(ctx context.Context, store vectorstore.Store, collection string, deletedEntityNames []string) []string {
	var warnings []string

	if len(deletedEntityNames) > 0 {
		if err := cleanupPhantomRelations(ctx, store, collection, deletedEntityNames); err != nil {
			warnings = append(warnings, fmt.Sprintf("phantom-relation cleanup failed: %v", err))
		}
	}

	if s.dueForGlobalSweep(collection) {
		if err := s.cleanupHashOrphans(ctx, store, collection); err != nil {
			warnings = append(warnings, fmt.Sprintf("hash-orphan cleanup failed: %v", err))
		} else if s.State != nil {
			_ = s.State.SetLastSweptAt(collection, s.now())
		}
	}

	return warnings
}

func (s *OrphanSweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *OrphanSweeper) dueForGlobalSweep(collection string) bool {
	if s.State == nil {
		return true
	}
	last, ok := s.State.LastSweptAt(collection)
	if !ok {
		return true
	}
	return s.now().Sub(last) >= s.Interval
}

// cleanupPhantomRelations implements §4.9's mandatory sweep: for each
// entity name that just vanished from the store, delete any relation
// record touching it as an endpoint.
func cleanupPhantomRelations(ctx context.Context, store vectorstore.Store, collection string, deletedEntityNames []string) error {
	seen := map[uint64]bool{}
	var ids []uint64

	for _, name := range deletedEntityNames {
		for _, key := range []string{"from_entity", "to_entity"} {
			filter := vectorstore.Filter{Must: []vectorstore.Condition{{Key: key, Match: name}}}
			offset := uint64(0)
			for {
				recs, next, more, err := store.Scroll(ctx, collection, filter, false, false, 1000, offset)
				if err != nil {
					return fmt.Errorf("scroll relations touching %q: %w", name, err)
				}
				for _, rec := range recs {
					if !seen[rec.ID] {
						seen[rec.ID] = true
						ids = append(ids, rec.ID)
					}
				}
				if !more {
					break
				}
				offset = next
			}
		}
	}

	if len(ids) == 0 {
		return nil
	}
	return store.DeletePoints(ctx, collection, ids)
}

// cleanupHashOrphans implements §4.9's global sweep: build the full
// set of existing entity names with one batched scroll (never
// per-relation lookups, to avoid O(n^2)), then stream every relation
// and delete any whose endpoint is missing from that set.
func (s *OrphanSweeper) cleanupHashOrphans(ctx context.Context, store vectorstore.Store, collection string) error {
	existingNames, err := batchGetExistingEntityNames(ctx, store, collection)
	if err != nil {
		return fmt.Errorf("build existing-entity set: %w", err)
	}

	var orphanIDs []uint64
	offset := uint64(0)
	filter := vectorstore.Filter{Must: []vectorstore.Condition{{Key: "chunk_type", Match: "relation"}}}
	for {
		recs, next, more, err := store.Scroll(ctx, collection, filter, true, false, 1000, offset)
		if err != nil {
			return fmt.Errorf("scroll relations: %w", err)
		}
		for _, rec := range recs {
			from := payloadString(rec, "from_entity")
			to := payloadString(rec, "to_entity")
			if !existingNames[from] || !existingNames[to] {
				orphanIDs = append(orphanIDs, rec.ID)
			}
		}
		if !more {
			break
		}
		offset = next
	}

	if len(orphanIDs) == 0 {
		return nil
	}
	return store.DeletePoints(ctx, collection, orphanIDs)
}

// batchGetExistingEntityNames scrolls every metadata-chunk point once
// and returns the set of entity names still present in the collection.
func batchGetExistingEntityNames(ctx context.Context, store vectorstore.Store, collection string) (map[string]bool, error) {
	names := map[string]bool{}
	offset := uint64(0)
	filter := vectorstore.Filter{Must: []vectorstore.Condition{{Key: "chunk_type", Match: "metadata"}}}
	for {
		recs, next, more, err := store.Scroll(ctx, collection, filter, true, false, 1000, offset)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if name := payloadString(rec, "entity_name"); name != "" {
				names[name] = true
			}
		}
		if !more {
			break
		}
		offset = next
	}
	return names, nil
}
