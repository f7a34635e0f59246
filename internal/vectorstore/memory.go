package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process fake Store, used by C8/C9 tests so the
// correctness-critical delete-then-upsert and orphan-cleanup logic can
// be exercised without a live Qdrant instance.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

type memCollection struct {
	denseDim       uint64
	withSparse     bool
	payloadIndices []string
	points         map[uint64]Point
}

// NewMemory returns an empty fake store.
func NewMemory() *Memory {
	return &Memory{collections: map[string]*memCollection{}}
}

func (m *Memory) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *Memory) CreateCollection(_ context.Context, name string, denseDim uint64, withSparse bool, payloadIndices []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return nil // idempotent
	}
	m.collections[name] = &memCollection{
		denseDim:       denseDim,
		withSparse:     withSparse,
		payloadIndices: append([]string(nil), payloadIndices...),
		points:         map[uint64]Point{},
	}
	return nil
}

func (m *Memory) UpsertPoints(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("vectorstore: collection %q does not exist", collection)
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	return nil
}

func (m *Memory) DeletePoints(_ context.Context, collection string, ids []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("vectorstore: collection %q does not exist", collection)
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *Memory) Scroll(_ context.Context, collection string, filter Filter, withPayload, withVectors bool, limit uint32, offset uint64) ([]Record, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, 0, false, fmt.Errorf("vectorstore: collection %q does not exist", collection)
	}

	ids := make([]uint64, 0, len(c.points))
	for id, p := range c.points {
		if matches(p.Payload, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	start := 0
	for start < len(ids) && ids[start] < offset {
		start++
	}
	if limit == 0 {
		limit = 1000
	}
	end := start + int(limit)
	hasMore := end < len(ids)
	if end > len(ids) {
		end = len(ids)
	}

	records := make([]Record, 0, end-start)
	for _, id := range ids[start:end] {
		p := c.points[id]
		rec := Record{ID: id}
		if withPayload {
			rec.Payload = p.Payload
		}
		if withVectors {
			rec.Dense = p.Dense
		}
		records = append(records, rec)
	}

	var next uint64
	if hasMore {
		next = ids[end]
	}
	return records, next, hasMore, nil
}

func (m *Memory) Count(ctx context.Context, collection string, filter Filter) (uint64, error) {
	var total uint64
	offset := uint64(0)
	for {
		recs, next, more, err := m.Scroll(ctx, collection, filter, false, false, 1000, offset)
		if err != nil {
			return 0, err
		}
		total += uint64(len(recs))
		if !more {
			break
		}
		offset = next
	}
	return total, nil
}

func (m *Memory) CheckContentExists(ctx context.Context, collection string, contentHash string) (bool, error) {
	n, err := m.Count(ctx, collection, MatchContentHash(contentHash))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *Memory) FindEntitiesForFileByType(ctx context.Context, collection string, filePath string, chunkTypes []string) (map[string][]Record, error) {
	out := make(map[string][]Record, len(chunkTypes))
	for _, ct := range chunkTypes {
		filter := Filter{Must: []Condition{
			{Key: "metadata.file_path", Match: filePath},
			{Key: "chunk_type", Match: ct},
		}}
		var all []Record
		offset := uint64(0)
		for {
			recs, next, more, err := m.Scroll(ctx, collection, filter, true, false, 1000, offset)
			if err != nil {
				return nil, err
			}
			all = append(all, recs...)
			if !more {
				break
			}
			offset = next
		}
		out[ct] = all
	}
	return out, nil
}

// matches evaluates an equality filter against a payload, resolving
// dotted keys ("metadata.file_path") into nested maps.
func matches(payload map[string]any, filter Filter) bool {
	for _, cond := range filter.Must {
		if !lookupEquals(payload, cond.Key, cond.Match) {
			return false
		}
	}
	return true
}

func lookupEquals(payload map[string]any, dottedKey string, want any) bool {
	parts := strings.Split(dottedKey, ".")
	var cur any = payload
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[part]
		if !ok {
			return false
		}
	}
	return fmt.Sprint(cur) == fmt.Sprint(want)
}
