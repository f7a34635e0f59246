// Package embedcache implements C3: the two-tier embedding cache.
// Tier 1 is an in-memory cache modeled on a CachedEmbedder (same
// sha256-keyed, golang-lru-backed approach — spec §4.3 calls for FIFO
// eviction, documented in DESIGN.md as an accepted approximation via
// golang-lru's fixed-capacity LRU, the pack's only in-process cache
// library). Tier 2 is the on-disk binary store from
// original_source/claude_indexer/embeddings/cache.py, ported field for
// field: an index.json side table plus one <hash16>.bin file per
// embedding (4-byte little-endian dimension, then that many
// little-endian float32 values).
package embedcache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rlefko/codeindexer/internal/contenthash"
)

// indexEntry is one record in tier 2's index.json side table.
type indexEntry struct {
	Dimension    int   `json:"dimension"`
	CreatedNs    int64 `json:"created_ns"`
	LastAccessNs int64 `json:"last_access_ns"`
	SizeBytes    int64 `json:"size_bytes"`
}

// Clock abstracts "now" as nanoseconds since an arbitrary epoch so
// tests can control eviction ordering deterministically.
type Clock func() int64

// Cache is the two-tier embedding cache for one embedding model.
type Cache struct {
	dir          string
	maxDiskBytes int64
	now          Clock

	mu    sync.Mutex
	mem   *lru.Cache[string, []float32]
	index map[string]indexEntry
}

// Open returns a Cache rooted at dir (typically
// "<project>/.index_cache/.embedding_cache/<model>/"), with a memory
// tier capped at memCap entries (default 10000 when <= 0) and a disk
// tier capped at maxDiskBytes (no eviction when <= 0).
func Open(dir string, memCap int, maxDiskBytes int64, now Clock) (*Cache, error) {
	if memCap <= 0 {
		memCap = 10000
	}
	if now == nil {
		now = func() int64 { return 0 }
	}

	mem, err := lru.New[string, []float32](memCap)
	if err != nil {
		return nil, fmt.Errorf("embedcache: failed to create memory tier: %w", err)
	}

	c := &Cache{dir: dir, maxDiskBytes: maxDiskBytes, now: now, mem: mem, index: make(map[string]indexEntry)}

	if err := os.MkdirAll(c.embeddingsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("embedcache: failed to create cache dir: %w", err)
	}

	if err := c.loadIndex(); err != nil {
		return nil, err
	}

	return c, nil
}

// Key returns the cache key for text: sha256(text) truncated to 16
// hex characters.
func Key(text string) string {
	return contenthash.Hash(text)[:16]
}

func (c *Cache) indexPath() string      { return filepath.Join(c.dir, "index.json") }
func (c *Cache) embeddingsDir() string  { return filepath.Join(c.dir, "embeddings") }
func (c *Cache) binPath(key string) string {
	return filepath.Join(c.embeddingsDir(), key+".bin")
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil
	}

	var idx map[string]indexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		// Corrupt index: treat as empty, matching the file-state cache's
		// never-fatal failure semantics.
		return nil
	}
	c.index = idx
	return nil
}

// Get looks up text's embedding: memory first, then disk (promoting a
// disk hit back into memory). Returns ok=false on a full miss.
func (c *Cache) Get(text string) (vec []float32, ok bool) {
	key := Key(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.mem.Get(key); found {
		return v, true
	}

	entry, found := c.index[key]
	if !found {
		return nil, false
	}

	v, err := c.readBin(key, entry.Dimension)
	if err != nil {
		return nil, false
	}

	entry.LastAccessNs = c.now()
	c.index[key] = entry
	_ = c.writeIndexLocked()

	c.mem.Add(key, v)
	return v, true
}

// Set stores vec for text in both tiers.
func (c *Cache) Set(text string, vec []float32) error {
	key := Key(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem.Add(key, vec)

	size, err := c.writeBin(key, vec)
	if err != nil {
		return err
	}

	now := c.now()
	c.index[key] = indexEntry{Dimension: len(vec), CreatedNs: now, LastAccessNs: now, SizeBytes: size}

	if err := c.writeIndexLocked(); err != nil {
		return err
	}

	return c.evictIfOverLimitLocked()
}

func (c *Cache) readBin(key string, dimension int) ([]float32, error) {
	data, err := os.ReadFile(c.binPath(key))
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("embedcache: truncated embedding file for %s", key)
	}

	dim := int(binary.LittleEndian.Uint32(data[:4]))
	if dim != dimension {
		dimension = dim
	}

	want := 4 + dimension*4
	if len(data) < want {
		return nil, fmt.Errorf("embedcache: embedding file for %s shorter than declared dimension", key)
	}

	vec := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		bits := binary.LittleEndian.Uint32(data[4+i*4 : 8+i*4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func (c *Cache) writeBin(key string, vec []float32) (int64, error) {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], math.Float32bits(f))
	}

	path := c.binPath(key)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return 0, fmt.Errorf("embedcache: failed to write embedding file: %w", err)
	}
	return int64(len(buf)), nil
}

func (c *Cache) writeIndexLocked() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("embedcache: failed to marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".index-*.json.tmp")
	if err != nil {
		return fmt.Errorf("embedcache: failed to create temp index file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("embedcache: failed to write temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("embedcache: failed to close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, c.indexPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("embedcache: failed to rename temp index file into place: %w", err)
	}
	return nil
}

// evictIfOverLimitLocked drops the oldest-accessed 25% of disk
// entries in one pass when the tier-2 total exceeds maxDiskBytes.
// Caller must hold c.mu.
func (c *Cache) evictIfOverLimitLocked() error {
	if c.maxDiskBytes <= 0 {
		return nil
	}

	var total int64
	for _, e := range c.index {
		total += e.SizeBytes
	}
	if total <= c.maxDiskBytes {
		return nil
	}

	type keyed struct {
		key   string
		entry indexEntry
	}
	all := make([]keyed, 0, len(c.index))
	for k, e := range c.index {
		all = append(all, keyed{k, e})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].entry.LastAccessNs < all[j].entry.LastAccessNs })

	evictCount := len(all) / 4
	for i := 0; i < evictCount; i++ {
		key := all[i].key
		os.Remove(c.binPath(key))
		delete(c.index, key)
		c.mem.Remove(key)
	}

	return c.writeIndexLocked()
}
