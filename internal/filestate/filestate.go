// Package filestate implements C2: the per-collection file-state
// cache that lets a pipeline run skip files that have not changed
// since the last run.
//
// Modeled on a detectFileChanges routine (size/mtime comparison,
// deterministic sort of changes) and its hashContent helper (here
// delegated to internal/contenthash), plus the atomic
// temp-file-then-rename write idiom used for config backups,
// generalized to a single JSON cache file per spec §4.2.
package filestate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Entry is one file's recorded state as of its last successful index.
type Entry struct {
	Path    string `json:"path"`
	Size    int64  `json:"size_bytes"`
	MtimeNs int64  `json:"mtime_ns"`
	SHA256  string `json:"sha256"`
}

// Stats summarizes a get_changed_files call.
type Stats struct {
	Total            int     `json:"total"`
	Unchanged        int     `json:"unchanged"`
	Changed          int     `json:"changed"`
	UnchangedHitRate float64 `json:"unchanged_hit_rate"`
}

// Cache is the on-disk file-state cache for one collection. All
// methods are safe for concurrent use; Cache serializes its own
// reads/writes with an internal mutex since the orchestrator is its
// only writer but other components may read Stats concurrently.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// Load reads the cache file at path. A missing or corrupt file is
// treated as an empty cache (full re-index), never a fatal error, per
// spec §4.2's failure semantics.
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt cache: behave as if empty rather than failing the run.
		return c, nil
	}

	c.entries = entries
	return c, nil
}

// CurrentFile describes the on-disk state of a candidate file as
// observed right now, for comparison against the cache.
type CurrentFile struct {
	Path    string
	Size    int64
	MtimeNs int64
	SHA256  string
}

// GetChangedFiles returns the subset of candidates whose cache entry
// is missing or disagrees with their current size, mtime, or sha256.
func (c *Cache) GetChangedFiles(candidates []CurrentFile) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []string
	for _, cur := range candidates {
		entry, ok := c.entries[cur.Path]
		if !ok {
			changed = append(changed, cur.Path)
			continue
		}
		if entry.Size != cur.Size || entry.MtimeNs != cur.MtimeNs || entry.SHA256 != cur.SHA256 {
			changed = append(changed, cur.Path)
		}
	}

	sort.Strings(changed)
	return changed
}

// Stats reports how candidates split between unchanged and changed
// without mutating the cache.
func (c *Cache) Stats(candidates []CurrentFile) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := len(candidates)
	changed := 0
	for _, cur := range candidates {
		entry, ok := c.entries[cur.Path]
		if !ok || entry.Size != cur.Size || entry.MtimeNs != cur.MtimeNs || entry.SHA256 != cur.SHA256 {
			changed++
		}
	}

	unchanged := total - changed
	rate := 0.0
	if total > 0 {
		rate = float64(unchanged) / float64(total)
	}

	return Stats{Total: total, Unchanged: unchanged, Changed: changed, UnchangedHitRate: rate}
}

// UpdateBatch refreshes the cache entries for files just successfully
// indexed and atomically rewrites the cache file (temp file + rename,
// so readers never observe a partial file).
func (c *Cache) UpdateBatch(indexed []CurrentFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range indexed {
		c.entries[f.Path] = Entry{Path: f.Path, Size: f.Size, MtimeNs: f.MtimeNs, SHA256: f.SHA256}
	}

	return c.writeLocked()
}

// DeletedFiles returns the cached paths that are not present among
// candidates — files the cache still remembers that this scan no
// longer found on disk.
func (c *Cache) DeletedFiles(candidates []CurrentFile) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	present := make(map[string]bool, len(candidates))
	for _, cur := range candidates {
		present[cur.Path] = true
	}

	var deleted []string
	for p := range c.entries {
		if !present[p] {
			deleted = append(deleted, p)
		}
	}

	sort.Strings(deleted)
	return deleted
}

// Remove drops the cache entries for files that no longer exist in
// the tree (deletions), then atomically rewrites the cache file.
func (c *Cache) Remove(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range paths {
		delete(c.entries, p)
	}

	return c.writeLocked()
}

func (c *Cache) writeLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("filestate: failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestate: failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".filestate-*.json.tmp")
	if err != nil {
		return fmt.Errorf("filestate: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestate: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestate: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestate: failed to rename temp file into place: %w", err)
	}
	return nil
}
