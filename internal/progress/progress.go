// Package progress implements C11: the on-disk, flock-guarded
// checkpoint store that lets an interrupted pipeline run resume from
// where it left off, plus a sibling store for the orphan sweep's
// "last swept" timestamps (DESIGN.md's Open Question decision #2).
//
// Modeled on an IndexCheckpoint shape and its SaveIndexCheckpoint/
// ClearIndexCheckpoint mechanics, generalized to spec §4.10's
// checkpoint record, and on internal/filestate's and internal/config's
// atomic temp-file-then-rename write idiom. The checkpoint file is
// additionally flock-guarded (gofrs/flock) since, unlike the
// file-state cache, two pipeline invocations against the same
// collection could plausibly race on it.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Counters tracks the running totals a resumed run needs to report
// correctly in its final summary.
type Counters struct {
	EntitiesCreated      int `json:"entities_created"`
	RelationsCreated     int `json:"relations_created"`
	ImplementationChunks int `json:"implementation_chunks"`
}

// Checkpoint is one collection's resumable pipeline state, the exact
// record shape spec §4.10 names.
type Checkpoint struct {
	Collection     string   `json:"collection"`
	AllFiles       []string `json:"all_files"`
	ProcessedFiles []string `json:"processed_files"`
	FailedFiles    []string `json:"failed_files"`
	LastBatchIndex int      `json:"last_batch_index"`
	Counters       Counters `json:"counters"`
}

// Store is the on-disk checkpoint store for one collection's
// checkpoint file at checkpoints/<collection>.json.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// New returns a Store writing to path.
func New(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Load reads the checkpoint. A missing or corrupt file returns (nil,
// nil): "no checkpoint" is a valid, non-fatal state meaning a fresh
// run, matching C2's own failure semantics for its cache file.
func (s *Store) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Save atomically rewrites the checkpoint file (temp file + rename)
// under an exclusive flock, rewritten every K batches per §4.10.
func (s *Store) Save(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("progress: acquire checkpoint lock: %w", err)
	}
	defer s.lock.Unlock()

	return atomicWriteJSON(s.path, cp)
}

// Clear removes the checkpoint file, called at successful pipeline
// finalisation (spec §4.10 step 5).
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("progress: remove checkpoint: %w", err)
	}
	return nil
}

// sweepRecord is one collection's persisted sweep timestamp.
type sweepRecord struct {
	LastSweptNs map[string]int64 `json:"last_swept_ns"`
}

// SweepStateStore implements process.SweepState against its own file,
// separate from the per-run checkpoint so the sweep timer survives
// Store.Clear() on every successful run — an orphan sweep's cadence is
// a property of the collection, not of any one pipeline invocation.
type SweepStateStore struct {
	path string
	mu   sync.Mutex
}

// NewSweepStateStore returns a SweepStateStore writing to path.
func NewSweepStateStore(path string) *SweepStateStore {
	return &SweepStateStore{path: path}
}

// LastSweptAt returns the last time collection was globally swept, if
// ever recorded.
func (s *SweepStateStore) LastSweptAt(collection string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil || rec == nil {
		return time.Time{}, false
	}
	ns, ok := rec.LastSweptNs[collection]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// SetLastSweptAt records t as collection's most recent global sweep.
func (s *SweepStateStore) SetLastSweptAt(collection string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &sweepRecord{LastSweptNs: map[string]int64{}}
	}
	rec.LastSweptNs[collection] = t.UnixNano()
	return atomicWriteJSON(s.path, rec)
}

func (s *SweepStateStore) loadLocked() (*sweepRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var rec sweepRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

// atomicWriteJSON marshals v and writes it to path via a temp file in
// the same directory followed by an atomic rename.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("progress: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json.tmp")
	if err != nil {
		return fmt.Errorf("progress: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("progress: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("progress: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("progress: rename temp file into place: %w", err)
	}
	return nil
}
