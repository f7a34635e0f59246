package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsNilCheckpoint(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "checkpoint.json"))
	cp, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "checkpoint.json"))

	cp := &Checkpoint{
		Collection:     "codeindex",
		AllFiles:       []string{"a.go", "b.go"},
		ProcessedFiles: []string{"a.go"},
		FailedFiles:    nil,
		LastBatchIndex: 2,
		Counters:       Counters{EntitiesCreated: 5, RelationsCreated: 3, ImplementationChunks: 2},
	}
	require.NoError(t, s.Save(cp))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, *cp, *loaded)
}

func TestClearRemovesCheckpointFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s := New(path)

	require.NoError(t, s.Save(&Checkpoint{Collection: "codeindex"}))
	require.NoError(t, s.Clear())

	cp, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestClearOnMissingFileIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "checkpoint.json"))
	assert.NoError(t, s.Clear())
}

func TestLoadCorruptFileReturnsNilNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	s := New(path)
	cp, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSweepStateStoreRoundTrips(t *testing.T) {
	s := NewSweepStateStore(filepath.Join(t.TempDir(), "sweep.json"))

	_, ok := s.LastSweptAt("codeindex")
	assert.False(t, ok)

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSweptAt("codeindex", now))

	got, ok := s.LastSweptAt("codeindex")
	require.True(t, ok)
	assert.True(t, now.Equal(got))
}

func TestSweepStateSurvivesCheckpointClear(t *testing.T) {
	dir := t.TempDir()
	checkpoints := New(filepath.Join(dir, "checkpoint.json"))
	sweep := NewSweepStateStore(filepath.Join(dir, "sweep.json"))

	now := time.Now()
	require.NoError(t, checkpoints.Save(&Checkpoint{Collection: "codeindex"}))
	require.NoError(t, sweep.SetLastSweptAt("codeindex", now))

	require.NoError(t, checkpoints.Clear())

	_, ok := sweep.LastSweptAt("codeindex")
	assert.True(t, ok, "sweep timestamp must outlive a per-run checkpoint clear")
}

func TestSweepStateTracksPerCollection(t *testing.T) {
	s := NewSweepStateStore(filepath.Join(t.TempDir(), "sweep.json"))

	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()
	require.NoError(t, s.SetLastSweptAt("collection-a", t1))
	require.NoError(t, s.SetLastSweptAt("collection-b", t2))

	gotA, ok := s.LastSweptAt("collection-a")
	require.True(t, ok)
	assert.True(t, t1.Equal(gotA))

	gotB, ok := s.LastSweptAt("collection-b")
	require.True(t, ok)
	assert.True(t, t2.Equal(gotB))
}
