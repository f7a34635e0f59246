package filestate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, c.GetChangedFiles(nil))
}

func TestLoadCorruptFileIsTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	changed := c.GetChangedFiles([]CurrentFile{{Path: "a.go", Size: 1, MtimeNs: 1, SHA256: "x"}})
	assert.Equal(t, []string{"a.go"}, changed)
}

func TestGetChangedFilesDetectsNewAndModified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, c.UpdateBatch([]CurrentFile{
		{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"},
		{Path: "b.go", Size: 20, MtimeNs: 200, SHA256: "hash-b"},
	}))

	changed := c.GetChangedFiles([]CurrentFile{
		{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}, // unchanged
		{Path: "b.go", Size: 21, MtimeNs: 200, SHA256: "hash-b"}, // size changed
		{Path: "c.go", Size: 5, MtimeNs: 50, SHA256: "hash-c"},   // new
	})

	assert.Equal(t, []string{"b.go", "c.go"}, changed)
}

func TestUpdateBatchPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c1, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c1.UpdateBatch([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}}))

	c2, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, c2.GetChangedFiles([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}}))
}

func TestStatsComputesHitRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.UpdateBatch([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}}))

	stats := c.Stats([]CurrentFile{
		{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"},
		{Path: "b.go", Size: 1, MtimeNs: 1, SHA256: "hash-b"},
	})

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.Changed)
	assert.Equal(t, 0.5, stats.UnchangedHitRate)
}

func TestDeletedFilesFindsCachedPathsMissingFromCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.UpdateBatch([]CurrentFile{
		{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"},
		{Path: "b.go", Size: 20, MtimeNs: 200, SHA256: "hash-b"},
	}))

	deleted := c.DeletedFiles([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}})
	assert.Equal(t, []string{"b.go"}, deleted)
}

func TestDeletedFilesEmptyWhenAllCandidatesPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.UpdateBatch([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}}))

	deleted := c.DeletedFiles([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}})
	assert.Empty(t, deleted)
}

func TestRemoveDropsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.UpdateBatch([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}}))

	require.NoError(t, c.Remove([]string{"a.go"}))

	changed := c.GetChangedFiles([]CurrentFile{{Path: "a.go", Size: 10, MtimeNs: 100, SHA256: "hash-a"}})
	assert.Equal(t, []string{"a.go"}, changed)
}
