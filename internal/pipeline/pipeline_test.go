package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlefko/codeindexer/internal/embed"
	"github.com/rlefko/codeindexer/internal/filestate"
	"github.com/rlefko/codeindexer/internal/process"
	"github.com/rlefko/codeindexer/internal/progress"
	"github.com/rlefko/codeindexer/internal/scanner"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

func generatedFileInfo() scanner.FileInfo {
	return scanner.FileInfo{
		Path: "generated.go", ContentType: scanner.ContentTypeCode, Size: 10, IsGenerated: true,
	}
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ embed.ItemKind) ([]embed.Result, error) {
	results := make([]embed.Result, len(texts))
	for i, t := range texts {
		vec := make([]float32, f.dim)
		for j := range vec {
			vec[j] = float32(len(t)+j) / 100
		}
		results[i] = embed.Result{Text: t, Embedding: vec, Dimension: f.dim, Model: "fake"}
	}
	return results, nil
}
func (f *fakeEmbedder) MaxInputTokens() int { return 2048 }
func (f *fakeEmbedder) Dimension() int      { return f.dim }
func (f *fakeEmbedder) ModelName() string   { return "fake" }

type memCache struct{ m map[string][]float32 }

func newMemCache() *memCache { return &memCache{m: map[string][]float32{}} }
func (c *memCache) Get(text string) ([]float32, bool) { v, ok := c.m[text]; return v, ok }
func (c *memCache) Set(text string, vec []float32) error {
	c.m[text] = vec
	return nil
}

func writeProject(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.go"), []byte(`package sample

// Greet returns a friendly message for name.
func Greet(name string) string {
	return "hello " + name
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.go"), []byte(`package sample

type Widget struct {
	Name string
}
`), 0o644))
}

func newTestRunner(t *testing.T, root string) (*Runner, *vectorstore.Memory) {
	t.Helper()
	store := vectorstore.NewMemory()
	cache, err := filestate.Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	cfg := Config{
		RootDir: root, Collection: "codeindex", Include: []string{"**/*.go"},
		RespectGitignore: false, MaxFileSize: 1 << 20,
		BatchInitial: 25, BatchMin: 1, BatchMax: 100,
		WorkerCount: 2, DenseDimension: 4,
	}
	deps := Dependencies{
		Store: store, Embedder: &fakeEmbedder{dim: 4}, Cache: newMemCache(),
		Sweep:       process.NewOrphanSweeper(process.NewMemorySweepState(), 0),
		Checkpoints: progress.New(filepath.Join(t.TempDir(), "checkpoint.json")),
		FileState:   cache,
	}

	r, err := NewRunner(cfg, deps)
	require.NoError(t, err)
	return r, store
}

func TestRunIndexesAllFilesOnFirstPass(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root)

	r, store := newTestRunner(t, root)
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 0, result.FilesSkipped)
	assert.Greater(t, result.EntitiesCreated, 0)

	exists, err := store.CollectionExists(context.Background(), "codeindex")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunSecondPassSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root)

	store := vectorstore.NewMemory()
	statePath := filepath.Join(t.TempDir(), "state.json")
	cache, err := filestate.Load(statePath)
	require.NoError(t, err)

	cfg := Config{
		RootDir: root, Collection: "codeindex", Include: []string{"**/*.go"},
		MaxFileSize: 1 << 20, BatchInitial: 25, BatchMin: 1, BatchMax: 100,
		WorkerCount: 2, DenseDimension: 4,
	}
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	deps := Dependencies{
		Store: store, Embedder: &fakeEmbedder{dim: 4}, Cache: newMemCache(),
		Sweep:       process.NewOrphanSweeper(process.NewMemorySweepState(), 0),
		Checkpoints: progress.New(checkpointPath),
		FileState:   cache,
	}

	r1, err := NewRunner(cfg, deps)
	require.NoError(t, err)
	_, err = r1.Run(context.Background())
	require.NoError(t, err)

	reloaded, err := filestate.Load(statePath)
	require.NoError(t, err)
	deps.FileState = reloaded

	r2, err := NewRunner(cfg, deps)
	require.NoError(t, err)
	result2, err := r2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result2.FilesProcessed)
	assert.Equal(t, 2, result2.FilesSkipped)
}

func TestRunResumesFromCheckpointAfterInterruption(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root)

	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	checkpoints := progress.New(checkpointPath)
	require.NoError(t, checkpoints.Save(&progress.Checkpoint{
		Collection:     "codeindex",
		ProcessedFiles: []string{"greet.go"},
	}))

	store := vectorstore.NewMemory()
	cache, err := filestate.Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	cfg := Config{
		RootDir: root, Collection: "codeindex", Include: []string{"**/*.go"},
		MaxFileSize: 1 << 20, BatchInitial: 25, BatchMin: 1, BatchMax: 100,
		WorkerCount: 2, DenseDimension: 4,
	}
	deps := Dependencies{
		Store: store, Embedder: &fakeEmbedder{dim: 4}, Cache: newMemCache(),
		Sweep:       process.NewOrphanSweeper(process.NewMemorySweepState(), 0),
		Checkpoints: checkpoints,
		FileState:   cache,
	}

	r, err := NewRunner(cfg, deps)
	require.NoError(t, err)
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed, "cumulative total includes files processed before the interruption")

	cp, err := checkpoints.Load()
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint must be cleared after a clean finish")
}

func TestClassifyGeneratedFileIsLight(t *testing.T) {
	assert.Equal(t, CategoryLight, Classify(generatedFileInfo()))
}

func TestClassifyLargeCodeFileIsDeep(t *testing.T) {
	info := generatedFileInfo()
	info.IsGenerated = false
	info.Size = deepFileSizeBytes + 1
	assert.Equal(t, CategoryDeep, Classify(info))
}
