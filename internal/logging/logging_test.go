package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexer.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", slog.String("k", "v"))
	assert.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
