// Command indexer wires the loaded configuration into a single
// pipeline run: not a CLI surface (spec.md names that an explicit
// non-goal), just main() assembling the real Store/Embedder/Cache
// collaborators and driving Runner.Run once against the current
// working directory, Ctrl-C flushing the checkpoint at the next
// inter-batch boundary per spec §5.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/rlefko/codeindexer/internal/config"
	"github.com/rlefko/codeindexer/internal/embed"
	"github.com/rlefko/codeindexer/internal/embedcache"
	"github.com/rlefko/codeindexer/internal/filestate"
	"github.com/rlefko/codeindexer/internal/logging"
	"github.com/rlefko/codeindexer/internal/pipeline"
	"github.com/rlefko/codeindexer/internal/process"
	"github.com/rlefko/codeindexer/internal/progress"
	"github.com/rlefko/codeindexer/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "indexer:", err)
		os.Exit(1)
	}
}

func run() error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLog, err := logging.Setup(logging.Config{Level: "info"})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheDir := filepath.Join(root, ".index_cache")

	store, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		Host: cfg.Store.Host, Port: cfg.Store.Port, APIKey: cfg.Store.APIKey, UseTLS: cfg.Store.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("connect to vector store: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.Settings{
		Model: cfg.Embeddings.Model, Host: cfg.Embeddings.OllamaHost,
		APIKey: cfg.Embeddings.APIKey, Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("construct embedder: %w", err)
	}

	diskCache, err := embedcache.Open(
		filepath.Join(cacheDir, ".embedding_cache", embedder.ModelName()),
		cfg.Cache.MemoryEntries, cfg.Cache.DiskMaxBytes, nil,
	)
	if err != nil {
		return fmt.Errorf("open embedding cache: %w", err)
	}

	fileState, err := filestate.Load(filepath.Join(cacheDir, "state", cfg.Store.Collection+".json"))
	if err != nil {
		return fmt.Errorf("load file-state cache: %w", err)
	}

	checkpoints := progress.New(filepath.Join(cacheDir, "checkpoints", cfg.Store.Collection+".json"))
	sweepState := progress.NewSweepStateStore(filepath.Join(cacheDir, "checkpoints", "sweep.json"))

	runnerCfg := pipeline.Config{
		RootDir: cfg.Project.Root, Collection: cfg.Store.Collection,
		Include: cfg.Project.Include, Exclude: cfg.Project.Exclude,
		MaxFileSize: cfg.Project.MaxFileSize, RespectGitignore: true,
		BatchInitial: cfg.Batch.Initial, BatchMin: cfg.Batch.Min, BatchMax: cfg.Batch.Max,
		WorkerCount: cfg.Workers.Count, PerFileTimeout: cfg.Workers.PerFileTimeout,
		DenseDimension: uint64(cfg.Embeddings.Dimensions),
	}

	runner, err := pipeline.NewRunner(runnerCfg, pipeline.Dependencies{
		Store: store, Embedder: embedder, Cache: diskCache,
		Sweep:       process.NewOrphanSweeper(sweepState, cfg.Orphans.SweepInterval),
		Checkpoints: checkpoints, FileState: fileState, Logger: logger,
		ResidentMB: residentMemoryMB,
	})
	if err != nil {
		return fmt.Errorf("construct pipeline runner: %w", err)
	}

	result, err := runner.Run(ctx)
	if err != nil && result == nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("indexer_run_summary",
		slog.Int("files_processed", result.FilesProcessed),
		slog.Int("files_skipped", result.FilesSkipped),
		slog.Int("entities_created", result.EntitiesCreated),
		slog.Int("relations_created", result.RelationsCreated),
		slog.Int("implementation_chunks", result.ImplementationChunks),
		slog.Float64("cache_hit_rate", result.CacheHitRate),
		slog.Duration("wall_time", result.WallTime))

	// A Ctrl-C mid-run is a clean stop, not a failure, once at least
	// one file made it through (spec §5/§7's exit-status rule).
	if errors.Is(err, context.Canceled) && result.FilesProcessed > 0 {
		return nil
	}
	return err
}

// residentMemoryMB reports the Go runtime's current heap allocation in
// MB, passed as the pipeline's ResidentMB. runnerCfg sets no
// MemoryThresholdMB, so C10's and C4's memory-pressure throttles stay
// disabled in this wiring.
func residentMemoryMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / (1024 * 1024))
}
