// Package pipeline implements C9, the orchestrator that ties every
// other component into the five phases spec §4.10 names: discovery,
// filtering, categorisation/batching, the batch processing loop, and
// finalisation.
//
// Modeled on a Run() stage-sequencing pattern (stageTiming, per-stage
// slog events, checkpoint save/clear calls at the same points in the
// run), adapted from a fixed five-stage scan/chunk/context/embed/index
// pipeline to this repo's resumable discover/filter/batch/process loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rlefko/codeindexer/internal/batchsizer"
	"github.com/rlefko/codeindexer/internal/chunk"
	"github.com/rlefko/codeindexer/internal/contenthash"
	"github.com/rlefko/codeindexer/internal/embed"
	"github.com/rlefko/codeindexer/internal/entity"
	"github.com/rlefko/codeindexer/internal/fallback"
	"github.com/rlefko/codeindexer/internal/filestate"
	"github.com/rlefko/codeindexer/internal/indexerr"
	"github.com/rlefko/codeindexer/internal/process"
	"github.com/rlefko/codeindexer/internal/progress"
	"github.com/rlefko/codeindexer/internal/scanner"
	"github.com/rlefko/codeindexer/internal/vectorstore"
	"github.com/rlefko/codeindexer/internal/workerpool"
)

// Category classifies a file's expected processing cost, driving the
// light-first batch packing spec §4.10 step 3 describes.
type Category string

const (
	CategoryLight    Category = "light"
	CategoryStandard Category = "standard"
	CategoryDeep     Category = "deep"
)

// deepFileSizeBytes is the size above which a hand-written code file
// is classified deep rather than standard.
const deepFileSizeBytes = 32 * 1024

// serialParseThreshold is the batch size at or below which parsing
// runs on a single goroutine; fanning a handful of files across a
// worker pool costs more in goroutine/dispatcher setup than it saves.
const serialParseThreshold = 3

// fileReadRetryConfig governs the transient-I/O retry spec §7 names
// for discovery's file reads: a handful of short retries covers a file
// mid-write or a momentarily unavailable network mount without
// stalling the whole run.
var fileReadRetryConfig = indexerr.RetryConfig{
	MaxRetries: 2, InitialDelay: 20 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Multiplier: 2.0,
}

// Classify assigns file a Category using the same signals the scanner
// already computed: generated files and non-code content types are
// always light, large hand-written code is deep, everything else is
// standard.
func Classify(f scanner.FileInfo) Category {
	if f.IsGenerated || f.ContentType != scanner.ContentTypeCode {
		return CategoryLight
	}
	if f.Size > deepFileSizeBytes {
		return CategoryDeep
	}
	return CategoryStandard
}

// Config holds the run-time parameters of one pipeline invocation,
// the fields of config.Config a Runner actually consumes.
type Config struct {
	RootDir          string
	Collection       string
	Include          []string
	Exclude          []string
	MaxFileSize      int64
	RespectGitignore bool

	BatchInitial int
	BatchMin     int
	BatchMax     int

	WorkerCount    int
	PerFileTimeout time.Duration

	DenseDimension uint64

	// CheckpointEveryBatches is K in "rewritten atomically every K
	// batches" (spec §4.10); defaults to 1 (every batch) when <= 0.
	CheckpointEveryBatches int

	MemoryThresholdMB int64
}

// Dependencies are the injected collaborators a Runner drives. Only
// Store, Embedder, Checkpoints, and FileState are required; everything
// else falls back to a sensible default.
type Dependencies struct {
	Store       vectorstore.Store
	Embedder    embed.BatchEmbedder
	Cache       process.EmbedCache
	Sweep       *process.OrphanSweeper
	Checkpoints *progress.Store
	FileState   *filestate.Cache
	Scanner     *scanner.Scanner
	Logger      *slog.Logger

	// DispatcherFactory builds one *chunk.Dispatcher per worker
	// goroutine (or one for serial parsing); defaults to
	// chunk.NewDispatcher.
	DispatcherFactory workerpool.DispatcherFactory

	// ResidentMB reports resident memory in MB for the worker pool's
	// memory-pressure throttle; nil disables the check.
	ResidentMB workerpool.MemoryMonitor
}

// Result is the summary spec §4.10 step 5 names.
type Result struct {
	FilesProcessed       int
	FilesSkipped         int
	FilesDeleted         int
	EntitiesCreated      int
	RelationsCreated     int
	ImplementationChunks int
	CacheHitRate         float64
	WallTime             time.Duration
}

// Runner drives one collection's pipeline run end to end.
type Runner struct {
	cfg  Config
	deps Dependencies

	processor *process.Processor
	sizer     *batchsizer.Sizer
	pool      *workerpool.Pool
}

// NewRunner validates deps and constructs a Runner ready to Run.
func NewRunner(cfg Config, deps Dependencies) (*Runner, error) {
	if deps.Store == nil {
		return nil, indexerr.FatalError("pipeline: store is required", nil)
	}
	if deps.Embedder == nil {
		return nil, indexerr.FatalError("pipeline: embedder is required", nil)
	}
	if deps.Checkpoints == nil {
		return nil, indexerr.FatalError("pipeline: checkpoint store is required", nil)
	}
	if deps.FileState == nil {
		return nil, indexerr.FatalError("pipeline: file-state cache is required", nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scanner == nil {
		s, err := scanner.New()
		if err != nil {
			return nil, fmt.Errorf("pipeline: construct scanner: %w", err)
		}
		deps.Scanner = s
	}
	if deps.DispatcherFactory == nil {
		deps.DispatcherFactory = chunk.NewDispatcher
	}
	if cfg.CheckpointEveryBatches <= 0 {
		cfg.CheckpointEveryBatches = 1
	}

	sizerOpts := []batchsizer.Option{}
	if cfg.MemoryThresholdMB > 0 && deps.ResidentMB != nil {
		sizerOpts = append(sizerOpts, batchsizer.WithMemoryThreshold(cfg.MemoryThresholdMB, func() int64 { return deps.ResidentMB() }))
	}
	initial, min, max := cfg.BatchInitial, cfg.BatchMin, cfg.BatchMax
	if initial <= 0 {
		initial = 25
	}
	if min <= 0 {
		min = 1
	}
	if max <= 0 {
		max = 100
	}
	sizer := batchsizer.New(initial, min, max, sizerOpts...)

	poolOpts := []workerpool.Option{}
	if cfg.MemoryThresholdMB > 0 && deps.ResidentMB != nil {
		poolOpts = append(poolOpts, workerpool.WithMemoryThreshold(cfg.MemoryThresholdMB, deps.ResidentMB))
	}
	pool := workerpool.New(deps.DispatcherFactory, cfg.WorkerCount, cfg.PerFileTimeout, poolOpts...)

	processor := process.New(deps.Store, deps.Embedder, deps.Cache, deps.Sweep, deps.Logger)

	return &Runner{cfg: cfg, deps: deps, processor: processor, sizer: sizer, pool: pool}, nil
}

// candidate is one discovered file paired with its content, read once
// up front since the file-state comparison needs its sha256 anyway.
type candidate struct {
	info    scanner.FileInfo
	content []byte
	sha256  string
}

// Run executes the full five-phase pipeline against one run of the
// tree rooted at cfg.RootDir.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := r.deps.Logger

	if err := vectorstore.EnsureCollection(ctx, r.deps.Store, r.cfg.Collection, r.cfg.DenseDimension); err != nil {
		return nil, indexerr.FatalError("pipeline: ensure collection", err)
	}

	candidates, err := r.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: discovery: %w", err)
	}
	log.Info("pipeline_discovery_complete", slog.Int("files_found", len(candidates)))

	currentFiles := make([]filestate.CurrentFile, 0, len(candidates))
	byPath := make(map[string]candidate, len(candidates))
	for _, c := range candidates {
		currentFiles = append(currentFiles, filestate.CurrentFile{
			Path: c.info.Path, Size: c.info.Size, MtimeNs: c.info.ModTime.UnixNano(), SHA256: c.sha256,
		})
		byPath[c.info.Path] = c
	}

	stats := r.deps.FileState.Stats(currentFiles)
	changed := r.deps.FileState.GetChangedFiles(currentFiles)
	log.Info("pipeline_filter_complete",
		slog.Int("total", stats.Total), slog.Int("changed", stats.Changed), slog.Int("unchanged", stats.Unchanged))

	filesDeleted := 0
	if deleted := r.deps.FileState.DeletedFiles(currentFiles); len(deleted) > 0 {
		cs := process.ChangeSet{FilesBeingProcessed: deleted}
		if result, err := r.processor.Process(ctx, r.cfg.Collection, cs); err != nil {
			log.Warn("pipeline_deleted_file_cleanup_failed", slog.String("error", err.Error()))
		} else {
			if err := r.deps.FileState.Remove(deleted); err != nil {
				log.Warn("pipeline_filestate_remove_failed", slog.String("error", err.Error()))
			}
			filesDeleted = len(deleted)
			log.Info("pipeline_deleted_files_cleaned",
				slog.Int("files_deleted", filesDeleted), slog.Int("points_deleted", result.DeletedPoints))
		}
	}

	checkpoint, err := r.deps.Checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("pipeline: load checkpoint: %w", err)
	}
	alreadyProcessed := map[string]bool{}
	var failedFiles []string
	var processedFiles []string
	counters := progress.Counters{}
	batchIndex := 0
	if checkpoint != nil && checkpoint.Collection == r.cfg.Collection {
		for _, p := range checkpoint.ProcessedFiles {
			alreadyProcessed[p] = true
		}
		processedFiles = append(processedFiles, checkpoint.ProcessedFiles...)
		failedFiles = append(failedFiles, checkpoint.FailedFiles...)
		counters = checkpoint.Counters
		batchIndex = checkpoint.LastBatchIndex
		log.Info("pipeline_resuming", slog.Int("already_processed", len(alreadyProcessed)), slog.Int("last_batch_index", batchIndex))
	}

	var remaining []string
	for _, p := range changed {
		if !alreadyProcessed[p] {
			remaining = append(remaining, p)
		}
	}

	remaining = r.sortLightFirst(remaining, byPath)

	var indexed []filestate.CurrentFile

	for len(remaining) > 0 {
		if ctx.Err() != nil {
			break
		}

		size := r.sizer.GetBatchSize()
		if size > len(remaining) {
			size = len(remaining)
		}
		batch := remaining[:size]
		remaining = remaining[size:]

		batchStart := time.Now()
		results := r.parseBatch(ctx, batch, byPath)

		var entities []entity.Entity
		var relations []entity.Relation
		var implChunks []entity.EntityChunk
		changedIDs := map[string]bool{}
		var batchFiles []string
		var batchFailed []string

		for _, res := range results {
			if res.Err != nil {
				batchFailed = append(batchFailed, res.Path)
				ie := indexerr.ParserError("parser adapter failed", res.Err).WithDetail("file_path", res.Path)
				log.Warn("pipeline_file_parse_failed", slogAttrs(indexerr.FormatForLog(ie))...)
				continue
			}

			parsed := res.Parsed
			var fileEntities []entity.Entity
			var fileRelations []entity.Relation
			if len(parsed.Errors) > 0 {
				fb := fallback.Parse(res.Path, byPath[res.Path].content, strings.Join(parsed.Errors, "; "))
				fileEntities = fb.Entities
				fileRelations = fb.Relations
				log.Warn("pipeline_file_fallback_parsed", slog.String("path", res.Path), slog.Any("warnings", fb.Warnings))
			} else {
				fileEntities = parsed.Entities
				fileRelations = parsed.Relations
				implChunks = append(implChunks, parsed.ImplementationChunks...)
			}

			entities = append(entities, fileEntities...)
			relations = append(relations, fileRelations...)
			for _, e := range fileEntities {
				changedIDs[e.FilePath()+"::"+e.Name()] = true
			}
			batchFiles = append(batchFiles, res.Path)
		}

		cs := process.ChangeSet{
			FilesBeingProcessed: batchFiles, Entities: entities, Relations: relations,
			ImplementationChunks: implChunks, ChangedEntityIDs: changedIDs,
		}

		var errCount int
		if len(batchFiles) > 0 {
			result, err := r.processor.Process(ctx, r.cfg.Collection, cs)
			if err != nil {
				batchFailed = append(batchFailed, batchFiles...)
				errCount = len(batchFiles)
				ie := indexerr.StoreUpsertError("batch store failed", err).WithDetail("batch_size", fmt.Sprintf("%d", len(batch)))
				log.Error("pipeline_batch_store_failed", slogAttrs(indexerr.FormatForLog(ie))...)
			} else {
				counters.EntitiesCreated += result.MetadataChunksStored
				counters.RelationsCreated += result.RelationsStored
				counters.ImplementationChunks += result.ImplementationChunksStored
				for _, w := range result.Warnings {
					log.Warn("pipeline_batch_warning", slog.String("warning", w))
				}
				for _, p := range batchFiles {
					c := byPath[p]
					indexed = append(indexed, filestate.CurrentFile{Path: p, Size: c.info.Size, MtimeNs: c.info.ModTime.UnixNano(), SHA256: c.sha256})
					processedFiles = append(processedFiles, p)
				}
			}
		}

		failedFiles = append(failedFiles, batchFailed...)
		r.sizer.RecordBatch(batchsizer.Metrics{Size: len(batch), ElapsedMs: time.Since(batchStart).Milliseconds(), ErrorCount: errCount + len(batch) - len(batchFiles)})

		batchIndex++
		if batchIndex%r.cfg.CheckpointEveryBatches == 0 {
			cp := &progress.Checkpoint{
				Collection: r.cfg.Collection, AllFiles: changed, ProcessedFiles: processedFiles,
				FailedFiles: failedFiles, LastBatchIndex: batchIndex, Counters: counters,
			}
			if err := r.deps.Checkpoints.Save(cp); err != nil {
				log.Warn("pipeline_checkpoint_save_failed", slog.String("error", err.Error()))
			}
		}

		runtime.GC()
	}

	if ctx.Err() != nil {
		log.Info("pipeline_interrupted", slog.Int("processed", len(processedFiles)))
		return &Result{
			FilesProcessed: len(processedFiles), FilesSkipped: stats.Unchanged, FilesDeleted: filesDeleted,
			EntitiesCreated: counters.EntitiesCreated, RelationsCreated: counters.RelationsCreated,
			ImplementationChunks: counters.ImplementationChunks, CacheHitRate: stats.UnchangedHitRate,
			WallTime: time.Since(start),
		}, ctx.Err()
	}

	if len(indexed) > 0 {
		if err := r.deps.FileState.UpdateBatch(indexed); err != nil {
			log.Warn("pipeline_filestate_refresh_failed", slog.String("error", err.Error()))
		}
	}
	if err := r.deps.Checkpoints.Clear(); err != nil {
		log.Warn("pipeline_checkpoint_clear_failed", slog.String("error", err.Error()))
	}

	result := &Result{
		FilesProcessed: len(processedFiles), FilesSkipped: stats.Unchanged, FilesDeleted: filesDeleted,
		EntitiesCreated: counters.EntitiesCreated, RelationsCreated: counters.RelationsCreated,
		ImplementationChunks: counters.ImplementationChunks, CacheHitRate: stats.UnchangedHitRate,
		WallTime: time.Since(start),
	}

	var finalErr error
	if result.FilesProcessed == 0 && len(failedFiles) > 0 {
		finalErr = errors.New("pipeline: zero files processed successfully")
	}

	log.Info("pipeline_complete",
		slog.Int("files_processed", result.FilesProcessed), slog.Int("files_skipped", result.FilesSkipped),
		slog.Int("entities_created", result.EntitiesCreated), slog.Int("relations_created", result.RelationsCreated),
		slog.Duration("wall_time", result.WallTime))

	return result, finalErr
}

// discover runs the scanner and reads every candidate file's content
// once, computing the sha256 the file-state comparison needs.
func (r *Runner) discover(ctx context.Context) ([]candidate, error) {
	opts := &scanner.ScanOptions{
		RootDir: r.cfg.RootDir, IncludePatterns: r.cfg.Include, ExcludePatterns: r.cfg.Exclude,
		RespectGitignore: r.cfg.RespectGitignore, MaxFileSize: r.cfg.MaxFileSize,
	}
	ch, err := r.deps.Scanner.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for res := range ch {
		if res.Error != nil {
			continue
		}

		var content []byte
		err := indexerr.Retry(ctx, fileReadRetryConfig, func() error {
			b, readErr := os.ReadFile(res.File.AbsPath)
			content = b
			return readErr
		})
		if err != nil {
			ie := indexerr.TransientError("file read failed after retries", err).WithDetail("file_path", res.File.AbsPath)
			r.deps.Logger.Warn("pipeline_file_read_failed", slogAttrs(indexerr.FormatForLog(ie))...)
			continue
		}
		candidates = append(candidates, candidate{info: *res.File, content: content, sha256: contenthash.HashBytes(content)})
	}
	return candidates, nil
}

// slogAttrs adapts an indexerr.FormatForLog map into slog.Attr args.
func slogAttrs(fields map[string]any) []any {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// sortLightFirst implements step 3's classification ordering: light
// files sort before standard, standard before deep, so quick wins land
// in the earliest batches. The main loop pulls batches off the front
// of this ordering at the sizer's current size, re-queried before
// every batch, so a RecordBatch call from one batch can shrink or grow
// the very next one this same run.
func (r *Runner) sortLightFirst(paths []string, byPath map[string]candidate) []string {
	sort.SliceStable(paths, func(i, j int) bool {
		ci, cj := Classify(byPath[paths[i]].info), Classify(byPath[paths[j]].info)
		return categoryRank(ci) < categoryRank(cj)
	})
	return paths
}

func categoryRank(c Category) int {
	switch c {
	case CategoryLight:
		return 0
	case CategoryStandard:
		return 1
	default:
		return 2
	}
}

// parseBatch runs C10 in parallel, unless the batch is small enough
// that a single goroutine with one dispatcher is cheaper to set up.
func (r *Runner) parseBatch(ctx context.Context, batch []string, byPath map[string]candidate) []workerpool.FileResult {
	tasks := make([]workerpool.FileTask, len(batch))
	for i, p := range batch {
		tasks[i] = workerpool.FileTask{Path: p, Content: byPath[p].content}
	}

	if len(batch) <= serialParseThreshold {
		dispatcher := r.deps.DispatcherFactory()
		defer dispatcher.Close()

		results := make([]workerpool.FileResult, len(tasks))
		for i, t := range tasks {
			results[i] = workerpool.FileResult{Path: t.Path, Parsed: dispatcher.ParseFile(ctx, t.Path, t.Content)}
		}
		return results
	}

	return r.pool.ParseAll(ctx, tasks)
}
