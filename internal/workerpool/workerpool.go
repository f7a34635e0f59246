// Package workerpool implements C10 (spec §4.11): parallel file
// parsing across a bounded number of OS-level workers. Each worker
// owns its own *chunk.Dispatcher — tree-sitter's Parser is not safe
// for concurrent use, so workers never share mutable state; every
// worker returns its ParserResult by value and the orchestrator
// re-aggregates on the main thread.
//
// Grounded on the host's goroutine/channel fan-out idiom in
// scanner.go's scan() plus original_source's parallel_processor.py
// concept (bounded worker count, per-file timeout, memory-triggered
// throttling), built on golang.org/x/sync/errgroup for
// context-cancellable bounded fan-out.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rlefko/codeindexer/internal/chunk"
)

// FileTask is one file queued for parallel parsing.
type FileTask struct {
	Path    string
	Content []byte
}

// FileResult is one file's outcome: either a successful ParserResult or
// a failure (timeout) recorded without aborting the rest of the batch.
type FileResult struct {
	Path     string
	Parsed   chunk.ParserResult
	Err      error
	TimedOut bool
}

// MemoryMonitor reports current resident memory in MB; abstracted so
// tests can simulate pressure without allocating real memory.
type MemoryMonitor func() int64

// DispatcherFactory returns a fresh, unshared *chunk.Dispatcher for one
// worker's exclusive use.
type DispatcherFactory func() *chunk.Dispatcher

// Pool fans C5's dispatcher out across a bounded number of goroutines.
type Pool struct {
	factory           DispatcherFactory
	perFileTimeout    time.Duration
	memoryThresholdMB int64
	residentMB        MemoryMonitor

	mu      sync.Mutex
	workers int
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithMemoryThreshold sets the resident-memory ceiling in MB above
// which the pool halves its worker count and forces a GC before the
// next submission. A nil monitor disables the check.
func WithMemoryThreshold(mb int64, monitor MemoryMonitor) Option {
	return func(p *Pool) {
		p.memoryThresholdMB = mb
		p.residentMB = monitor
	}
}

// New returns a Pool sized to min(configured, runtime.NumCPU()-1)
// (never below 1), with perFileTimeout defaulting to 30s when <= 0.
// factory is called once per worker goroutine per ParseAll call.
func New(factory DispatcherFactory, configured int, perFileTimeout time.Duration, opts ...Option) *Pool {
	if perFileTimeout <= 0 {
		perFileTimeout = 30 * time.Second
	}
	max := runtime.NumCPU() - 1
	if max < 1 {
		max = 1
	}
	if configured > 0 && configured < max {
		max = configured
	}

	p := &Pool{factory: factory, perFileTimeout: perFileTimeout, workers: max}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers reports the pool's current worker count (post any
// memory-pressure halving).
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// ParseAll parses every task, fanned out across the pool's current
// worker count. Memory pressure is checked once before the batch
// starts; crossing the threshold halves the worker count for this and
// every later call and forces a GC.
func (p *Pool) ParseAll(ctx context.Context, tasks []FileTask) []FileResult {
	p.checkMemoryPressure()

	results := make([]FileResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := p.Workers()
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskIdx := make(chan int, len(tasks))
	for i := range tasks {
		taskIdx <- i
	}
	close(taskIdx)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			dispatcher := p.factory()
			defer dispatcher.Close()

			for i := range taskIdx {
				results[i] = p.parseOne(gctx, dispatcher, tasks[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// parseOne runs dispatcher against one file under its own timeout,
// independent of every other worker's goroutine and state.
func (p *Pool) parseOne(ctx context.Context, dispatcher *chunk.Dispatcher, task FileTask) FileResult {
	fctx, cancel := context.WithTimeout(ctx, p.perFileTimeout)
	defer cancel()

	done := make(chan chunk.ParserResult, 1)
	go func() {
		done <- dispatcher.ParseFile(fctx, task.Path, task.Content)
	}()

	select {
	case parsed := <-done:
		return FileResult{Path: task.Path, Parsed: parsed}
	case <-fctx.Done():
		return FileResult{Path: task.Path, Err: fmt.Errorf("parse timed out after %s", p.perFileTimeout), TimedOut: true}
	}
}

func (p *Pool) checkMemoryPressure() {
	if p.residentMB == nil || p.memoryThresholdMB <= 0 {
		return
	}
	if p.residentMB() <= p.memoryThresholdMB {
		return
	}

	p.mu.Lock()
	if p.workers > 1 {
		p.workers /= 2
	}
	p.mu.Unlock()

	runtime.GC()
}
