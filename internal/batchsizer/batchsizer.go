// Package batchsizer implements C4: the adaptive batch size controller
// described in spec §4.4, which the pipeline uses to size its file batches. No pack example covers adaptive
// batch sizing directly; this state machine is implemented against
// the stdlib per DESIGN.md's justification (a small, self-contained
// policy with no natural third-party library fit).
package batchsizer

import "sync"

// Metrics is one batch's outcome, fed back via Record.
type Metrics struct {
	Size       int
	ElapsedMs  int64
	ErrorCount int
}

// Sizer tracks the current adaptive batch size and the rolling
// history needed to grow/shrink it. Safe for concurrent use.
type Sizer struct {
	mu sync.Mutex

	min, max int
	size     int

	memoryThresholdMB int64
	residentMB         func() int64

	consecutiveClean int
	growAfter        int
}

// Option configures a Sizer at construction time.
type Option func(*Sizer)

// WithMemoryThreshold sets the resident-memory ceiling in MB above
// which the next recorded batch halves the size. A nil or omitted
// residentMB reading function disables the memory check entirely.
func WithMemoryThreshold(mb int64, residentMB func() int64) Option {
	return func(s *Sizer) {
		s.memoryThresholdMB = mb
		s.residentMB = residentMB
	}
}

// WithGrowAfter overrides the default 5-consecutive-clean-batch
// threshold before the size grows by one step.
func WithGrowAfter(n int) Option {
	return func(s *Sizer) { s.growAfter = n }
}

// New returns a Sizer with the given initial size and [min, max]
// bounds, clamping initial into range.
func New(initial, min, max int, opts ...Option) *Sizer {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}

	s := &Sizer{min: min, max: max, size: initial, growAfter: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBatchSize is the single read API: the current adaptive size.
func (s *Sizer) GetBatchSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// RecordBatch applies the policy from spec §4.4 to m, in priority
// order: memory pressure halves, a high error rate shrinks by one
// step, otherwise enough consecutive clean batches grow by one step.
func (s *Sizer) RecordBatch(m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overMemoryThreshold() {
		s.size = s.clamp(s.size / 2)
		s.consecutiveClean = 0
		return
	}

	errorRate := 0.0
	if m.Size > 0 {
		errorRate = float64(m.ErrorCount) / float64(m.Size)
	}

	if errorRate > 0.2 {
		s.size = s.clamp(s.size - 1)
		s.consecutiveClean = 0
		return
	}

	if m.ErrorCount > 0 {
		s.consecutiveClean = 0
		return
	}

	s.consecutiveClean++
	if s.consecutiveClean >= s.growAfter {
		s.size = s.clamp(s.size + 1)
		s.consecutiveClean = 0
	}
}

func (s *Sizer) overMemoryThreshold() bool {
	if s.residentMB == nil || s.memoryThresholdMB <= 0 {
		return false
	}
	return s.residentMB() > s.memoryThresholdMB
}

func (s *Sizer) clamp(n int) int {
	if n < s.min {
		return s.min
	}
	if n > s.max {
		return s.max
	}
	return n
}
