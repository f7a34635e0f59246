package batchsizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClampsInitial(t *testing.T) {
	s := New(500, 1, 100)
	assert.Equal(t, 100, s.GetBatchSize())
}

func TestGrowsAfterConsecutiveCleanBatches(t *testing.T) {
	s := New(25, 1, 100)
	for i := 0; i < 4; i++ {
		s.RecordBatch(Metrics{Size: 25, ElapsedMs: 10})
		assert.Equal(t, 25, s.GetBatchSize())
	}
	s.RecordBatch(Metrics{Size: 25, ElapsedMs: 10})
	assert.Equal(t, 26, s.GetBatchSize())
}

func TestShrinksOnHighErrorRate(t *testing.T) {
	s := New(25, 1, 100)
	s.RecordBatch(Metrics{Size: 25, ErrorCount: 6}) // 24% error rate
	assert.Equal(t, 24, s.GetBatchSize())
}

func TestDoesNotShrinkAtExactlyTwentyPercent(t *testing.T) {
	s := New(25, 1, 100)
	s.RecordBatch(Metrics{Size: 25, ErrorCount: 5}) // exactly 20%
	assert.Equal(t, 25, s.GetBatchSize())
}

func TestHalvesOnMemoryPressure(t *testing.T) {
	s := New(40, 1, 100, WithMemoryThreshold(1000, func() int64 { return 2000 }))
	s.RecordBatch(Metrics{Size: 25})
	assert.Equal(t, 20, s.GetBatchSize())
}

func TestNeverShrinksBelowMin(t *testing.T) {
	s := New(1, 1, 100)
	s.RecordBatch(Metrics{Size: 25, ErrorCount: 10})
	assert.Equal(t, 1, s.GetBatchSize())
}

func TestErrorResetsCleanStreak(t *testing.T) {
	s := New(25, 1, 100)
	for i := 0; i < 4; i++ {
		s.RecordBatch(Metrics{Size: 25})
	}
	s.RecordBatch(Metrics{Size: 25, ErrorCount: 10}) // resets streak, shrinks
	assert.Equal(t, 24, s.GetBatchSize())

	for i := 0; i < 4; i++ {
		s.RecordBatch(Metrics{Size: 25})
	}
	assert.Equal(t, 24, s.GetBatchSize(), "streak must restart from zero after the reset")
}
