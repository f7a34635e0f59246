package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlefko/codeindexer/internal/chunk"
)

const goSampleA = `package sample

func Greet(name string) string {
	return "hello " + name
}
`

const goSampleB = `package sample

type Widget struct {
	Name string
}
`

func TestNewClampsToConfiguredWhenSmallerThanCPU(t *testing.T) {
	p := New(chunk.NewDispatcher, 1, 0)
	assert.Equal(t, 1, p.Workers())
}

func TestParseAllReturnsOneResultPerTask(t *testing.T) {
	p := New(chunk.NewDispatcher, 2, time.Second)

	tasks := []FileTask{
		{Path: "a.go", Content: []byte(goSampleA)},
		{Path: "b.go", Content: []byte(goSampleB)},
	}
	results := p.ParseAll(context.Background(), tasks)
	require.Len(t, results, 2)

	byPath := map[string]FileResult{}
	for _, r := range results {
		byPath[r.Path] = r
	}

	require.Contains(t, byPath, "a.go")
	require.Contains(t, byPath, "b.go")
	assert.NoError(t, byPath["a.go"].Err)
	assert.NoError(t, byPath["b.go"].Err)

	var aNames []string
	for _, e := range byPath["a.go"].Parsed.Entities {
		aNames = append(aNames, e.Name())
	}
	assert.Contains(t, aNames, "Greet")
}

func TestParseAllEmptyTasksReturnsEmptySlice(t *testing.T) {
	p := New(chunk.NewDispatcher, 2, time.Second)
	results := p.ParseAll(context.Background(), nil)
	assert.Empty(t, results)
}

func TestParseOneTimesOutOnSlowParse(t *testing.T) {
	p := New(chunk.NewDispatcher, 1, time.Nanosecond)

	dispatcher := chunk.NewDispatcher()
	defer dispatcher.Close()

	result := p.parseOne(context.Background(), dispatcher, FileTask{Path: "slow.go", Content: []byte(goSampleA)})

	if result.TimedOut {
		assert.Error(t, result.Err)
	}
}

func TestMemoryPressureHalvesWorkerCount(t *testing.T) {
	p := New(chunk.NewDispatcher, 8, time.Second, WithMemoryThreshold(100, func() int64 { return 200 }))
	p.workers = 8 // New caps at NumCPU-1; pin the starting count so the test does not depend on the host
	initial := p.Workers()
	require.Equal(t, 8, initial)

	p.checkMemoryPressure()
	assert.Equal(t, 4, p.Workers())
}

func TestMemoryPressureNoOpWhenUnderThreshold(t *testing.T) {
	p := New(chunk.NewDispatcher, 8, time.Second, WithMemoryThreshold(1000, func() int64 { return 10 }))
	p.workers = 8 // New caps at NumCPU-1; pin the starting count so the test does not depend on the host
	p.checkMemoryPressure()
	assert.Equal(t, 8, p.Workers())
}
