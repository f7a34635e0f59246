package indexerr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("embedder",
		WithMaxFailures(3),
		WithResetTimeout(1*time.Second),
	)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error {
			return errors.New("error")
		})
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error {
		return nil
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("store",
		WithMaxFailures(2),
		WithResetTimeout(50*time.Millisecond),
	)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error {
			return errors.New("error")
		})
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	executed := false
	err := cb.Execute(func() error {
		executed = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RecordSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("embedder", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, 2, cb.Failures())

	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecuteWithResult_FallsBackWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(1))
	_ = cb.Execute(func() error { return errors.New("trip it") })
	require.Equal(t, StateOpen, cb.State())

	result, err := ExecuteWithResult(cb,
		func() (int, error) { return 1, nil },
		func() (int, error) { return -1, nil },
	)

	assert.NoError(t, err)
	assert.Equal(t, -1, result)
}
