package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var waits []time.Duration

	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Second},
		func(attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("boom")
			}
			return nil
		},
		func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) },
	)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cause := errors.New("unavailable")
	calls := 0

	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(int) error {
		calls++
		return cause
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	cause := errors.New("bad request")
	calls := 0

	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(int) error {
		calls++
		return Permanent(cause)
	}, nil)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(int) error {
		calls++
		return errors.New("x")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, func(int) error {
		calls++
		cancel()
		return errors.New("x")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
