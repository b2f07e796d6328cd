package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	mu       sync.Mutex
	runs     int
	running  bool
	overlaps int
	deadline bool
	err      error
	hold     time.Duration
}

func (t *countingTask) Name() string { return "counting" }

func (t *countingTask) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.overlaps++
	}
	t.running = true
	t.runs++
	_, t.deadline = ctx.Deadline()
	t.mu.Unlock()

	time.Sleep(t.hold)

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	return t.err
}

func (t *countingTask) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyThenPeriodically(t *testing.T) {
	task := &countingTask{}
	s := NewScheduler(task, 20*time.Millisecond, time.Second, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return task.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.True(t, task.deadline, "each run gets a timeout")
}

func TestScheduler_FirstRunIsImmediate(t *testing.T) {
	task := &countingTask{}
	s := NewScheduler(task, time.Hour, time.Second, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return task.Runs() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_NoOverlapAndErrorsDoNotStop(t *testing.T) {
	task := &countingTask{hold: 15 * time.Millisecond, err: errors.New("boom")}
	s := NewScheduler(task, time.Millisecond, time.Second, discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return task.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	task.mu.Lock()
	defer task.mu.Unlock()
	assert.Zero(t, task.overlaps)
}

func TestScheduler_StopsBeforeFirstRunWhenCancelled(t *testing.T) {
	task := &countingTask{}
	s := NewScheduler(task, time.Hour, time.Second, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, task.Runs(), 1)
}
