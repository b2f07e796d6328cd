package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Task is a unit of periodic work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler struct {
	task       Task
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(task Task, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Scheduler{
		task:       task,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler", "task", task.Name()),
	}
}

// Start runs the task immediately and then again interval after each run
// finishes, until ctx is done. Runs never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "run_timeout", s.runTimeout)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runTask(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	if err := s.task.Run(runCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("task failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("task finished", "duration", time.Since(start))
}
