package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"listing_watcher/internal/config"
	"listing_watcher/internal/domain"
	"listing_watcher/internal/metrics"
	"listing_watcher/internal/notify"
)

// ErrNoData marks a cycle that produced no usable feed. The seen set is left
// untouched.
var ErrNoData = errors.New("no data this cycle")

// Persistence is optional durable state for the watch loop. Nil stores are
// skipped.
type Persistence struct {
	SourceID  string
	Seen      SeenStore
	State     CycleStateStore
	TxManager TransactionManager
}

type WatchService struct {
	fetcher   Fetcher
	extractor Extractor
	formatter Formatter
	notifier  Notifier
	publisher Publisher
	store     Persistence
	config    config.MonitorConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex // serializes Run
	seen   domain.IdentitySet
	seeded bool
}

func NewWatchService(
	fetcher Fetcher,
	extractor Extractor,
	formatter Formatter,
	notifier Notifier,
	publisher Publisher,
	store Persistence,
	cfg config.MonitorConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WatchService {
	return &WatchService{
		fetcher:   fetcher,
		extractor: extractor,
		formatter: formatter,
		notifier:  notifier,
		publisher: publisher,
		store:     store,
		config:    cfg,
		metrics:   m,
		logger:    logger.With("component", "watch", "source", store.SourceID),
		seen:      domain.NewIdentitySet(),
	}
}

func (s *WatchService) Name() string { return "watch" }

// Seen returns a copy of the identities held between cycles.
func (s *WatchService) Seen() domain.IdentitySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewIdentitySet(s.seen.IDs()...)
}

// Run executes one cycle against the held seen set. Panics and failures are
// logged and reported through rate-limited error notifications; a no-data
// cycle is not an error for the caller.
func (s *WatchService) Run(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		s.seen = s.loadSeen(ctx)
		s.seeded = true
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			s.metrics.ObserveCycle("error", 0)
			err = fmt.Errorf("cycle panicked: %v", r)
			s.notifyError(ctx, fmt.Sprintf("❌ Monitor error: %v", r))
		}
	}()

	next, stats, err := s.Cycle(ctx, s.seen)
	s.seen = next

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoData):
		s.metrics.ObserveCycle("no_data", stats.Duration)
		return nil
	case ctx.Err() != nil:
		return err
	default:
		s.metrics.ObserveCycle("error", stats.Duration)
		s.notifyError(ctx, fmt.Sprintf("❌ Monitor error: %v", err))
		return err
	}
}

// Cycle fetches the feed once, notifies for identities not in seen and
// returns the identities to carry into the next cycle. On failure the
// returned set is seen itself.
func (s *WatchService) Cycle(ctx context.Context, seen domain.IdentitySet) (domain.IdentitySet, *domain.CycleStats, error) {
	start := time.Now()
	stats := &domain.CycleStats{CycleID: uuid.NewString()}
	logger := s.logger.With("cycle_id", stats.CycleID)
	if seen == nil {
		seen = domain.NewIdentitySet()
	}

	logger.Debug("starting cycle", "seen", seen.Len())

	doc, err := s.fetcher.Fetch(ctx)
	if err != nil {
		stats.Errors++
		stats.Duration = time.Since(start)
		if ctx.Err() != nil {
			return seen, stats, fmt.Errorf("fetch: %w", err)
		}
		logger.Error("fetch failed", "error", err)
		s.notifyError(ctx, fmt.Sprintf("❌ Fetch failed: %v", err))
		return seen, stats, fmt.Errorf("%w: fetch: %w", ErrNoData, err)
	}

	feed, err := s.extractor.Extract(doc)
	if err != nil {
		stats.Errors++
		stats.Duration = time.Since(start)
		logger.Warn("no announcements extracted", "error", err)
		return seen, stats, fmt.Errorf("%w: extract: %w", ErrNoData, err)
	}

	combined := feed.Combined(s.config.Dedup())
	current := domain.IdentitiesOf(combined)
	stats.Fetched = len(combined)

	if seen.Len() == 0 {
		stats.FirstRun = true
		logger.Info("first run, adopting current announcements",
			"count", current.Len(),
			"always_notify", s.config.AlwaysNotify,
		)
		if s.config.AlwaysNotify {
			for i := range combined {
				if !s.announce(ctx, logger, &combined[i], stats, true) {
					delete(current, combined[i].ID)
				}
			}
		}
	} else {
		for i := range combined {
			a := &combined[i]
			if seen.Contains(a.ID) {
				continue
			}
			stats.New++
			logger.Info("new announcement", "id", a.ID, "title", a.Title, "category", a.Category)
			if !s.announce(ctx, logger, a, stats, false) {
				delete(current, a.ID)
			}
		}
		if stats.New == 0 {
			logger.Debug("no new announcements")
		}
	}

	stats.Duration = time.Since(start)
	s.persist(ctx, logger, current, stats)

	result := "success"
	if stats.FirstRun {
		result = "first_run"
	}
	s.metrics.ObserveCycle(result, stats.Duration)
	s.metrics.AddNew(stats.New)
	s.metrics.SetSeen(current.Len())

	logger.Info("cycle completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"notified", stats.Notified,
		"published", stats.Published,
		"deferred", stats.Deferred,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return current, stats, nil
}

// announce reports false when the notification was never handed to the
// sender. Such records stay out of the seen set so the next cycle offers
// them again.
func (s *WatchService) announce(ctx context.Context, logger *slog.Logger, a *domain.Announcement, stats *domain.CycleStats, initial bool) bool {
	err := s.notifier.Notify(ctx, s.formatter.Format(*a, initial))
	switch {
	case errors.Is(err, notify.ErrNotSent):
		stats.Deferred++
		logger.Warn("notification deferred to next cycle", "id", a.ID, "error", err)
		return false
	case err != nil:
		stats.Errors++
		logger.Warn("notification failed", "id", a.ID, "error", err)
	default:
		stats.Notified++
	}

	if initial || s.publisher == nil {
		return true
	}
	if err := s.publisher.Publish(ctx, a, stats.CycleID); err != nil {
		stats.Errors++
		logger.Warn("publish failed", "id", a.ID, "error", err)
		return true
	}
	stats.Published++
	return true
}

func (s *WatchService) persist(ctx context.Context, logger *slog.Logger, current domain.IdentitySet, stats *domain.CycleStats) {
	if s.store.Seen == nil && s.store.State == nil {
		return
	}

	write := func(ctx context.Context) error {
		if s.store.Seen != nil {
			if err := s.store.Seen.Replace(ctx, s.store.SourceID, current); err != nil {
				return fmt.Errorf("replace seen ids: %w", err)
			}
		}
		if s.store.State != nil {
			state, err := s.store.State.Get(ctx, s.store.SourceID)
			if err != nil {
				return fmt.Errorf("get cycle state: %w", err)
			}
			state.SourceID = s.store.SourceID
			state.LastCycleAt = time.Now()
			state.LastCycleID = stats.CycleID
			state.TotalNotified += int64(stats.Notified)
			if err := s.store.State.Update(ctx, state); err != nil {
				return fmt.Errorf("update cycle state: %w", err)
			}
		}
		return nil
	}

	var err error
	if s.store.TxManager != nil {
		err = s.store.TxManager.WithTransaction(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		logger.Error("failed to persist cycle", "error", err)
	}
}

func (s *WatchService) loadSeen(ctx context.Context) domain.IdentitySet {
	if s.store.Seen == nil {
		return domain.NewIdentitySet()
	}

	ids, err := s.store.Seen.Load(ctx, s.store.SourceID)
	if err != nil {
		s.logger.Error("failed to load seen ids, starting empty", "error", err)
		return domain.NewIdentitySet()
	}
	if ids == nil {
		ids = domain.NewIdentitySet()
	}
	s.logger.Info("seen ids restored", "count", ids.Len())
	s.metrics.SetSeen(ids.Len())
	return ids
}

func (s *WatchService) notifyError(ctx context.Context, text string) {
	if err := s.notifier.NotifyError(ctx, text); err != nil {
		s.logger.Warn("error notification not delivered", "error", err)
	}
}
