package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"listing_watcher/internal/domain"
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type Extractor interface {
	Extract(doc []byte) (*domain.Feed, error)
}

type Formatter interface {
	Format(a domain.Announcement, initial bool) string
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
	NotifyError(ctx context.Context, text string) error
}

type SeenStore interface {
	Load(ctx context.Context, sourceID string) (domain.IdentitySet, error)
	Replace(ctx context.Context, sourceID string, ids domain.IdentitySet) error
}

type CycleStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.CycleState, error)
	Update(ctx context.Context, state *domain.CycleState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, a *domain.Announcement, cycleID string) error
	Close() error
}
