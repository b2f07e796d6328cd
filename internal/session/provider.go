package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"listing_watcher/internal/metrics"
)

// Refresher establishes a new session and returns its token. Implementations
// may block on a human completing a verification step; the provider bounds
// the call with its wait timeout.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Provider owns the session token used to authorize feed requests.
type Provider struct {
	store       TokenStore
	refresher   Refresher
	waitTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex // guards token, updatedAt, loaded
	token     string
	updatedAt time.Time
	loaded    bool

	refreshMu sync.Mutex // one refresh at a time
}

func NewProvider(store TokenStore, refresher Refresher, waitTimeout time.Duration, logger *slog.Logger) *Provider {
	if waitTimeout <= 0 {
		waitTimeout = 2 * time.Minute
	}
	return &Provider{
		store:       store,
		refresher:   refresher,
		waitTimeout: waitTimeout,
		logger:      logger.With("component", "session"),
		now:         time.Now,
	}
}

// WithMetrics records refresh outcomes on m.
func (p *Provider) WithMetrics(m *metrics.Metrics) *Provider {
	p.metrics = m
	return p
}

// Token returns the current token, loading it from the store on first use.
// An empty string means no token is available.
func (p *Provider) Token(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded || p.token != "" {
		return p.token
	}
	p.loaded = true

	token, err := p.store.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		p.logger.Info("no stored session token")
	case err != nil:
		p.logger.Warn("failed to load session token", "error", err)
	default:
		p.token = token
		p.updatedAt = p.now()
		p.logger.Info("loaded session token", "token", Mask(token))
	}
	return p.token
}

// UpdatedAt reports when the in-memory token last changed.
func (p *Provider) UpdatedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updatedAt
}

// Refresh obtains a new token and persists it. On failure it returns the last
// known token, possibly empty, together with the error.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if p.refresher == nil {
		return p.Token(ctx), errors.New("no session refresher configured")
	}

	p.logger.Info("refreshing session token", "wait_timeout", p.waitTimeout)

	refreshCtx, cancel := context.WithTimeout(ctx, p.waitTimeout)
	defer cancel()

	token, err := p.refresher.Refresh(refreshCtx)
	token = strings.TrimSpace(token)
	if err == nil && token == "" {
		err = errors.New("refresher returned an empty token")
	}
	p.metrics.ObserveSessionRefresh(err == nil)
	if err != nil {
		p.logger.Error("session refresh failed", "error", err)
		return p.Token(ctx), fmt.Errorf("refresh session: %w", err)
	}

	if err := p.replace(token); err != nil {
		p.logger.Error("failed to persist session token", "error", err)
	}
	p.logger.Info("session token refreshed", "token", Mask(token))
	return token, nil
}

// Set accepts an externally supplied token and persists it.
func (p *Provider) Set(raw string) bool {
	token := strings.TrimSpace(raw)
	if token == "" {
		return false
	}
	if err := p.replace(token); err != nil {
		p.logger.Error("failed to persist session token", "error", err)
		return false
	}
	p.logger.Info("session token set", "token", Mask(token))
	return true
}

func (p *Provider) replace(token string) error {
	p.mu.Lock()
	p.token = token
	p.updatedAt = p.now()
	p.loaded = true
	p.mu.Unlock()

	return p.store.Save(token)
}

// Mask shortens a token for logging.
func Mask(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + fmt.Sprintf("(%d chars)", len(token))
}
