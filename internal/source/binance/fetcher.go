package binance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"listing_watcher/internal/fsutil"
	"listing_watcher/internal/httpclient"
	"listing_watcher/internal/metrics"
	"listing_watcher/internal/retry"
)

const maxBodySize = 16 << 20

var (
	ErrInterstitial     = errors.New("bot verification page returned")
	ErrSessionExpired   = errors.New("session expired")
	ErrUnrecognizedBody = errors.New("response is not the announcement page")
)

// DefaultSiteMarkers identify a genuine feed page.
var DefaultSiteMarkers = []string{"__APP_DATA"}

// DefaultInterstitialMarkers identify bot-verification pages served with 200.
var DefaultInterstitialMarkers = []string{
	"awsWafCookieDomainList",
	"gokuProps",
	"challenge-container",
	"cf-browser-verification",
	"Just a moment...",
}

// StatusError is a non-200 response that is not a session expiry.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// SessionProvider supplies and renews the cookie sent with feed requests.
type SessionProvider interface {
	Token(ctx context.Context) string
	Refresh(ctx context.Context) (string, error)
}

type FetcherConfig struct {
	URL                 string
	Timeout             time.Duration
	ProxyURL            string
	RawPath             string
	SiteMarkers         []string
	InterstitialMarkers []string
	Retry               retry.Policy
}

type Fetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	session SessionProvider
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFetcher(cfg FetcherConfig, session SessionProvider, m *metrics.Metrics, logger *slog.Logger) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	if len(cfg.SiteMarkers) == 0 {
		cfg.SiteMarkers = DefaultSiteMarkers
	}
	if cfg.InterstitialMarkers == nil {
		cfg.InterstitialMarkers = DefaultInterstitialMarkers
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		session: session,
		metrics: m,
		logger:  logger.With("component", "fetcher"),
	}, nil
}

// Fetch downloads the announcement page. Interstitials and expired sessions
// trigger a session refresh before the next attempt.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	token := f.session.Token(ctx)
	if token == "" {
		f.logger.Info("no session token, refreshing")
		token, _ = f.session.Refresh(ctx)
	}

	var body []byte
	err := retry.Do(ctx, f.cfg.Retry, func(attempt int) error {
		b, err := f.get(ctx, token)
		f.metrics.ObserveFetch(outcome(err))
		if err == nil {
			body = b
			return nil
		}

		if errors.Is(err, ErrInterstitial) || errors.Is(err, ErrSessionExpired) {
			f.logger.Warn("session rejected, refreshing", "attempt", attempt, "error", err)
			token, _ = f.session.Refresh(ctx)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		f.logger.Warn("fetch attempt failed",
			"attempt", attempt,
			"max_attempts", f.cfg.Retry.MaxAttempts,
			"retry_in", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.cfg.URL, err)
	}

	f.logger.Debug("feed fetched", "bytes", len(body))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpclient.SetBrowserHeaders(req, token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	f.saveRaw(body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode)
	default:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	if containsAny(body, f.cfg.InterstitialMarkers) {
		return nil, ErrInterstitial
	}
	if !containsAny(body, f.cfg.SiteMarkers) {
		return nil, ErrUnrecognizedBody
	}
	return body, nil
}

func (f *Fetcher) saveRaw(body []byte) {
	if f.cfg.RawPath == "" {
		return
	}
	if err := fsutil.WriteFileAtomic(f.cfg.RawPath, body, 0o644); err != nil {
		f.logger.Warn("failed to save raw response", "path", f.cfg.RawPath, "error", err)
	}
}

func containsAny(body []byte, markers []string) bool {
	for _, m := range markers {
		if m != "" && bytes.Contains(body, []byte(m)) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInterstitial):
		return "interstitial"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUnrecognizedBody):
		return "unrecognized"
	case errors.As(err, &se):
		return "status"
	default:
		return "network"
	}
}
