package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"listing_watcher/internal/httpclient"
)

// HTTPRefresher establishes a session by visiting the landing page and
// collecting the cookies the site sets.
type HTTPRefresher struct {
	landingURL string
	timeout    time.Duration
	proxyURL   string
}

func NewHTTPRefresher(landingURL string, timeout time.Duration, proxyURL string) *HTTPRefresher {
	return &HTTPRefresher{landingURL: landingURL, timeout: timeout, proxyURL: proxyURL}
}

func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	u, err := url.Parse(r.landingURL)
	if err != nil {
		return "", fmt.Errorf("parse landing url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}
	client, err := httpclient.New(httpclient.Config{Timeout: r.timeout, ProxyURL: r.proxyURL, Jar: jar})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpclient.SetBrowserHeaders(req, "")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cookies := jar.Cookies(u)
	if len(cookies) == 0 {
		return "", fmt.Errorf("landing page set no cookies (status %d)", resp.StatusCode)
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; "), nil
}

// CommandRefresher delegates session establishment to an external program,
// typically a browser automation script that may wait for a human to pass a
// verification page. The token is the last non-empty line it prints.
type CommandRefresher struct {
	args   []string
	logger *slog.Logger
}

func NewCommandRefresher(args []string, logger *slog.Logger) *CommandRefresher {
	return &CommandRefresher{args: args, logger: logger.With("component", "session_command")}
}

func (r *CommandRefresher) Refresh(ctx context.Context) (string, error) {
	if len(r.args) == 0 {
		return "", errors.New("no refresh command configured")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.args[0], r.args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running refresh command", "command", r.args[0])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("refresh command timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("refresh command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	token := lastLine(stdout.String())
	if token == "" {
		return "", errors.New("refresh command printed no token")
	}
	return token, nil
}

func lastLine(s string) string {
	var last string
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

// ManualRefresher waits for an operator to write a new token into the store.
type ManualRefresher struct {
	store        TokenStore
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewManualRefresher(store TokenStore, pollInterval time.Duration, logger *slog.Logger) *ManualRefresher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &ManualRefresher{store: store, pollInterval: pollInterval, logger: logger.With("component", "session_manual")}
}

func (r *ManualRefresher) Refresh(ctx context.Context) (string, error) {
	baseline, err := r.store.Load()
	if err != nil && !errors.Is(err, ErrNoToken) {
		return "", err
	}

	r.logger.Warn("waiting for a new session token to be supplied manually")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no new token supplied: %w", ctx.Err())
		case <-ticker.C:
			token, err := r.store.Load()
			if err != nil {
				continue
			}
			if token != baseline {
				return token, nil
			}
		}
	}
}
