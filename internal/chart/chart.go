// Package chart periodically captures a chart image and forwards it to the
// chat destination.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"listing_watcher/internal/httpclient"
	"listing_watcher/internal/metrics"
)

const maxImageSize = 8 << 20

var (
	pngMagic = []byte("\x89PNG\r\n\x1a\n")

	ErrNotPNG = errors.New("capture is not a PNG image")
)

// Capturer produces a PNG rendering of the chart.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// ImageNotifier delivers a PNG to the chat destination.
type ImageNotifier interface {
	NotifyImage(ctx context.Context, png []byte) error
}

// HTTPCapturer downloads a pre-rendered chart image.
type HTTPCapturer struct {
	url    string
	client *http.Client
}

func NewHTTPCapturer(url string, timeout time.Duration, proxyURL string) (*HTTPCapturer, error) {
	if url == "" {
		return nil, errors.New("chart image url is required")
	}
	client, err := httpclient.New(httpclient.Config{Timeout: timeout, ProxyURL: proxyURL})
	if err != nil {
		return nil, err
	}
	return &HTTPCapturer{url: url, client: client}, nil
}

func (c *HTTPCapturer) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpclient.SetBrowserHeaders(req, "")
	req.Header.Set("Accept", "image/png,image/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download chart: status %d", resp.StatusCode)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read chart: %w", err)
	}
	if !bytes.HasPrefix(img, pngMagic) {
		return nil, ErrNotPNG
	}
	return img, nil
}

// Job captures the chart and sends it on every run. It keeps no state
// between runs.
type Job struct {
	capturer Capturer
	notifier ImageNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewJob(capturer Capturer, notifier ImageNotifier, m *metrics.Metrics, logger *slog.Logger) *Job {
	return &Job{
		capturer: capturer,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "chart"),
	}
}

func (j *Job) Name() string { return "chart" }

func (j *Job) Run(ctx context.Context) error {
	img, err := j.capturer.Capture(ctx)
	if err != nil {
		j.metrics.ObserveChart(false)
		return fmt.Errorf("capture chart: %w", err)
	}

	if err := j.notifier.NotifyImage(ctx, img); err != nil {
		j.metrics.ObserveChart(false)
		return fmt.Errorf("send chart: %w", err)
	}

	j.metrics.ObserveChart(true)
	j.logger.Info("chart sent", "bytes", len(img))
	return nil
}
