// Package notify formats announcements and delivers them to a chat bot.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"listing_watcher/internal/metrics"
	"listing_watcher/internal/retry"
)

var (
	// ErrSuppressed is returned by NotifyError once the error window is full.
	ErrSuppressed = errors.New("error notification suppressed")

	// ErrNotSent means no delivery was attempted because ctx ended while
	// waiting for a pacing slot. The message can be offered again later.
	ErrNotSent = errors.New("notification not sent")
)

// Sender delivers a single message to a chat destination.
type Sender interface {
	Name() string
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, png []byte) error
}

type Options struct {
	// MaxPerMinute paces deliveries; zero disables pacing.
	MaxPerMinute int
	Retry        retry.Policy
}

type Notifier struct {
	sender  Sender
	window  *ErrorWindow
	limiter *rate.Limiter
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(sender Sender, window *ErrorWindow, opts Options, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MaxPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxPerMinute)), 1)
	}
	if window == nil {
		window = NewErrorWindow(time.Hour, 5)
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.Once
	}
	return &Notifier{
		sender:  sender,
		window:  window,
		limiter: limiter,
		policy:  opts.Retry,
		metrics: m,
		logger:  logger.With("component", "notifier", "sender", sender.Name()),
	}
}

// Notify delivers text.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	return n.deliver(ctx, "text", func(ctx context.Context) error {
		return n.sender.SendText(ctx, text)
	})
}

// NotifyError delivers text unless the error window is already full, in
// which case it returns ErrSuppressed without sending.
func (n *Notifier) NotifyError(ctx context.Context, text string) error {
	if !n.window.Allow() {
		n.logger.Warn("error notification suppressed", "text", text)
		n.metrics.ObserveNotification("error", "suppressed")
		return ErrSuppressed
	}
	err := n.deliver(ctx, "error", func(ctx context.Context) error {
		return n.sender.SendText(ctx, text)
	})
	if errors.Is(err, ErrNotSent) {
		n.window.Release()
	}
	return err
}

// NotifyImage delivers a PNG image.
func (n *Notifier) NotifyImage(ctx context.Context, png []byte) error {
	return n.deliver(ctx, "image", func(ctx context.Context) error {
		return n.sender.SendImage(ctx, png)
	})
}

func (n *Notifier) deliver(ctx context.Context, kind string, send func(context.Context) error) error {
	err := retry.Do(ctx, n.policy, func(int) error {
		if err := n.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("%w: %v", ErrNotSent, err))
		}
		return send(ctx)
	}, func(attempt int, err error, wait time.Duration) {
		n.logger.Warn("delivery failed, retrying", "kind", kind, "attempt", attempt, "retry_in", wait, "error", err)
	})
	if errors.Is(err, ErrNotSent) {
		n.logger.Warn("delivery not attempted", "kind", kind, "error", err)
		n.metrics.ObserveNotification(kind, "not_sent")
		return fmt.Errorf("send %s: %w", kind, err)
	}
	if err != nil {
		n.logger.Error("delivery failed", "kind", kind, "error", err)
		n.metrics.ObserveNotification(kind, "failed")
		return fmt.Errorf("send %s: %w", kind, err)
	}

	n.logger.Info("notification sent", "kind", kind)
	n.metrics.ObserveNotification(kind, "sent")
	return nil
}
