// Package retry runs an operation with bounded attempts and exponential
// backoff. Both the feed fetcher and the notifier go through it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation. Attempt n (0-based) is followed by a
// wait of InitialBackoff * 2^n, capped at MaxBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Once is a policy that never retries.
var Once = Policy{MaxAttempts: 1}

// NotifyFunc is called before sleeping between attempts.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Permanent wraps err so that Do stops retrying and returns it as is.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts is reached. fn receives the 1-based attempt number.
func Do(ctx context.Context, p Policy, fn func(attempt int) error, notify NotifyFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	permanent := false
	op := func() error {
		attempt++
		err := fn(attempt)
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			permanent = true
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx), onRetry)
	if err == nil || permanent {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return fmt.Errorf("after %d attempts: %w", attempt, err)
}
