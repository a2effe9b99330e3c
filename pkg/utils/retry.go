// Package utils holds small helpers shared across the service.
package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior. Zero durations keep
// the backoff defaults; a zero MaxElapsedTime never stops on elapsed time.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
	// OnRetry, when set, observes each failed attempt and the delay before
	// the next one.
	OnRetry backoff.Notify
}

// WithRetry executes the given operation with exponential backoff using
// provided options. Errors wrapped with backoff.Permanent abort immediately.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.MaxElapsedTime

	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}

	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}

	notify := opts.OnRetry
	if notify == nil {
		notify = func(error, time.Duration) {}
	}

	return backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, opts.MaxRetries), ctx),
		notify,
	)
}
