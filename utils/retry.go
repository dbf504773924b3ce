package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig holds the parameters for the retry strategy. Each failed
// attempt sleeps a random duration in [BackoffMin, BackoffMax] before the
// next one.
type RetryConfig struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	Logger      *logrus.Logger
}

// Do executes fn up to MaxAttempts times with jittered backoff between
// attempts. It returns nil on the first success, the last error once
// attempts are exhausted, or ctx.Err() if the context is cancelled while
// waiting.
func (r *RetryConfig) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < r.MaxAttempts {
			delay := r.jitter()
			r.Logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"max":       r.MaxAttempts,
				"backoff":   delay,
			}).Warnf("retry: %v", lastErr)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.MaxAttempts, lastErr)
}

func (r *RetryConfig) jitter() time.Duration {
	if r.BackoffMax <= r.BackoffMin {
		return r.BackoffMin
	}
	span := r.BackoffMax - r.BackoffMin
	return r.BackoffMin + time.Duration(rand.Int63n(int64(span)))
}
