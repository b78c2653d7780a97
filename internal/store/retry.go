package store

import (
	"context"
	"time"
)

const (
	retryAttempts  = 4
	retryBaseDelay = 50 * time.Millisecond
)

// withRetry runs fn, retrying transient database conflicts with
// exponential backoff. Cancellation of ctx stops the retry loop.
func (s *Store) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == retryAttempts {
			return dbError(op, err)
		}

		s.logger.Debug("retrying transient database error",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
