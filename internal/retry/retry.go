// Package retry runs an operation a bounded number of times with
// exponential backoff.
package retry

import (
	"context"
	"time"
)

// Do calls fn up to attempts times, doubling the wait after each
// failure. It returns nil on the first success, the last error once
// attempts are exhausted, and the context error if ctx ends while
// waiting.
func Do(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	wait := backoff
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			wait *= 2
		}
	}
	return lastErr
}
