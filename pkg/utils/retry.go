package utils

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times with a fixed backoff between attempts.
// It returns nil on the first success, the last error otherwise.
// Context cancellation aborts the wait and returns ctx.Err().
//
// This is intentionally fixed-backoff: it is used for fire-and-forget status
// delivery where predictable, short retry windows matter more than politeness.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
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
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
