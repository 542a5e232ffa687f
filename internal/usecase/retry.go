package usecase

import (
	"context"
	"fmt"
	"time"
)

// Retry runs op up to attempts times, sleeping delay between attempts. It
// retries only when op returns an error, commits nothing itself, and returns
// the last error once the budget is exhausted. The sleep honours ctx so a
// shutdown does not hang inside a backoff.
func Retry(ctx context.Context, attempts int, delay time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < attempts {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after attempt %d: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
