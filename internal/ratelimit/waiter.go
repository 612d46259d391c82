package ratelimit

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepFunc is the signature of Sleep, so retry loops can swap in a fake
// clock in tests.
type SleepFunc func(ctx context.Context, d time.Duration) error
