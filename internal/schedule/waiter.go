package schedule

import (
	"context"
	"time"

	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
)

// Waiter blocks until a start time, logging a countdown.
type Waiter struct {
	log   *logging.Logger
	now   func() time.Time
	sleep ratelimit.SleepFunc
}

// NewWaiter returns a waiter on the wall clock.
func NewWaiter() *Waiter {
	return &Waiter{log: logging.New("schedule"), now: time.Now, sleep: ratelimit.Sleep}
}

// WaitUntil returns once target is reached, immediately if it already
// passed, or with ctx's error if ctx ends first.
func (w *Waiter) WaitUntil(ctx context.Context, target time.Time) error {
	remaining := target.Sub(w.now())
	if remaining <= 0 {
		return nil
	}
	w.log.Info("job deferred until %s (%s)", target.Format(time.DateTime), logging.FormatDuration(remaining))

	for {
		remaining = target.Sub(w.now())
		if remaining <= 0 {
			w.log.Info("start time reached")
			return nil
		}

		interval := min(adaptiveInterval(remaining), remaining)
		if err := w.sleep(ctx, interval); err != nil {
			return err
		}
		if left := target.Sub(w.now()); left > 0 && interval >= 10*time.Second {
			w.log.Debug("%s until start", logging.FormatDuration(left))
		}
	}
}

// adaptiveInterval returns the countdown interval for the remaining time.
func adaptiveInterval(remaining time.Duration) time.Duration {
	switch {
	case remaining > time.Hour:
		return 60 * time.Second
	case remaining > 10*time.Minute:
		return 30 * time.Second
	case remaining > time.Minute:
		return 10 * time.Second
	default:
		return 1 * time.Second
	}
}
