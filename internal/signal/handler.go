// Package signal cancels the CLI's root context on SIGINT or SIGTERM so
// in-flight retry loops stop sleeping and return their last error.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// SetupSignalHandler registers SIGINT and SIGTERM handlers.
// When a signal is received, it calls the onInterrupt callback (if non-nil),
// then cancels the context.
//
// The listening goroutine exits when either a signal arrives or ctx is done,
// and unregisters itself from the runtime's signal delivery.
//
// Example usage:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	signal.SetupSignalHandler(ctx, cancel, func() {
//	    logging.Warn("interrupted, waiting for in-flight batches")
//	})
func SetupSignalHandler(ctx context.Context, cancel context.CancelFunc, onInterrupt func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}()
}

// Interrupt records whether a signal cancelled a context.
type Interrupt struct {
	fired atomic.Bool
}

// WithInterrupt returns a child of parent that is cancelled on SIGINT or
// SIGTERM, plus an Interrupt that reports whether that happened. Callers
// must call the returned cancel function.
func WithInterrupt(parent context.Context, onInterrupt func()) (context.Context, context.CancelFunc, *Interrupt) {
	ctx, cancel := context.WithCancel(parent)
	in := &Interrupt{}
	SetupSignalHandler(ctx, cancel, func() {
		in.fired.Store(true)
		if onInterrupt != nil {
			onInterrupt()
		}
	})
	return ctx, cancel, in
}

// Fired reports whether a signal was received.
func (i *Interrupt) Fired() bool {
	return i != nil && i.fired.Load()
}
