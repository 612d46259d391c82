// Package fastmode rates every image as its own concurrent retry loop
// against a single provider adapter. There is no grouping and no shared
// rate gate: each item retries with exponential backoff until it succeeds,
// hits a permanent failure, or exhausts a wall-clock retry budget.
package fastmode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/notification"
	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
)

// DefaultMaxRetryTime bounds how long a single item keeps retrying.
const DefaultMaxRetryTime = 6 * time.Hour

// ProgressProvider is the provider name carried by progress messages.
const ProgressProvider = "batch-processor"

// ErrNoItems is returned when ProcessConcurrent is called with no items.
var ErrNoItems = errors.New("no images provided")

// Options tunes the engine. Zero values take the defaults.
type Options struct {
	MaxRetryTime time.Duration
	Backoff      ai.BackoffPolicy
	// DisableProgress turns off SHOOT_PROGRESS broadcasts.
	DisableProgress bool
}

// Result is the terminal outcome for one item.
type Result struct {
	ImageID        string        `json:"imageId"`
	Success        bool          `json:"success"`
	Rating         *ai.Rating    `json:"rating,omitempty"`
	Error          string        `json:"error,omitempty"`
	Attempts       int           `json:"attempts"`
	TotalRetryTime time.Duration `json:"totalRetryTime"`
}

// Engine runs fast-mode jobs. It is safe for concurrent use by multiple
// callers.
type Engine struct {
	opts     Options
	notifier notification.Notifier
	log      *logging.Logger
	now      func() time.Time
	sleep    ratelimit.SleepFunc
}

// New returns an engine. notifier may be nil.
func New(opts Options, notifier notification.Notifier) *Engine {
	if opts.MaxRetryTime <= 0 {
		opts.MaxRetryTime = DefaultMaxRetryTime
	}
	return &Engine{
		opts:     opts,
		notifier: notifier,
		log:      logging.New("fast-mode"),
		now:      time.Now,
		sleep:    ratelimit.Sleep,
	}
}

// ProcessConcurrent starts one retry loop per item and waits for all of
// them. The returned slice matches items in length and order. Item failures
// are reported in their Result, never as the returned error.
func (e *Engine) ProcessConcurrent(ctx context.Context, userID, jobID string, items []ai.Image, adapter ai.Adapter, prompt, systemPrompt string) ([]Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	e.log.Info("starting concurrent processing of %d images for user %s", len(items), userID)

	results := make([]Result, len(items))
	var processed atomic.Int64
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item ai.Image) {
			defer wg.Done()
			req := ai.SingleImageRequest{Image: item, Prompt: prompt, SystemPrompt: systemPrompt}
			results[i] = e.processWithRetry(ctx, adapter, req)
			if results[i].Success {
				done := int(processed.Add(1))
				e.broadcast(userID, jobID, done, len(items))
			}
		}(i, item)
	}
	wg.Wait()

	succeeded := int(processed.Load())
	e.log.Info("completed: %d/%d successful (%.1f%%)", succeeded, len(items), 100*float64(succeeded)/float64(len(items)))
	return results, nil
}

// processWithRetry loops until the item succeeds, fails permanently, the
// retry budget is spent, or ctx ends.
func (e *Engine) processWithRetry(ctx context.Context, adapter ai.Adapter, req ai.SingleImageRequest) Result {
	start := e.now()
	id := req.Image.ID

	for attempt := 0; ; attempt++ {
		rating, err := callAdapter(ctx, adapter, req)
		elapsed := e.now().Sub(start)
		if err == nil {
			if rating.ImageID == "" {
				rating.ImageID = id
			}
			return Result{ImageID: id, Success: true, Rating: &rating, Attempts: attempt + 1, TotalRetryTime: elapsed}
		}

		failed := Result{ImageID: id, Error: err.Error(), Attempts: attempt + 1, TotalRetryTime: elapsed}
		f := ai.Classify(err)
		if f.Kind == ai.Permanent {
			e.log.Error("image %s failed permanently on attempt %d: %v", id, attempt+1, err)
			return failed
		}
		if elapsed >= e.opts.MaxRetryTime {
			e.log.Error("image %s failed after %d attempts (%s): %v", id, attempt+1, logging.FormatDuration(elapsed), err)
			return failed
		}

		delay := e.opts.Backoff.Delay(attempt, f)
		e.log.Warn("image %s attempt %d failed: %v. Retrying in %s", id, attempt+1, err, delay)
		if err := e.sleep(ctx, delay); err != nil {
			failed.TotalRetryTime = e.now().Sub(start)
			e.log.Warn("image %s abandoned after %d attempts: %v", id, attempt+1, err)
			return failed
		}
	}
}

// callAdapter turns an adapter panic into a transient failure so one bad
// item cannot take down the whole job.
func callAdapter(ctx context.Context, adapter ai.Adapter, req ai.SingleImageRequest) (rating ai.Rating, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ai.NewTransient(0, fmt.Errorf("adapter panic: %v", r))
		}
	}()
	return adapter.ProcessSingleImage(ctx, req)
}

func (e *Engine) broadcast(userID, jobID string, processed, total int) {
	if e.opts.DisableProgress || e.notifier == nil {
		return
	}
	e.notifier.BroadcastToUser(userID, notification.NewShootProgress(
		userID, jobID, ProgressProvider, notification.StatusProcessing, processed, total, e.now()))
}
