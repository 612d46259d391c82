// Package groups rates images in provider-sized groups under a bounded
// worker pool, retrying each group as a unit.
//
// Unlike fast mode, a group that exhausts its retries fails the whole call:
// RunBatches returns an error and ratings from sibling groups are discarded.
package groups

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
	"github.com/CodexForgeBR/cull-engine/internal/telemetry"
)

// Defaults applied when a Request leaves the field unset.
const (
	DefaultConcurrency = 3
	DefaultMaxRetries  = 5
)

const (
	baseBackoff = time.Second
	maxJitter   = 500 * time.Millisecond
)

var (
	// ErrUnknownProvider is returned when the provider id is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrRetriesExhausted is returned when one group fails every attempt.
	ErrRetriesExhausted = errors.New("batch failed after retries")
)

// CapabilityLookup resolves provider limits.
type CapabilityLookup interface {
	Get(id string) (providers.Capability, bool)
}

// PayloadFunc resolves an image id to the payload sent to the provider.
type PayloadFunc func(ctx context.Context, id string) (ai.Image, error)

// Request describes one multi-group run.
type Request struct {
	ProviderID string
	ItemIDs    []string
	ToPayload  PayloadFunc
	Prompt     string
	Submit     ai.SubmitFunc
	// Concurrency is the worker count; zero means DefaultConcurrency.
	Concurrency int
	// MaxRetries is the number of retries after the first submit; nil
	// means DefaultMaxRetries and zero means a single attempt.
	MaxRetries *int
}

// Runner executes group runs and reports them to a telemetry store.
type Runner struct {
	providers CapabilityLookup
	telemetry *telemetry.Store
	log       *logging.Logger
	tracer    trace.Tracer

	sleep  ratelimit.SleepFunc
	jitter func() time.Duration
	newID  func() string
	now    func() time.Time
}

// NewRunner returns a runner. store may be nil to disable telemetry.
func NewRunner(lookup CapabilityLookup, store *telemetry.Store) *Runner {
	return &Runner{
		providers: lookup,
		telemetry: store,
		log:       logging.New("groups"),
		tracer:    otel.Tracer("github.com/CodexForgeBR/cull-engine/internal/groups"),
		sleep:     ratelimit.Sleep,
		jitter:    func() time.Duration { return rand.N(maxJitter) },
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		now:       time.Now,
	}
}

type group struct {
	id  string
	ids []string
}

// RunBatches splits ItemIDs into chunks of the provider's MaxBatchImages and
// submits them with Concurrency workers. Ratings come back flattened in
// group order. The first group to exhaust its retries makes the whole call
// fail: its worker stops and no worker claims another group. Groups already
// in flight run to completion and their ratings are discarded.
func (r *Runner) RunBatches(ctx context.Context, req Request) ([]ai.Rating, error) {
	capability, ok := r.providers.Get(req.ProviderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.ProviderID)
	}
	if req.Submit == nil {
		return nil, errors.New("submit function is required")
	}

	size := max(capability.MaxBatchImages, 1)
	var batches []group
	for i := 0; i < len(req.ItemIDs); i += size {
		end := min(i+size, len(req.ItemIDs))
		batches = append(batches, group{id: r.newID(), ids: req.ItemIDs[i:end]})
	}
	if len(batches) == 0 {
		return []ai.Rating{}, nil
	}

	for _, b := range batches {
		r.record(telemetry.Event{Kind: telemetry.EventScheduled, ProviderID: req.ProviderID, BatchID: b.id, Total: len(b.ids)})
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	concurrency = min(concurrency, len(batches))
	maxRetries := DefaultMaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	r.log.Info("running %d images for %s in %d groups of up to %d with %d workers",
		len(req.ItemIDs), req.ProviderID, len(batches), size, concurrency)

	results := make([][]ai.Rating, len(batches))
	var (
		cursor atomic.Int64
		failed atomic.Bool
		g      errgroup.Group
	)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for !failed.Load() {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(batches) {
					return nil
				}
				ratings, err := r.runGroup(ctx, req, batches[idx], maxRetries)
				if err != nil {
					failed.Store(true)
					return err
				}
				results[idx] = ratings
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ai.Rating
	for _, ratings := range results {
		out = append(out, ratings...)
	}
	if out == nil {
		out = []ai.Rating{}
	}
	return out, nil
}

// runGroup submits one group until it succeeds or spends maxRetries retries.
func (r *Runner) runGroup(ctx context.Context, req Request, b group, maxRetries int) (_ []ai.Rating, err error) {
	ctx, span := r.tracer.Start(ctx, "groups.run_group", trace.WithAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.String("batch.id", b.id),
		attribute.Int("batch.size", len(b.ids)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := r.now()
	r.record(telemetry.Event{Kind: telemetry.EventStarted, ProviderID: req.ProviderID, BatchID: b.id})

	fail := func(err error) ([]ai.Rating, error) {
		r.record(telemetry.Event{Kind: telemetry.EventFailed, ProviderID: req.ProviderID, BatchID: b.id, Error: err.Error()})
		r.log.Error("batch %s for %s failed: %v", b.id, req.ProviderID, err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	images, err := r.payload(ctx, req, b.ids)
	if err != nil {
		return fail(err)
	}

	for attempt := 0; ; attempt++ {
		span.SetAttributes(attribute.Int("batch.attempts", attempt+1))
		res, submitErr := req.Submit(ctx, ai.GroupRequest{ProviderID: req.ProviderID, Images: images, Prompt: req.Prompt})
		if submitErr == nil && res.OK {
			took := r.now().Sub(start)
			r.record(telemetry.Event{Kind: telemetry.EventCompleted, ProviderID: req.ProviderID, BatchID: b.id, Took: took})
			r.log.Debug("batch %s for %s completed in %s", b.id, req.ProviderID, took)
			return res.Ratings, nil
		}

		if attempt >= maxRetries {
			cause := "provider rejected the batch"
			if submitErr != nil {
				cause = submitErr.Error()
			}
			return fail(fmt.Errorf("%w: batch %s (%d images) after %d attempts: %s",
				ErrRetriesExhausted, b.id, len(b.ids), attempt+1, cause))
		}

		backoff := res.RetryAfter
		if backoff <= 0 {
			backoff = (baseBackoff << min(attempt, 30)) + r.jitter()
		}
		r.record(telemetry.Event{Kind: telemetry.EventRateLimit, ProviderID: req.ProviderID, BatchID: b.id, RetryAfter: backoff})
		r.log.Warn("batch %s for %s attempt %d not accepted, retrying in %s", b.id, req.ProviderID, attempt+1, backoff)

		if err := r.sleep(ctx, backoff); err != nil {
			return fail(err)
		}
	}
}

func (r *Runner) payload(ctx context.Context, req Request, ids []string) ([]ai.Image, error) {
	images := make([]ai.Image, len(ids))
	for i, id := range ids {
		if req.ToPayload == nil {
			images[i] = ai.Image{ID: id}
			continue
		}
		img, err := req.ToPayload(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load image %s: %w", id, err)
		}
		images[i] = img
	}
	return images, nil
}

func (r *Runner) record(e telemetry.Event) {
	if r.telemetry != nil {
		r.telemetry.Record(e)
	}
}
