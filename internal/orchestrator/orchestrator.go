// Package orchestrator picks which provider rates a set of images. It
// builds a provider order, skips providers that are unknown, have no
// executor or cost more than the user can afford, and debits the credit
// ledger for the first provider that returns ratings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/credits"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
)

// Skip and failure reasons recorded on attempts.
const (
	ReasonProviderUnknown     = "provider-unknown"
	ReasonExecutorUnavailable = "executor-unavailable"
	ReasonInsufficientCredits = "insufficient-credits"
	ReasonEmptyResponse       = "empty-response"
)

// ErrNoImages is returned when Run is called without images.
var ErrNoImages = errors.New("no images provided")

// AttemptStatus is the outcome of trying one provider.
type AttemptStatus string

const (
	StatusSkipped AttemptStatus = "skipped"
	StatusFailed  AttemptStatus = "failed"
	StatusSuccess AttemptStatus = "success"
)

// Attempt is the audit record for one provider tried during a Run.
type Attempt struct {
	ProviderID string        `json:"providerId"`
	Status     AttemptStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
}

// AllProvidersFailedError is returned when no provider produced ratings.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		if a.Status == StatusFailed {
			parts = append(parts, a.ProviderID+": "+a.Reason)
		}
	}
	if len(parts) == 0 {
		return "all providers skipped"
	}
	return strings.Join(parts, "; ")
}

// Catalog is the provider registry surface the orchestrator needs.
type Catalog interface {
	Get(id string) (providers.Capability, bool)
	SortByCost() []providers.Capability
	EstimateCost(id string, count int) float64
}

// Request is one orchestrated culling job.
type Request struct {
	UserID          string
	Prompt          string
	Images          []ai.Image
	ProviderOrder   []string
	AllowFallback   bool
	ProviderOptions map[string]RunOptions
}

// Result is the outcome of a successful Run.
type Result struct {
	ProviderID     string      `json:"providerId"`
	Ratings        []ai.Rating `json:"ratings"`
	CreditsCharged int64       `json:"creditsCharged"`
	Attempts       []Attempt   `json:"attempts"`
}

// Options configures an Orchestrator.
type Options struct {
	// LocalProviderID is tried first when the caller gives no order.
	LocalProviderID string
}

// Orchestrator runs provider selection. It holds no per-call state and is
// safe for concurrent use.
type Orchestrator struct {
	catalog   Catalog
	executors *ExecutorRegistry
	localID   string
	log       *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New returns an orchestrator over catalog and executors.
func New(catalog Catalog, executors *ExecutorRegistry, opts Options) *Orchestrator {
	localID := opts.LocalProviderID
	if localID == "" {
		localID = providers.AppleIntelligence
	}
	return &Orchestrator{
		catalog:   catalog,
		executors: executors,
		localID:   localID,
		log:       logging.New("orchestrator"),
		tracer:    otel.Tracer("github.com/CodexForgeBR/cull-engine/internal/orchestrator"),
		now:       time.Now,
	}
}

// ProviderOrder returns the candidates Run would try, in order.
//
// An explicit order is de-duplicated and, with allowFallback, followed by
// the rest of the catalog by ascending cost. Without an explicit order the
// catalog by cost is used with the local provider moved to the front.
func (o *Orchestrator) ProviderOrder(explicit []string, allowFallback bool) []string {
	seen := make(map[string]bool)
	var order []string
	push := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)
	}

	byCost := o.catalog.SortByCost()
	if len(explicit) > 0 {
		for _, id := range explicit {
			push(id)
		}
		if allowFallback {
			for _, c := range byCost {
				push(c.ID)
			}
		}
		return order
	}

	push(o.localID)
	for _, c := range byCost {
		push(c.ID)
	}
	return order
}

// Run tries providers in order until one returns ratings, then debits its
// estimated cost from the user's ledger. The balance is read once; later
// attempts in the same call see only the in-memory remainder.
func (o *Orchestrator) Run(ctx context.Context, store credits.Store, req Request) (_ Result, err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("images.count", len(req.Images)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(req.Images) == 0 {
		return Result{}, ErrNoImages
	}

	order := o.ProviderOrder(req.ProviderOrder, req.AllowFallback)
	summary, err := store.GetCreditSummary(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("read credit balance: %w", err)
	}
	available := max(summary.Balance, 0)
	o.log.Info("user %s: %d images, %d credits, candidates %s", req.UserID, len(req.Images), available, strings.Join(order, ", "))

	var attempts []Attempt
	for _, id := range order {
		attempt, result, ok := o.try(ctx, store, req, id, &available)
		attempts = append(attempts, attempt)
		if ok {
			result.Attempts = attempts
			span.SetAttributes(attribute.String("provider.id", id), attribute.Int64("credits.charged", result.CreditsCharged))
			o.log.Success("user %s: %s rated %d images for %d credits", req.UserID, id, len(result.Ratings), result.CreditsCharged)
			return result, nil
		}
		if attempt.Status == StatusFailed {
			o.log.Warn("provider %s failed: %s", id, attempt.Reason)
		} else {
			o.log.Debug("provider %s skipped: %s", id, attempt.Reason)
		}
	}

	return Result{}, &AllProvidersFailedError{Attempts: attempts}
}

// try runs one provider. ok is true only when the provider returned ratings
// and any debit was written.
func (o *Orchestrator) try(ctx context.Context, store credits.Store, req Request, id string, available *int64) (Attempt, Result, bool) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.attempt", trace.WithAttributes(attribute.String("provider.id", id)))
	defer span.End()

	started := o.now()
	finish := func(status AttemptStatus, reason string) Attempt {
		d := o.now().Sub(started)
		span.SetAttributes(attribute.String("attempt.status", string(status)))
		if reason != "" {
			span.SetAttributes(attribute.String("attempt.reason", reason))
		}
		return Attempt{ProviderID: id, Status: status, Reason: reason, Duration: d, DurationMs: d.Milliseconds()}
	}

	capability, ok := o.catalog.Get(id)
	if !ok {
		return finish(StatusSkipped, ReasonProviderUnknown), Result{}, false
	}
	exec, ok := o.executors.Lookup(id)
	if !ok {
		return finish(StatusSkipped, ReasonExecutorUnavailable), Result{}, false
	}

	cost := int64(math.Ceil(o.catalog.EstimateCost(id, len(req.Images))))
	if cost > 0 && *available < cost {
		return finish(StatusSkipped, ReasonInsufficientCredits), Result{}, false
	}

	ratings, err := callExecutor(ctx, exec, Call{
		Provider: capability,
		Images:   req.Images,
		Prompt:   req.Prompt,
		Options:  req.ProviderOptions[id],
	})
	if err != nil {
		span.RecordError(err)
		return finish(StatusFailed, err.Error()), Result{}, false
	}
	if len(ratings) == 0 {
		return finish(StatusFailed, ReasonEmptyResponse), Result{}, false
	}

	if cost > 0 {
		err := store.RecordCreditEntry(ctx, credits.Entry{
			UserID:      req.UserID,
			Type:        credits.EntryDebit,
			Credits:     cost,
			Description: fmt.Sprintf("%s batch (%d images)", capability.DisplayName, len(req.Images)),
			Metadata: map[string]any{
				"providerId":      id,
				"imagesProcessed": len(req.Images),
			},
		})
		if err != nil {
			span.RecordError(err)
			return finish(StatusFailed, err.Error()), Result{}, false
		}
		*available -= cost
	}

	return finish(StatusSuccess, ""), Result{ProviderID: id, Ratings: ratings, CreditsCharged: cost}, true
}

func callExecutor(ctx context.Context, exec Executor, call Call) (ratings []ai.Rating, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec(ctx, call)
}
