package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
)

// FailureKind classifies a provider error for retry decisions.
type FailureKind int

const (
	// Transient errors are retried cautiously.
	Transient FailureKind = iota
	// RateLimited errors are retried aggressively.
	RateLimited
	// Permanent errors are never retried.
	Permanent
)

func (k FailureKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Permanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Failure is the error adapters return at the provider boundary. The kind
// is decided once, where the provider response is still in hand.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewRateLimited builds a RateLimited failure with an optional retry hint.
func NewRateLimited(statusCode int, retryAfter time.Duration, msg string) *Failure {
	return &Failure{Kind: RateLimited, StatusCode: statusCode, RetryAfter: retryAfter, Message: msg}
}

// NewTransient wraps err as a retryable failure.
func NewTransient(statusCode int, err error) *Failure {
	return &Failure{Kind: Transient, StatusCode: statusCode, Err: err}
}

// NewPermanent wraps err as a failure that must not be retried.
func NewPermanent(statusCode int, err error) *Failure {
	return &Failure{Kind: Permanent, StatusCode: statusCode, Err: err}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify returns the Failure describing err. Errors already tagged by an
// adapter are returned as-is; anything else is classified from its status
// code and message, defaulting to Transient.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}

	if ratelimit.IsRateLimitStatus(status) || ratelimit.IsRateLimitMessage(err.Error()) {
		return &Failure{Kind: RateLimited, StatusCode: status, Err: err}
	}
	return &Failure{Kind: Transient, StatusCode: status, Err: err}
}

// IsRateLimited reports whether err classifies as RateLimited.
func IsRateLimited(err error) bool {
	f := Classify(err)
	return f != nil && f.Kind == RateLimited
}
