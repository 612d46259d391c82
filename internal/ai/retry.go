package ai

import "time"

// Default backoff settings for per-image retries.
const (
	DefaultInitialBackoff   = 1 * time.Second
	DefaultMaxBackoff       = 60 * time.Second
	DefaultRateLimitBackoff = 1 * time.Second
)

// BackoffPolicy computes exponential retry delays.
// Rate limits: RateLimitBackoff, x2, x4, ... capped at MaxBackoff.
// Other errors: 2*InitialBackoff, x2, x4, ... capped at 2*MaxBackoff.
type BackoffPolicy struct {
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	RateLimitBackoff time.Duration
}

// DefaultBackoffPolicy returns the 1s/60s/1s policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialBackoff:   DefaultInitialBackoff,
		MaxBackoff:       DefaultMaxBackoff,
		RateLimitBackoff: DefaultRateLimitBackoff,
	}
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.RateLimitBackoff <= 0 {
		p.RateLimitBackoff = DefaultRateLimitBackoff
	}
	return p
}

// Delay returns the wait before the retry that follows the given zero-based
// attempt. A rate-limit hint from the provider is honored when it is longer
// than the computed delay, still bounded by MaxBackoff.
func (p BackoffPolicy) Delay(attempt int, f *Failure) time.Duration {
	p = p.withDefaults()

	if f != nil && f.Kind == RateLimited {
		d := exponential(p.RateLimitBackoff, attempt, p.MaxBackoff)
		if f.RetryAfter > d {
			d = min(f.RetryAfter, p.MaxBackoff)
		}
		return d
	}
	return exponential(2*p.InitialBackoff, attempt, 2*p.MaxBackoff)
}

// exponential returns min(base * 2^attempt, ceiling) without overflowing.
func exponential(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
