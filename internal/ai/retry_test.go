package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_RateLimitDelays(t *testing.T) {
	t.Run("doubles from rate limit backoff: 1s, 2s, 4s, 8s", func(t *testing.T) {
		p := DefaultBackoffPolicy()
		f := NewRateLimited(429, 0, "slow down")

		expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
		for attempt, want := range expected {
			assert.Equal(t, want, p.Delay(attempt, f), "attempt %d", attempt)
		}
	})

	t.Run("caps at max backoff", func(t *testing.T) {
		p := DefaultBackoffPolicy()
		f := NewRateLimited(429, 0, "slow down")

		assert.Equal(t, 32*time.Second, p.Delay(5, f))
		assert.Equal(t, 60*time.Second, p.Delay(6, f))
		assert.Equal(t, 60*time.Second, p.Delay(40, f))
		assert.Equal(t, 60*time.Second, p.Delay(1000, f), "large attempts must not overflow")
	})

	t.Run("honors longer retry-after hint up to max backoff", func(t *testing.T) {
		p := DefaultBackoffPolicy()

		assert.Equal(t, 10*time.Second, p.Delay(0, NewRateLimited(429, 10*time.Second, "")))
		assert.Equal(t, 60*time.Second, p.Delay(0, NewRateLimited(429, 10*time.Minute, "")))
		assert.Equal(t, 8*time.Second, p.Delay(3, NewRateLimited(429, time.Second, "")),
			"shorter hint should not reduce the computed delay")
	})
}

func TestBackoffPolicy_TransientDelays(t *testing.T) {
	t.Run("doubles from twice the initial backoff: 2s, 4s, 8s", func(t *testing.T) {
		p := DefaultBackoffPolicy()
		f := NewTransient(500, errors.New("boom"))

		expected := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
		for attempt, want := range expected {
			assert.Equal(t, want, p.Delay(attempt, f), "attempt %d", attempt)
		}
	})

	t.Run("caps at twice max backoff", func(t *testing.T) {
		p := DefaultBackoffPolicy()
		f := NewTransient(0, errors.New("boom"))

		assert.Equal(t, 64*time.Second, p.Delay(5, f))
		assert.Equal(t, 120*time.Second, p.Delay(6, f))
		assert.Equal(t, 120*time.Second, p.Delay(99, f))
	})

	t.Run("nil failure uses transient schedule", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, DefaultBackoffPolicy().Delay(0, nil))
	})
}

func TestBackoffPolicy_CustomValues(t *testing.T) {
	p := BackoffPolicy{
		InitialBackoff:   10 * time.Millisecond,
		MaxBackoff:       100 * time.Millisecond,
		RateLimitBackoff: 5 * time.Millisecond,
	}

	assert.Equal(t, 5*time.Millisecond, p.Delay(0, NewRateLimited(429, 0, "")))
	assert.Equal(t, 80*time.Millisecond, p.Delay(4, NewRateLimited(429, 0, "")))
	assert.Equal(t, 100*time.Millisecond, p.Delay(5, NewRateLimited(429, 0, "")))
	assert.Equal(t, 20*time.Millisecond, p.Delay(0, NewTransient(0, errors.New("x"))))
	assert.Equal(t, 200*time.Millisecond, p.Delay(9, NewTransient(0, errors.New("x"))))
}

func TestBackoffPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var p BackoffPolicy
	assert.Equal(t, time.Second, p.Delay(0, NewRateLimited(429, 0, "")))
	assert.Equal(t, 2*time.Second, p.Delay(0, NewTransient(0, errors.New("x"))))
}
