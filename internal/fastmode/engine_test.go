package fastmode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/notification"
)

// fakeClock advances only when the engine sleeps.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration{}, c.waits...)
}

func newTestEngine(opts Options, notifier notification.Notifier) (*Engine, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := New(opts, notifier)
	e.now = clock.Now
	e.sleep = clock.Sleep
	return e, clock
}

// adapterFunc adapts a function to ai.Adapter.
type adapterFunc func(ctx context.Context, req ai.SingleImageRequest) (ai.Rating, error)

func (f adapterFunc) ProcessSingleImage(ctx context.Context, req ai.SingleImageRequest) (ai.Rating, error) {
	return f(ctx, req)
}

func images(n int) []ai.Image {
	out := make([]ai.Image, n)
	for i := range out {
		out[i] = ai.Image{ID: fmt.Sprintf("img-%d", i)}
	}
	return out
}

func TestProcessConcurrent_NoItems(t *testing.T) {
	e, _ := newTestEngine(Options{}, nil)
	_, err := e.ProcessConcurrent(context.Background(), "u", "job", nil, adapterFunc(nil), "p", "")
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestProcessConcurrent_PreservesOrderAndCardinality(t *testing.T) {
	e, _ := newTestEngine(Options{}, nil)
	adapter := adapterFunc(func(_ context.Context, req ai.SingleImageRequest) (ai.Rating, error) {
		// Odd items fail permanently so the result mixes outcomes.
		var n int
		fmt.Sscanf(req.Image.ID, "img-%d", &n)
		if n%2 == 1 {
			return ai.Rating{}, ai.NewPermanent(400, errors.New("bad image"))
		}
		return ai.Rating{StarRating: n % 6}, nil
	})

	items := images(25)
	results, err := e.ProcessConcurrent(context.Background(), "u", "job", items, adapter, "rate", "")

	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, items[i].ID, r.ImageID)
		assert.Equal(t, i%2 == 0, r.Success, "item %d", i)
		if r.Success {
			require.NotNil(t, r.Rating)
			assert.Equal(t, items[i].ID, r.Rating.ImageID)
		} else {
			assert.Contains(t, r.Error, "bad image")
		}
	}
}

func TestProcessConcurrent_RateLimitedBackoffUntilBudget(t *testing.T) {
	e, clock := newTestEngine(Options{MaxRetryTime: 30 * time.Second}, nil)
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		return ai.Rating{}, &statusError{status: 429, msg: "slow down"}
	})

	results, err := e.ProcessConcurrent(context.Background(), "u", "job", images(1), adapter, "p", "")
	require.NoError(t, err)

	r := results[0]
	assert.False(t, r.Success)
	assert.Equal(t, 6, r.Attempts)
	assert.Equal(t, 31*time.Second, r.TotalRetryTime)

	waits := clock.Waits()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, waits)
	for i := 1; i < len(waits); i++ {
		assert.Greater(t, float64(waits[i])/float64(waits[i-1]), 1.5)
	}
}

func TestProcessConcurrent_TransientBackoffIsDoubled(t *testing.T) {
	e, clock := newTestEngine(Options{MaxRetryTime: 10 * time.Second}, nil)
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		return ai.Rating{}, errors.New("connection reset")
	})

	results, _ := e.ProcessConcurrent(context.Background(), "u", "job", images(1), adapter, "p", "")

	assert.False(t, results[0].Success)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, clock.Waits())
}

func TestProcessConcurrent_SucceedsOnThirdCall(t *testing.T) {
	e, _ := newTestEngine(Options{}, nil)
	var calls atomic.Int32
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		if calls.Add(1) < 3 {
			return ai.Rating{}, errors.New("rate limit exceeded")
		}
		return ai.Rating{StarRating: 4}, nil
	})

	results, err := e.ProcessConcurrent(context.Background(), "u", "job", images(1), adapter, "p", "")

	require.NoError(t, err)
	assert.True(t, results[0].Success)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3*time.Second, results[0].TotalRetryTime)
}

func TestProcessConcurrent_PermanentStopsImmediately(t *testing.T) {
	e, clock := newTestEngine(Options{}, nil)
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		return ai.Rating{}, ai.NewPermanent(401, errors.New("invalid api key"))
	})

	results, _ := e.ProcessConcurrent(context.Background(), "u", "job", images(1), adapter, "p", "")

	assert.False(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Empty(t, clock.Waits())
}

func TestProcessConcurrent_CancelEndsRetries(t *testing.T) {
	e, _ := newTestEngine(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		cancel()
		return ai.Rating{}, errors.New("503 upstream")
	})

	results, err := e.ProcessConcurrent(ctx, "u", "job", images(2), adapter, "p", "")

	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, 1, r.Attempts)
		assert.Contains(t, r.Error, "503 upstream")
	}
}

func TestProcessConcurrent_AdapterPanicIsRecovered(t *testing.T) {
	e, _ := newTestEngine(Options{MaxRetryTime: time.Second}, nil)
	adapter := adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) {
		panic("boom")
	})

	results, err := e.ProcessConcurrent(context.Background(), "u", "job", images(1), adapter, "p", "")

	require.NoError(t, err)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "adapter panic: boom")
}

func TestProcessConcurrent_PassesPrompts(t *testing.T) {
	e, _ := newTestEngine(Options{}, nil)
	adapter := adapterFunc(func(_ context.Context, req ai.SingleImageRequest) (ai.Rating, error) {
		assert.Equal(t, "rate", req.Prompt)
		assert.Equal(t, "editor", req.SystemPrompt)
		return ai.Rating{}, nil
	})

	_, err := e.ProcessConcurrent(context.Background(), "u", "job", images(3), adapter, "rate", "editor")
	require.NoError(t, err)
}

func TestProcessConcurrent_BroadcastsProgress(t *testing.T) {
	var mu sync.Mutex
	var got []notification.ShootProgress
	notifier := notification.NotifierFunc(func(userID string, msg notification.Message) {
		assert.Equal(t, "user-1", userID)
		assert.Equal(t, notification.ServerDeviceID, msg.DeviceID)
		mu.Lock()
		got = append(got, msg.Data.(notification.ShootProgress))
		mu.Unlock()
	})
	e, _ := newTestEngine(Options{}, notifier)
	adapter := adapterFunc(func(_ context.Context, req ai.SingleImageRequest) (ai.Rating, error) {
		if req.Image.ID == "img-2" {
			return ai.Rating{}, ai.NewPermanent(400, errors.New("nope"))
		}
		return ai.Rating{}, nil
	})

	_, err := e.ProcessConcurrent(context.Background(), "user-1", "shoot-1", images(4), adapter, "p", "")
	require.NoError(t, err)

	require.Len(t, got, 3, "only successes are broadcast")
	counts := map[int]bool{}
	for _, p := range got {
		assert.Equal(t, "shoot-1", p.ShootID)
		assert.Equal(t, ProgressProvider, p.Provider)
		assert.Equal(t, 4, p.TotalCount)
		counts[p.ProcessedCount] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, counts)
}

func TestProcessConcurrent_ProgressDisabled(t *testing.T) {
	called := false
	notifier := notification.NotifierFunc(func(string, notification.Message) { called = true })
	e, _ := newTestEngine(Options{DisableProgress: true}, notifier)

	_, err := e.ProcessConcurrent(context.Background(), "u", "j", images(2),
		adapterFunc(func(context.Context, ai.SingleImageRequest) (ai.Rating, error) { return ai.Rating{}, nil }), "p", "")

	require.NoError(t, err)
	assert.False(t, called)
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) StatusCode() int { return e.status }
