package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/groups"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
	"github.com/CodexForgeBR/cull-engine/internal/telemetry"
)

func TestNewGroupExecutor_RunsThroughGroups(t *testing.T) {
	reg := providers.NewRegistry()
	store := telemetry.NewStore()
	runner := groups.NewRunner(reg, store)
	capability, _ := reg.Get(providers.OpenAIGPT5)

	var submits atomic.Int32
	factory := func(call Call) (ai.SubmitFunc, error) {
		assert.Equal(t, "sk-test", call.Options.APIKey)
		return func(_ context.Context, req ai.GroupRequest) (ai.GroupResult, error) {
			submits.Add(1)
			out := make([]ai.Rating, len(req.Images))
			for i, img := range req.Images {
				assert.NotEmpty(t, img.URL, "payload comes from the call's images")
				out[i] = ai.Rating{ImageID: img.ID}
			}
			return ai.GroupResult{OK: true, Ratings: out}, nil
		}, nil
	}

	images := testImages(45)
	for i := range images {
		images[i].URL = "https://cdn.example.com/" + images[i].ID
	}
	exec := NewGroupExecutor(runner, factory, 2)

	ratings, err := exec(context.Background(), Call{Provider: capability, Images: images, Prompt: "p", Options: RunOptions{APIKey: "sk-test"}})

	require.NoError(t, err)
	assert.Len(t, ratings, 45)
	assert.Equal(t, int32(3), submits.Load(), "45 images in groups of 20")
	snap, ok := store.Snapshot(providers.OpenAIGPT5)
	require.True(t, ok)
	assert.Len(t, snap.RecentBatches, 3)
}

func TestNewGroupExecutor_ZeroRetriesIsOneAttempt(t *testing.T) {
	reg := providers.NewRegistry()
	capability, _ := reg.Get(providers.OpenAIGPT5)
	var submits atomic.Int32
	exec := NewGroupExecutor(groups.NewRunner(reg, nil), func(Call) (ai.SubmitFunc, error) {
		return func(context.Context, ai.GroupRequest) (ai.GroupResult, error) {
			submits.Add(1)
			return ai.GroupResult{OK: false}, nil
		}, nil
	}, 0)

	_, err := exec(context.Background(), Call{Provider: capability, Images: testImages(3)})

	require.ErrorIs(t, err, groups.ErrRetriesExhausted)
	assert.Equal(t, int32(1), submits.Load())
}

func TestNewGroupExecutor_FactoryError(t *testing.T) {
	reg := providers.NewRegistry()
	exec := NewGroupExecutor(groups.NewRunner(reg, nil), func(Call) (ai.SubmitFunc, error) {
		return nil, errors.New("missing OpenAI API key")
	}, 1)
	capability, _ := reg.Get(providers.OpenAIGPT5)

	_, err := exec(context.Background(), Call{Provider: capability, Images: testImages(1)})
	assert.EqualError(t, err, "missing OpenAI API key")
}

func TestRun_WithGroupExecutorEndToEnd(t *testing.T) {
	reg := providers.NewRegistry()
	execs := NewExecutorRegistry()
	runner := groups.NewRunner(reg, nil)
	execs.Register(providers.Gemini25Flash, NewGroupExecutor(runner, func(Call) (ai.SubmitFunc, error) {
		return func(_ context.Context, req ai.GroupRequest) (ai.GroupResult, error) {
			out := make([]ai.Rating, len(req.Images))
			for i, img := range req.Images {
				out[i] = ai.Rating{ImageID: img.ID, StarRating: 5}
			}
			return ai.GroupResult{OK: true, Ratings: out}, nil
		}, nil
	}, 1))
	o := New(reg, execs, Options{})
	ledger := &fakeLedger{balance: 50}

	res, err := o.Run(context.Background(), ledger, Request{UserID: "u", Images: testImages(30)})

	require.NoError(t, err)
	assert.Equal(t, providers.Gemini25Flash, res.ProviderID)
	assert.Equal(t, []string{"apple-intelligence/skipped", "gemini-2-5-flash/success"}, statuses(res.Attempts))
	assert.Equal(t, "executor-unavailable", res.Attempts[0].Reason)
	assert.Equal(t, int64(3), res.CreditsCharged, "ceil(0.095 * 30)")
	assert.Equal(t, int64(47), ledger.balance)
}
