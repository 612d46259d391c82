package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/groups"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
)

// RunOptions are per-provider overrides supplied by the caller.
type RunOptions struct {
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
}

// Call is one executor invocation.
type Call struct {
	Provider providers.Capability
	Images   []ai.Image
	Prompt   string
	Options  RunOptions
}

// Executor rates every image of a call with one provider.
type Executor func(ctx context.Context, call Call) ([]ai.Rating, error)

// ExecutorRegistry maps provider ids to executors. Safe for concurrent use.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewExecutorRegistry returns an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[string]Executor)}
}

// Register sets the executor for providerID, replacing any previous one.
func (r *ExecutorRegistry) Register(providerID string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[providerID] = exec
}

// Remove unregisters providerID.
func (r *ExecutorRegistry) Remove(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, providerID)
}

// Lookup returns the executor for providerID.
func (r *ExecutorRegistry) Lookup(providerID string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[providerID]
	return exec, ok && exec != nil
}

// SubmitFactory builds the group submit function for one call. Returning
// an error (for example a missing API key) fails the attempt.
type SubmitFactory func(call Call) (ai.SubmitFunc, error)

// NewGroupExecutor returns an executor that runs the call's images through
// runner in provider-sized groups with the provider's parallelism. A
// negative maxRetries uses the runner's default.
func NewGroupExecutor(runner *groups.Runner, factory SubmitFactory, maxRetries int) Executor {
	var retries *int
	if maxRetries >= 0 {
		retries = &maxRetries
	}
	return func(ctx context.Context, call Call) ([]ai.Rating, error) {
		submit, err := factory(call)
		if err != nil {
			return nil, err
		}

		byID := make(map[string]ai.Image, len(call.Images))
		ids := make([]string, len(call.Images))
		for i, img := range call.Images {
			byID[img.ID] = img
			ids[i] = img.ID
		}

		return runner.RunBatches(ctx, groups.Request{
			ProviderID: call.Provider.ID,
			ItemIDs:    ids,
			ToPayload: func(_ context.Context, id string) (ai.Image, error) {
				img, ok := byID[id]
				if !ok {
					return ai.Image{}, fmt.Errorf("image payload %s missing", id)
				}
				return img, nil
			},
			Prompt:      call.Prompt,
			Submit:      submit,
			Concurrency: call.Provider.MaxParallelBatches,
			MaxRetries:  retries,
		})
	}
}
