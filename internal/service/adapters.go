package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/config"
	"github.com/CodexForgeBR/cull-engine/internal/groups"
	"github.com/CodexForgeBR/cull-engine/internal/orchestrator"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
)

// Gemini is reached through its OpenAI-compatible endpoint.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	GeminiModel   = "gemini-2.5-flash"
)

// ErrNoAdapter is returned for provider ids without a built-in adapter.
var ErrNoAdapter = errors.New("no adapter for provider")

// GroupAdapter rates images one at a time and in groups.
type GroupAdapter interface {
	ai.Adapter
	SubmitGroup(ctx context.Context, req ai.GroupRequest) (ai.GroupResult, error)
}

// Adapters builds provider adapters from configuration.
type Adapters struct {
	LocalID string
	Local   *ai.LocalRunner
	OpenAI  ai.OpenAIConfig
	Gemini  ai.OpenAIConfig
}

// AdaptersFromConfig maps cfg onto adapter settings.
func AdaptersFromConfig(cfg *config.Config) Adapters {
	return Adapters{
		LocalID: cfg.LocalProvider,
		Local:   &ai.LocalRunner{Command: cfg.LocalCommand},
		OpenAI: ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.OpenAITimeout,
		},
		Gemini: ai.OpenAIConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   GeminiModel,
			BaseURL: GeminiBaseURL,
			Timeout: cfg.OpenAITimeout,
		},
	}
}

// Adapter returns the adapter for providerID. Non-empty opts fields
// override the configured model and key.
func (a Adapters) Adapter(providerID string, opts orchestrator.RunOptions) (GroupAdapter, error) {
	switch providerID {
	case a.LocalID:
		if a.Local == nil || !a.Local.LocalAvailable() {
			return nil, fmt.Errorf("local helper for %s is not installed", providerID)
		}
		return a.Local, nil
	case providers.OpenAIGPT5:
		return ai.NewOpenAIAdapter(withOptions(a.OpenAI, opts))
	case providers.Gemini25Flash:
		return ai.NewOpenAIAdapter(withOptions(a.Gemini, opts))
	default:
		return nil, fmt.Errorf("%w %s", ErrNoAdapter, providerID)
	}
}

func withOptions(cfg ai.OpenAIConfig, opts orchestrator.RunOptions) ai.OpenAIConfig {
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	return cfg
}

// Available reports which built-in providers can run right now: the local
// helper when it is on PATH, vendor APIs when a key is configured.
func (a Adapters) Available() []string {
	var ids []string
	if a.Local != nil && a.Local.LocalAvailable() {
		ids = append(ids, a.LocalID)
	}
	if a.OpenAI.APIKey != "" {
		ids = append(ids, providers.OpenAIGPT5)
	}
	if a.Gemini.APIKey != "" {
		ids = append(ids, providers.Gemini25Flash)
	}
	return ids
}

// Executors registers a group executor for every available provider.
func (a Adapters) Executors(runner *groups.Runner, maxRetries int) *orchestrator.ExecutorRegistry {
	reg := orchestrator.NewExecutorRegistry()
	for _, id := range a.Available() {
		reg.Register(id, orchestrator.NewGroupExecutor(runner, a.submitFactory(id), maxRetries))
	}
	return reg
}

func (a Adapters) submitFactory(providerID string) orchestrator.SubmitFactory {
	return func(call orchestrator.Call) (ai.SubmitFunc, error) {
		adapter, err := a.Adapter(providerID, call.Options)
		if err != nil {
			return nil, err
		}
		return adapter.SubmitGroup, nil
	}
}
