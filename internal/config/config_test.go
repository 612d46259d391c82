package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodexForgeBR/cull-engine/internal/config"
)

func TestNewDefaultConfigValues(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.NotNil(t, cfg)

	// Fast mode retry policy.
	assert.Equal(t, 6*time.Hour, cfg.MaxRetryTime)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 60*time.Second, cfg.MaxBackoff)
	assert.Equal(t, time.Second, cfg.RateLimitBackoff)
	assert.True(t, cfg.BroadcastProgress)

	// Group runner.
	assert.Equal(t, 5, cfg.GroupMaxRetries)

	// Providers.
	assert.Equal(t, "apple-intelligence", cfg.LocalProvider)
	assert.Equal(t, "apple-intelligence-cull", cfg.LocalCommand)
	assert.Empty(t, cfg.ProviderCatalog)

	// Ledger and adapters.
	assert.Equal(t, ".cull-engine/credits.db", cfg.CreditsDB)
	assert.Empty(t, cfg.OpenAIAPIKey)
	assert.Equal(t, "gpt-5", cfg.OpenAIModel)
	assert.Equal(t, 2*time.Minute, cfg.OpenAITimeout)
	assert.Empty(t, cfg.GeminiAPIKey)

	// Observability and transport.
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Equal(t, "127.0.0.1:8787", cfg.ListenAddr)
	assert.Empty(t, cfg.NotifyCommand)
	assert.False(t, cfg.Verbose)

	// CLI-only flags default to zero values.
	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.UserID)
	assert.Empty(t, cfg.ProviderOrder)
	assert.False(t, cfg.AllowFallback)
}

func TestWhitelistHasNoDuplicates(t *testing.T) {
	seen := make(map[string]bool)
	for _, key := range config.WhitelistedVars {
		assert.NotEmpty(t, key)
		assert.False(t, seen[key], "duplicate whitelist key %s", key)
		seen[key] = true
	}
}
