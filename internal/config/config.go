// Package config defines the cull-engine configuration model and default values.
//
// Configuration is assembled from multiple sources with a strict precedence
// chain: built-in defaults < global config file < project config file <
// explicit config file < CULL_* environment variables < CLI flag overrides.
package config

import "time"

// WhitelistedVars lists every configuration variable name that may appear in
// config files. Variables not in this list are silently ignored during loading.
// The environment form of each key carries a CULL_ prefix.
var WhitelistedVars = [19]string{
	"MAX_RETRY_TIME",
	"INITIAL_BACKOFF",
	"MAX_BACKOFF",
	"RATE_LIMIT_BACKOFF",
	"BROADCAST_PROGRESS",
	"GROUP_MAX_RETRIES",
	"LOCAL_PROVIDER",
	"LOCAL_COMMAND",
	"PROVIDER_CATALOG",
	"CREDITS_DB",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"OPENAI_BASE_URL",
	"OPENAI_TIMEOUT",
	"GEMINI_API_KEY",
	"OTEL_ENDPOINT",
	"LISTEN_ADDR",
	"NOTIFY_COMMAND",
	"VERBOSE",
}

// Config holds every configuration field for the cull-engine CLI.
type Config struct {
	// Fast mode retry policy.
	MaxRetryTime      time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RateLimitBackoff  time.Duration
	BroadcastProgress bool

	// Group runner.
	GroupMaxRetries int

	// Providers.
	LocalProvider   string
	LocalCommand    string
	ProviderCatalog string

	// Credit ledger.
	CreditsDB string

	// OpenAI adapter.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAITimeout time.Duration

	// Gemini through its OpenAI-compatible endpoint.
	GeminiAPIKey string

	// Observability and transport.
	OTelEndpoint  string
	ListenAddr    string
	NotifyCommand string

	// Runtime flags.
	Verbose bool

	// CLI-only flags (not loaded from config files).
	ConfigFile    string
	UserID        string
	ShootID       string
	Prompt        string
	SystemPrompt  string
	Manifest      string
	Report        string
	StartAt       string
	StartTime     time.Time
	Provider      string
	ProviderOrder []string
	AllowFallback bool
	JSON          bool
}

// NewDefaultConfig returns a Config populated with all built-in default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxRetryTime:      6 * time.Hour,
		InitialBackoff:    time.Second,
		MaxBackoff:        60 * time.Second,
		RateLimitBackoff:  time.Second,
		BroadcastProgress: true,
		GroupMaxRetries:   5,
		LocalProvider:     "apple-intelligence",
		LocalCommand:      "apple-intelligence-cull",
		CreditsDB:         ".cull-engine/credits.db",
		OpenAIModel:       "gpt-5",
		OpenAITimeout:     2 * time.Minute,
		ListenAddr:        "127.0.0.1:8787",
	}
}
