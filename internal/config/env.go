package config

import (
	"fmt"
	"reflect"

	"github.com/caarlos0/env/v11"
)

// envLayer mirrors WhitelistedVars as environment variables. Every field
// is a raw string so the values flow through ApplyMapToConfig exactly like
// config file entries.
type envLayer struct {
	MaxRetryTime      string `env:"CULL_MAX_RETRY_TIME" key:"MAX_RETRY_TIME"`
	InitialBackoff    string `env:"CULL_INITIAL_BACKOFF" key:"INITIAL_BACKOFF"`
	MaxBackoff        string `env:"CULL_MAX_BACKOFF" key:"MAX_BACKOFF"`
	RateLimitBackoff  string `env:"CULL_RATE_LIMIT_BACKOFF" key:"RATE_LIMIT_BACKOFF"`
	BroadcastProgress string `env:"CULL_BROADCAST_PROGRESS" key:"BROADCAST_PROGRESS"`
	GroupMaxRetries   string `env:"CULL_GROUP_MAX_RETRIES" key:"GROUP_MAX_RETRIES"`
	LocalProvider     string `env:"CULL_LOCAL_PROVIDER" key:"LOCAL_PROVIDER"`
	LocalCommand      string `env:"CULL_LOCAL_COMMAND" key:"LOCAL_COMMAND"`
	ProviderCatalog   string `env:"CULL_PROVIDER_CATALOG" key:"PROVIDER_CATALOG"`
	CreditsDB         string `env:"CULL_CREDITS_DB" key:"CREDITS_DB"`
	OpenAIAPIKey      string `env:"CULL_OPENAI_API_KEY" key:"OPENAI_API_KEY"`
	OpenAIModel       string `env:"CULL_OPENAI_MODEL" key:"OPENAI_MODEL"`
	OpenAIBaseURL     string `env:"CULL_OPENAI_BASE_URL" key:"OPENAI_BASE_URL"`
	OpenAITimeout     string `env:"CULL_OPENAI_TIMEOUT" key:"OPENAI_TIMEOUT"`
	GeminiAPIKey      string `env:"CULL_GEMINI_API_KEY" key:"GEMINI_API_KEY"`
	OTelEndpoint      string `env:"CULL_OTEL_ENDPOINT" key:"OTEL_ENDPOINT"`
	ListenAddr        string `env:"CULL_LISTEN_ADDR" key:"LISTEN_ADDR"`
	NotifyCommand     string `env:"CULL_NOTIFY_COMMAND" key:"NOTIFY_COMMAND"`
	Verbose           string `env:"CULL_VERBOSE" key:"VERBOSE"`

	// The vendors' conventional variables, used when the CULL_ form is unset.
	VendorOpenAIKey string `env:"OPENAI_API_KEY"`
	VendorGeminiKey string `env:"GEMINI_API_KEY"`
}

// LoadEnv reads the CULL_* environment into a WhitelistedVars-keyed map.
// Unset and empty variables are omitted.
func LoadEnv() (map[string]string, error) {
	var layer envLayer
	if err := env.Parse(&layer); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	result := make(map[string]string)
	if layer.VendorOpenAIKey != "" {
		result["OPENAI_API_KEY"] = layer.VendorOpenAIKey
	}
	if layer.VendorGeminiKey != "" {
		result["GEMINI_API_KEY"] = layer.VendorGeminiKey
	}

	v := reflect.ValueOf(layer)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("key")
		if key == "" {
			continue
		}
		if value := v.Field(i).String(); value != "" {
			result[key] = value
		}
	}
	return result, nil
}
