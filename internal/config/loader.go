package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// whitelistSet is a precomputed lookup table for fast whitelist membership checks.
var whitelistSet map[string]bool

func init() {
	whitelistSet = make(map[string]bool, len(WhitelistedVars))
	for _, v := range WhitelistedVars {
		whitelistSet[v] = true
	}
}

// LoadFile parses a KEY=VALUE config file at the given path.
//
// Lines are processed according to these rules:
//   - Empty lines and lines starting with # are skipped.
//   - Lines without an = sign are skipped.
//   - Leading and trailing whitespace is trimmed from both key and value.
//   - Keys not present in WhitelistedVars are silently ignored.
//
// Returns a map of whitelisted key-value pairs, or an error if the file
// cannot be opened.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on first '=' only.
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if !whitelistSet[key] {
			continue
		}

		result[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return result, nil
}

// LoadWithPrecedence assembles a Config by merging sources in order of
// increasing priority:
//
//  1. Built-in defaults
//  2. Global config file (globalPath)
//  3. Project config file (projectPath)
//  4. Explicit config file (explicitPath)
//  5. CULL_* environment variables
//  6. CLI overrides (cliOverrides map)
//
// Missing global and project files are skipped. An explicit path must exist.
func LoadWithPrecedence(globalPath, projectPath, explicitPath string, cliOverrides map[string]string) (*Config, error) {
	cfg := NewDefaultConfig()

	optional := []struct {
		label string
		path  string
	}{
		{"global config", globalPath},
		{"project config", projectPath},
	}
	for _, layer := range optional {
		if layer.path == "" {
			continue
		}
		m, err := LoadFile(layer.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%s: %w", layer.label, err)
		}
		ApplyMapToConfig(cfg, m)
	}

	if explicitPath != "" {
		m, err := LoadFile(explicitPath)
		if err != nil {
			return nil, fmt.Errorf("explicit config: %w", err)
		}
		ApplyMapToConfig(cfg, m)
	}

	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	ApplyMapToConfig(cfg, env)

	if len(cliOverrides) > 0 {
		ApplyMapToConfig(cfg, cliOverrides)
	}

	return cfg, nil
}

// ApplyMapToConfig sets fields on cfg from the key-value pairs in m.
// Keys must use the WhitelistedVars naming convention (e.g., "MAX_BACKOFF").
// Unknown keys are silently ignored. Numeric and duration fields that fail
// to parse are silently ignored (the previous value is preserved).
func ApplyMapToConfig(cfg *Config, m map[string]string) {
	for key, value := range m {
		switch key {
		case "MAX_RETRY_TIME":
			setDuration(&cfg.MaxRetryTime, value)
		case "INITIAL_BACKOFF":
			setDuration(&cfg.InitialBackoff, value)
		case "MAX_BACKOFF":
			setDuration(&cfg.MaxBackoff, value)
		case "RATE_LIMIT_BACKOFF":
			setDuration(&cfg.RateLimitBackoff, value)
		case "BROADCAST_PROGRESS":
			cfg.BroadcastProgress = parseBool(value)
		case "GROUP_MAX_RETRIES":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				cfg.GroupMaxRetries = v
			}
		case "LOCAL_PROVIDER":
			cfg.LocalProvider = value
		case "LOCAL_COMMAND":
			cfg.LocalCommand = value
		case "PROVIDER_CATALOG":
			cfg.ProviderCatalog = value
		case "CREDITS_DB":
			cfg.CreditsDB = value
		case "OPENAI_API_KEY":
			cfg.OpenAIAPIKey = value
		case "OPENAI_MODEL":
			cfg.OpenAIModel = value
		case "OPENAI_BASE_URL":
			cfg.OpenAIBaseURL = value
		case "OPENAI_TIMEOUT":
			setDuration(&cfg.OpenAITimeout, value)
		case "GEMINI_API_KEY":
			cfg.GeminiAPIKey = value
		case "OTEL_ENDPOINT":
			cfg.OTelEndpoint = value
		case "LISTEN_ADDR":
			cfg.ListenAddr = value
		case "NOTIFY_COMMAND":
			cfg.NotifyCommand = value
		case "VERBOSE":
			cfg.Verbose = parseBool(value)
		}
	}
}

// parseDuration accepts Go duration strings ("90s", "6h") or a bare number
// of seconds.
func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func setDuration(dst *time.Duration, value string) {
	if d, ok := parseDuration(value); ok {
		*dst = d
	}
}

// parseBool interprets common boolean representations.
// "true", "1", "yes" (case-insensitive) return true; everything else returns false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
