// Package cli provides flag binding and validation for the cull-engine CLI.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/CodexForgeBR/cull-engine/internal/config"
	"github.com/CodexForgeBR/cull-engine/internal/schedule"
)

// BindPersistentFlags registers flags shared by every subcommand. The flags
// write directly into cfg; config-file keys among them only take effect
// when explicitly set (see BuildCLIOverrides).
func BindPersistentFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.PersistentFlags()

	flags.StringVar(&cfg.ConfigFile, "config", "", "Path to additional config file")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&cfg.JSON, "json", false, "Print results as JSON instead of banners")

	// Providers
	flags.StringVar(&cfg.ProviderCatalog, "provider-catalog", "", "YAML file of provider capabilities")
	flags.StringVar(&cfg.LocalProvider, "local-provider", cfg.LocalProvider, "Provider id tried first when no order is given")
	flags.StringVar(&cfg.LocalCommand, "local-command", cfg.LocalCommand, "On-device rating helper binary")

	// OpenAI
	flags.StringVar(&cfg.OpenAIModel, "openai-model", cfg.OpenAIModel, "OpenAI model id")
	flags.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", "", "OpenAI-compatible API base URL")
	flags.DurationVar(&cfg.OpenAITimeout, "openai-timeout", cfg.OpenAITimeout, "Per-request OpenAI timeout")

	// Storage and observability
	flags.StringVar(&cfg.CreditsDB, "credits-db", cfg.CreditsDB, "SQLite credit ledger path")
	flags.StringVar(&cfg.OTelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint (tracing off when empty)")
	flags.StringVar(&cfg.NotifyCommand, "notify-command", "", "Command invoked with each progress message")
}

// bindJobFlags registers the flags shared by run and fast.
func bindJobFlags(flags *pflag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.UserID, "user", "", "User id whose credits and progress channel are used")
	flags.StringVar(&cfg.ShootID, "shoot", "", "Shoot id reported in progress messages")
	flags.StringVar(&cfg.Manifest, "manifest", "", "YAML or JSON list of images to rate")
	flags.StringVar(&cfg.Prompt, "prompt", "", "Rating instruction (overrides the manifest)")
	flags.StringVar(&cfg.SystemPrompt, "system-prompt", "", "System prompt (overrides the manifest)")
	flags.StringVar(&cfg.Report, "report", "", "Write a JSON report to this path")
	flags.StringVar(&cfg.StartAt, "start-at", "", "Defer the job (+DURATION, HH:MM or YYYY-MM-DD[ HH:MM])")
}

// BindRunFlags registers the flags of the orchestrated run command.
func BindRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	bindJobFlags(flags, cfg)

	flags.StringSliceVar(&cfg.ProviderOrder, "providers", nil, "Explicit provider order (comma-separated)")
	flags.BoolVar(&cfg.AllowFallback, "allow-fallback", false, "Try remaining providers by cost after the explicit order")
	flags.IntVar(&cfg.GroupMaxRetries, "group-max-retries", cfg.GroupMaxRetries, "Retries per image group before the provider fails")
}

// BindFastFlags registers the flags of the fast-mode command.
func BindFastFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	bindJobFlags(flags, cfg)

	flags.StringVar(&cfg.Provider, "provider", "", "Provider id to rate every image with")
	flags.DurationVar(&cfg.MaxRetryTime, "max-retry-time", cfg.MaxRetryTime, "Give up on an image after retrying this long")
	flags.DurationVar(&cfg.InitialBackoff, "initial-backoff", cfg.InitialBackoff, "Base backoff for transient failures")
	flags.DurationVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "Backoff ceiling")
	flags.DurationVar(&cfg.RateLimitBackoff, "rate-limit-backoff", cfg.RateLimitBackoff, "Base backoff for rate-limited calls")

	// Negation flag handled via Changed detection.
	var noProgress bool
	flags.BoolVar(&noProgress, "no-progress", false, "Disable progress broadcasts")
}

// BindServeFlags registers the flags of the serve command.
func BindServeFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Address for the progress websocket and telemetry endpoint")
}

// ValidateJobFlags checks the flags shared by run and fast.
// Must be called after flags are parsed.
func ValidateJobFlags(cmd *cobra.Command, cfg *config.Config) error {
	if strings.TrimSpace(cfg.UserID) == "" {
		return fmt.Errorf("--user is required")
	}

	if cfg.Manifest == "" {
		return fmt.Errorf("--manifest is required")
	}
	if _, err := os.Stat(cfg.Manifest); err != nil {
		return fmt.Errorf("--manifest: %w", err)
	}

	if err := validateConfigFile(cfg); err != nil {
		return err
	}

	if cfg.StartAt != "" {
		start, err := schedule.ParseStartAt(cfg.StartAt, time.Now())
		if err != nil {
			return fmt.Errorf("--start-at: %w", err)
		}
		cfg.StartTime = start
	}

	if flag := cmd.Flags().Lookup("providers"); flag != nil && flag.Changed {
		cfg.ProviderOrder = normalizeOrder(cfg.ProviderOrder)
		if len(cfg.ProviderOrder) == 0 {
			return fmt.Errorf("--providers must name at least one provider")
		}
	}

	if flag := cmd.Flags().Lookup("group-max-retries"); flag != nil && cfg.GroupMaxRetries < 0 {
		return fmt.Errorf("--group-max-retries must be >= 0, got: %d", cfg.GroupMaxRetries)
	}

	if flag := cmd.Flags().Lookup("no-progress"); flag != nil && flag.Changed {
		cfg.BroadcastProgress = false
	}

	return nil
}

// ValidateFastFlags checks fast-mode flags on top of ValidateJobFlags.
func ValidateFastFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := ValidateJobFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Provider == "" {
		return fmt.Errorf("--provider is required")
	}
	for name, d := range map[string]time.Duration{
		"--max-retry-time":     cfg.MaxRetryTime,
		"--initial-backoff":    cfg.InitialBackoff,
		"--max-backoff":        cfg.MaxBackoff,
		"--rate-limit-backoff": cfg.RateLimitBackoff,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got: %s", name, d)
		}
	}
	return nil
}

// ValidateConfigFlag checks --config for commands without job flags.
func ValidateConfigFlag(cfg *config.Config) error {
	return validateConfigFile(cfg)
}

func validateConfigFile(cfg *config.Config) error {
	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err != nil {
			return fmt.Errorf("--config: %w", err)
		}
	}
	return nil
}

// normalizeOrder trims ids and drops empties and duplicates, keeping the
// first occurrence.
func normalizeOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// BuildCLIOverrides creates a map of CLI flag overrides from the config.
// Uses Changed() to only include flags explicitly set by the user,
// ensuring config file values are not accidentally overridden by default values.
func BuildCLIOverrides(cmd *cobra.Command, cfg *config.Config) map[string]string {
	overrides := make(map[string]string)
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	stringFlags := map[string]struct {
		key string
		val string
	}{
		"provider-catalog": {"PROVIDER_CATALOG", cfg.ProviderCatalog},
		"local-provider":   {"LOCAL_PROVIDER", cfg.LocalProvider},
		"local-command":    {"LOCAL_COMMAND", cfg.LocalCommand},
		"openai-model":     {"OPENAI_MODEL", cfg.OpenAIModel},
		"openai-base-url":  {"OPENAI_BASE_URL", cfg.OpenAIBaseURL},
		"credits-db":       {"CREDITS_DB", cfg.CreditsDB},
		"otel-endpoint":    {"OTEL_ENDPOINT", cfg.OTelEndpoint},
		"notify-command":   {"NOTIFY_COMMAND", cfg.NotifyCommand},
		"listen":           {"LISTEN_ADDR", cfg.ListenAddr},
	}
	for flag, mapping := range stringFlags {
		if changed(flag) {
			overrides[mapping.key] = mapping.val
		}
	}

	durationFlags := map[string]struct {
		key string
		val time.Duration
	}{
		"openai-timeout":     {"OPENAI_TIMEOUT", cfg.OpenAITimeout},
		"max-retry-time":     {"MAX_RETRY_TIME", cfg.MaxRetryTime},
		"initial-backoff":    {"INITIAL_BACKOFF", cfg.InitialBackoff},
		"max-backoff":        {"MAX_BACKOFF", cfg.MaxBackoff},
		"rate-limit-backoff": {"RATE_LIMIT_BACKOFF", cfg.RateLimitBackoff},
	}
	for flag, mapping := range durationFlags {
		if changed(flag) {
			overrides[mapping.key] = mapping.val.String()
		}
	}

	if changed("group-max-retries") {
		overrides["GROUP_MAX_RETRIES"] = strconv.Itoa(cfg.GroupMaxRetries)
	}
	if changed("verbose") {
		overrides["VERBOSE"] = strconv.FormatBool(cfg.Verbose)
	}

	// Negation flag
	if changed("no-progress") {
		overrides["BROADCAST_PROGRESS"] = "false"
	}

	return overrides
}

// MergeCLIOnly copies flags that never come from config files onto the
// loaded config.
func MergeCLIOnly(dst, src *config.Config) {
	dst.ConfigFile = src.ConfigFile
	dst.UserID = src.UserID
	dst.ShootID = src.ShootID
	dst.Prompt = src.Prompt
	dst.SystemPrompt = src.SystemPrompt
	dst.Manifest = src.Manifest
	dst.Report = src.Report
	dst.StartAt = src.StartAt
	dst.StartTime = src.StartTime
	dst.Provider = src.Provider
	dst.ProviderOrder = src.ProviderOrder
	dst.AllowFallback = src.AllowFallback
	dst.JSON = src.JSON
}
