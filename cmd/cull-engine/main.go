package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CodexForgeBR/cull-engine/internal/cli"
	"github.com/CodexForgeBR/cull-engine/internal/config"
	"github.com/CodexForgeBR/cull-engine/internal/exitcode"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
)

// version vars injected via ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	rootCmd := newRootCmd(config.NewDefaultConfig())

	if err := rootCmd.Execute(); err != nil {
		code := exitcode.Error
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		fmt.Fprintln(os.Stderr, err)
		logging.Debug(fmt.Sprintf("exit %d (%s)", code, exitcode.Name(code)))
		os.Exit(code)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cull-engine",
		Short:         "Batch AI photo culling with provider fallback and credit metering",
		Long:          "cull-engine rates large photo sets with AI providers under batch limits, rate limits and a per-user credit balance.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Bind shared CLI flags to the config
	cli.BindPersistentFlags(rootCmd, cfg)

	// Set custom help template
	cli.SetCustomHelp(rootCmd)

	rootCmd.AddCommand(
		newRunCmd(cfg),
		newFastCmd(cfg),
		newProvidersCmd(cfg),
		newCreditsCmd(cfg),
		newServeCmd(cfg),
	)
	return rootCmd
}

// loadConfig merges config files, the environment and explicitly set
// flags, in that order of precedence, then restores CLI-only fields.
func loadConfig(cmd *cobra.Command, flagCfg *config.Config) (*config.Config, error) {
	globalConfigPath := ""
	if home, err := os.UserConfigDir(); err == nil {
		globalConfigPath = filepath.Join(home, "cull-engine", "config")
	}
	projectConfigPath := filepath.Join(".cull-engine", "config")

	// Build CLI overrides map using Changed() for accurate detection
	cliOverrides := cli.BuildCLIOverrides(cmd, flagCfg)

	cfg, err := config.LoadWithPrecedence(globalConfigPath, projectConfigPath, flagCfg.ConfigFile, cliOverrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Merge CLI-only flags (not in config files)
	cli.MergeCLIOnly(cfg, flagCfg)

	logging.SetVerbose(cfg.Verbose)
	return cfg, nil
}
