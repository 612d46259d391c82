package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodexForgeBR/cull-engine/internal/config"
)

// newRunCmd builds a root with a run child, mirroring the real command tree.
func newRunCmd(t *testing.T, cfg *config.Config) (*cobra.Command, *cobra.Command) {
	t.Helper()
	root := &cobra.Command{Use: "cull-engine"}
	BindPersistentFlags(root, cfg)
	run := &cobra.Command{Use: "run", RunE: func(*cobra.Command, []string) error { return nil }}
	BindRunFlags(run, cfg)
	root.AddCommand(run)
	return root, run
}

func newFastCmd(t *testing.T, cfg *config.Config) (*cobra.Command, *cobra.Command) {
	t.Helper()
	root := &cobra.Command{Use: "cull-engine"}
	BindPersistentFlags(root, cfg)
	fast := &cobra.Command{Use: "fast", RunE: func(*cobra.Command, []string) error { return nil }}
	BindFastFlags(fast, cfg)
	root.AddCommand(fast)
	return root, fast
}

// execute runs root with args and returns the executed subcommand.
func execute(t *testing.T, root *cobra.Command, args ...string) *cobra.Command {
	t.Helper()
	root.SetArgs(args)
	cmd, err := root.ExecuteC()
	require.NoError(t, err)
	return cmd
}

func manifestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shoot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: a\n"), 0644))
	return path
}

func TestBindFlags_DefaultValues(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newRunCmd(t, cfg)
	execute(t, root, "run")

	assert.Equal(t, "apple-intelligence", cfg.LocalProvider)
	assert.Equal(t, "apple-intelligence-cull", cfg.LocalCommand)
	assert.Equal(t, "gpt-5", cfg.OpenAIModel)
	assert.Equal(t, 2*time.Minute, cfg.OpenAITimeout)
	assert.Equal(t, ".cull-engine/credits.db", cfg.CreditsDB)
	assert.Equal(t, 5, cfg.GroupMaxRetries)
	assert.False(t, cfg.Verbose)
	assert.False(t, cfg.AllowFallback)
	assert.Empty(t, cfg.ProviderOrder)
}

func TestBindRunFlags_ProviderOrder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"single", []string{"--providers", "openai-gpt-5"}, []string{"openai-gpt-5"}},
		{"comma list", []string{"--providers", "gemini-2-5-flash,openai-gpt-5"}, []string{"gemini-2-5-flash", "openai-gpt-5"}},
		{"repeated flag", []string{"--providers", "a", "--providers", "b"}, []string{"a", "b"}},
		{"duplicates and blanks", []string{"--providers", "a, ,a,b"}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			root, _ := newRunCmd(t, cfg)
			args := append([]string{"run", "--user", "u1", "--manifest", manifestFile(t)}, tt.args...)
			cmd := execute(t, root, args...)

			require.NoError(t, ValidateJobFlags(cmd, cfg))
			assert.Equal(t, tt.expected, cfg.ProviderOrder)
		})
	}
}

func TestValidateJobFlags(t *testing.T) {
	manifest := manifestFile(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"valid", []string{"--user", "u1", "--manifest", manifest}, ""},
		{"missing user", []string{"--manifest", manifest}, "--user is required"},
		{"blank user", []string{"--user", "  ", "--manifest", manifest}, "--user is required"},
		{"missing manifest flag", []string{"--user", "u1"}, "--manifest is required"},
		{"manifest not found", []string{"--user", "u1", "--manifest", missing}, "--manifest"},
		{"config not found", []string{"--user", "u1", "--manifest", manifest, "--config", missing}, "--config"},
		{"empty providers", []string{"--user", "u1", "--manifest", manifest, "--providers", ","}, "at least one provider"},
		{"negative retries", []string{"--user", "u1", "--manifest", manifest, "--group-max-retries", "-1"}, "--group-max-retries"},
		{"bad start time", []string{"--user", "u1", "--manifest", manifest, "--start-at", "whenever"}, "--start-at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			root, _ := newRunCmd(t, cfg)
			cmd := execute(t, root, append([]string{"run"}, tt.args...)...)

			err := ValidateJobFlags(cmd, cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJobFlags_StartAt(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newRunCmd(t, cfg)
	cmd := execute(t, root, "run", "--user", "u1", "--manifest", manifestFile(t), "--start-at", "+30m")

	before := time.Now()
	require.NoError(t, ValidateJobFlags(cmd, cfg))

	assert.False(t, cfg.StartTime.IsZero())
	assert.WithinDuration(t, before.Add(30*time.Minute), cfg.StartTime, 5*time.Second)
}

func TestValidateFastFlags(t *testing.T) {
	manifest := manifestFile(t)

	t.Run("provider required", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		root, _ := newFastCmd(t, cfg)
		cmd := execute(t, root, "fast", "--user", "u1", "--manifest", manifest)

		err := ValidateFastFlags(cmd, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--provider is required")
	})

	t.Run("negative duration", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		root, _ := newFastCmd(t, cfg)
		cmd := execute(t, root, "fast", "--user", "u1", "--manifest", manifest, "--provider", "p", "--max-backoff", "-1s")

		err := ValidateFastFlags(cmd, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--max-backoff")
	})

	t.Run("no-progress disables broadcasts", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		root, _ := newFastCmd(t, cfg)
		cmd := execute(t, root, "fast", "--user", "u1", "--manifest", manifest, "--provider", "p", "--no-progress")

		require.NoError(t, ValidateFastFlags(cmd, cfg))
		assert.False(t, cfg.BroadcastProgress)
	})
}

func TestValidateConfigFlag(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.NoError(t, ValidateConfigFlag(cfg))

	cfg.ConfigFile = filepath.Join(t.TempDir(), "nope")
	assert.Error(t, ValidateConfigFlag(cfg))
}

func TestBuildCLIOverrides_OnlyChangedFlags(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newFastCmd(t, cfg)
	cmd := execute(t, root, "fast", "--openai-model", "gpt-5-mini", "--max-backoff", "30s", "-v")

	overrides := BuildCLIOverrides(cmd, cfg)

	assert.Equal(t, map[string]string{
		"OPENAI_MODEL": "gpt-5-mini",
		"MAX_BACKOFF":  "30s",
		"VERBOSE":      "true",
	}, overrides)
}

func TestBuildCLIOverrides_NoFlags(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newRunCmd(t, cfg)
	cmd := execute(t, root, "run")

	assert.Empty(t, BuildCLIOverrides(cmd, cfg))
}

func TestBuildCLIOverrides_RoundTripsThroughConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newFastCmd(t, cfg)
	cmd := execute(t, root, "fast",
		"--max-retry-time", "90m",
		"--initial-backoff", "250ms",
		"--credits-db", "/tmp/c.db",
		"--no-progress",
	)

	loaded := config.NewDefaultConfig()
	config.ApplyMapToConfig(loaded, BuildCLIOverrides(cmd, cfg))

	assert.Equal(t, 90*time.Minute, loaded.MaxRetryTime)
	assert.Equal(t, 250*time.Millisecond, loaded.InitialBackoff)
	assert.Equal(t, "/tmp/c.db", loaded.CreditsDB)
	assert.False(t, loaded.BroadcastProgress)
}

func TestBuildCLIOverrides_GroupRetries(t *testing.T) {
	cfg := config.NewDefaultConfig()
	root, _ := newRunCmd(t, cfg)
	cmd := execute(t, root, "run", "--group-max-retries", "2")

	assert.Equal(t, "2", BuildCLIOverrides(cmd, cfg)["GROUP_MAX_RETRIES"])
}

func TestMergeCLIOnly(t *testing.T) {
	src := config.NewDefaultConfig()
	src.UserID = "u1"
	src.ShootID = "s1"
	src.Prompt = "p"
	src.SystemPrompt = "sp"
	src.Manifest = "m.yaml"
	src.Report = "r.json"
	src.Provider = "openai-gpt-5"
	src.ProviderOrder = []string{"a"}
	src.AllowFallback = true
	src.JSON = true
	src.ConfigFile = "c"
	src.StartAt = "+1h"
	src.StartTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	dst := config.NewDefaultConfig()
	dst.OpenAIModel = "from-file"
	MergeCLIOnly(dst, src)

	assert.Equal(t, "from-file", dst.OpenAIModel)
	assert.Equal(t, "u1", dst.UserID)
	assert.Equal(t, "s1", dst.ShootID)
	assert.Equal(t, "p", dst.Prompt)
	assert.Equal(t, "sp", dst.SystemPrompt)
	assert.Equal(t, "m.yaml", dst.Manifest)
	assert.Equal(t, "r.json", dst.Report)
	assert.Equal(t, "openai-gpt-5", dst.Provider)
	assert.Equal(t, []string{"a"}, dst.ProviderOrder)
	assert.True(t, dst.AllowFallback)
	assert.True(t, dst.JSON)
	assert.Equal(t, "c", dst.ConfigFile)
	assert.Equal(t, "+1h", dst.StartAt)
	assert.Equal(t, src.StartTime, dst.StartTime)
}
