package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpTemplate_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, helpTemplate)
}

func TestHelpTemplate_ContainsKeyFlags(t *testing.T) {
	requiredFlags := []string{
		"--config",
		"--verbose",
		"--json",
		"--provider-catalog",
		"--local-provider",
		"--local-command",
		"--openai-model",
		"--openai-base-url",
		"--openai-timeout",
		"--credits-db",
		"--otel-endpoint",
		"--notify-command",
		"--user",
		"--manifest",
		"--shoot",
		"--prompt",
		"--system-prompt",
		"--report",
		"--providers",
		"--allow-fallback",
		"--group-max-retries",
		"--provider",
		"--max-retry-time",
		"--initial-backoff",
		"--max-backoff",
		"--rate-limit-backoff",
		"--no-progress",
		"--listen",
	}

	for _, flag := range requiredFlags {
		assert.Contains(t, helpTemplate, flag, "help text should document %s", flag)
	}
}

func TestHelpTemplate_ContainsExitCodes(t *testing.T) {
	for _, name := range []string{"Success", "Error", "AllProvidersFailed", "PartialFailure", "InsufficientCredits", "Interrupted"} {
		assert.Contains(t, helpTemplate, name)
	}
}

func TestHelpTemplate_ContainsCommands(t *testing.T) {
	for _, name := range []string{"run", "fast", "providers", "credits balance", "credits grant", "serve"} {
		assert.Contains(t, helpTemplate, name)
	}
}

func TestSetCustomHelp(t *testing.T) {
	cmd := &cobra.Command{Use: "cull-engine", Run: func(*cobra.Command, []string) {}}
	SetCustomHelp(cmd)

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "cull-engine - Batch AI photo culling")
}
