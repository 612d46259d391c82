// Package cli provides help text and usage formatting for the cull-engine CLI.
package cli

import (
	"github.com/spf13/cobra"
)

const helpTemplate = `cull-engine - Batch AI photo culling with provider fallback and credit metering

USAGE
  cull-engine <command> [flags]

COMMANDS
  run                                    Rate a manifest through the provider orchestrator
  fast                                   Rate every image concurrently against one provider
  providers                              List the provider catalog sorted by cost
  credits balance                        Show a user's credit balance
  credits grant <amount>                 Add credits to a user's balance
  credits history                        List a user's ledger entries, newest first
  serve                                  Serve progress websockets, telemetry and job submission

FLAGS
  Global:
    --config <path>                      Path to additional config file
    -v, --verbose                        Enable debug logging
    --json                               Print results as JSON instead of banners
    --provider-catalog <path>            YAML file of provider capabilities
    --local-provider <id>                Provider tried first when no order is given (default: apple-intelligence)
    --local-command <bin>                On-device rating helper (default: apple-intelligence-cull)
    --openai-model <model>               OpenAI model id (default: gpt-5)
    --openai-base-url <url>              OpenAI-compatible API base URL
    --openai-timeout <duration>          Per-request OpenAI timeout (default: 2m)
    --credits-db <path>                  SQLite credit ledger (default: .cull-engine/credits.db)
    --otel-endpoint <url>                OTLP/HTTP trace endpoint
    --notify-command <bin>               Command invoked with each progress message

  Jobs (run, fast):
    --user <id>                          User id (required)
    --manifest <path>                    YAML or JSON image list (required)
    --shoot <id>                         Shoot id for progress messages
    --prompt <text>                      Rating instruction
    --system-prompt <text>               System prompt
    --report <path>                      Write a JSON report
    --start-at <when>                    Defer the start (+90m, 02:00, 2026-04-01 06:00)

  run:
    --providers <a,b,...>                Explicit provider order
    --allow-fallback                     Continue with remaining providers by cost
    --group-max-retries <int>            Retries per image group (default: 5)

  fast:
    --provider <id>                      Provider to rate with (required)
    --max-retry-time <duration>          Per-image retry window (default: 6h)
    --initial-backoff <duration>         Transient failure base backoff (default: 1s)
    --max-backoff <duration>             Backoff ceiling (default: 60s)
    --rate-limit-backoff <duration>      Rate-limit base backoff (default: 1s)
    --no-progress                        Disable progress broadcasts

  credits:
    --user <id>                          User id (required)
    --description <text>                 Ledger entry description (grant)
    --limit <int>                        Maximum entries to show (history, default: 20)

  serve:
    --listen <addr>                      Listen address (default: 127.0.0.1:8787)
                                         GET /ws?userId=, GET /telemetry, GET /providers,
                                         POST /jobs, GET /jobs, GET /jobs/{id}

  Help & Version:
    -h, --help                           Show this help text
    --version                            Show version, commit, build date

ENVIRONMENT
  Every config key can be set as CULL_<KEY>, e.g. CULL_MAX_BACKOFF=30s.
  OPENAI_API_KEY and GEMINI_API_KEY are used when the CULL_ form is unset.

EXIT CODES
  0   Success              Every image rated
  1   Error                Invalid arguments, file not found, misconfiguration
  2   AllProvidersFailed   No provider produced ratings
  3   PartialFailure       Fast mode finished with failed images
  4   InsufficientCredits  Every provider was skipped for lack of credits
  130 Interrupted          SIGINT or SIGTERM received

EXAMPLES
  # Rate a shoot with the cheapest available provider
  cull-engine run --user u1 --manifest shoot.yaml

  # Prefer Gemini, fall back to anything cheaper that works
  cull-engine run --user u1 --manifest shoot.yaml --providers gemini-2-5-flash --allow-fallback

  # Hammer one provider with per-image retries for up to an hour
  cull-engine fast --user u1 --manifest shoot.yaml --provider openai-gpt-5 --max-retry-time 1h

  # Top up credits
  cull-engine credits grant 500 --user u1
`

// SetCustomHelp configures the cobra command to use our custom help template.
func SetCustomHelp(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
}
