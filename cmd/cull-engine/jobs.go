package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
	"github.com/CodexForgeBR/cull-engine/internal/banner"
	"github.com/CodexForgeBR/cull-engine/internal/cli"
	"github.com/CodexForgeBR/cull-engine/internal/config"
	"github.com/CodexForgeBR/cull-engine/internal/credits"
	"github.com/CodexForgeBR/cull-engine/internal/exitcode"
	"github.com/CodexForgeBR/cull-engine/internal/fastmode"
	"github.com/CodexForgeBR/cull-engine/internal/groups"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/notification"
	"github.com/CodexForgeBR/cull-engine/internal/orchestrator"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
	"github.com/CodexForgeBR/cull-engine/internal/runfile"
	"github.com/CodexForgeBR/cull-engine/internal/schedule"
	"github.com/CodexForgeBR/cull-engine/internal/service"
	sighandler "github.com/CodexForgeBR/cull-engine/internal/signal"
	"github.com/CodexForgeBR/cull-engine/internal/telemetry"
	"github.com/CodexForgeBR/cull-engine/internal/tracing"
)

func newRunCmd(flagCfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rate a manifest through the provider orchestrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.ValidateJobFlags(cmd, flagCfg); err != nil {
				return err
			}
			return runJob(cmd, flagCfg, service.ModeRun)
		},
	}
	cli.BindRunFlags(cmd, flagCfg)
	return cmd
}

func newFastCmd(flagCfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fast",
		Short: "Rate every image concurrently against one provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.ValidateFastFlags(cmd, flagCfg); err != nil {
				return err
			}
			return runJob(cmd, flagCfg, service.ModeFast)
		},
	}
	cli.BindFastFlags(cmd, flagCfg)
	return cmd
}

// engine bundles the collaborators built from one config.
type engine struct {
	cfg       *config.Config
	catalog   *providers.Registry
	ledger    *credits.SQLiteStore
	telemetry *telemetry.Store
	adapters  service.Adapters
	orch      *orchestrator.Orchestrator
	fast      *fastmode.Engine
	notifier  notification.Notifier
}

// newEngine wires the catalog, credit ledger, group runner, executors and
// the fast-mode engine. extra notifiers receive progress alongside the
// configured command notifier.
func newEngine(cfg *config.Config, extra ...notification.Notifier) (*engine, error) {
	catalog := providers.NewRegistry()
	if cfg.ProviderCatalog != "" {
		n, err := catalog.LoadCatalog(cfg.ProviderCatalog)
		if err != nil {
			return nil, err
		}
		logging.Debug(fmt.Sprintf("loaded %d providers from %s", n, cfg.ProviderCatalog))
	}

	ledger, err := openLedger(cfg.CreditsDB)
	if err != nil {
		return nil, err
	}

	notifiers := notification.Multi{&notification.CommandNotifier{Command: cfg.NotifyCommand}}
	notifiers = append(notifiers, extra...)

	tel := telemetry.NewStore()
	adapters := service.AdaptersFromConfig(cfg)
	runner := groups.NewRunner(catalog, tel)

	return &engine{
		cfg:       cfg,
		catalog:   catalog,
		ledger:    ledger,
		telemetry: tel,
		adapters:  adapters,
		orch: orchestrator.New(catalog, adapters.Executors(runner, cfg.GroupMaxRetries),
			orchestrator.Options{LocalProviderID: cfg.LocalProvider}),
		fast: fastmode.New(fastmode.Options{
			MaxRetryTime: cfg.MaxRetryTime,
			Backoff: ai.BackoffPolicy{
				InitialBackoff:   cfg.InitialBackoff,
				MaxBackoff:       cfg.MaxBackoff,
				RateLimitBackoff: cfg.RateLimitBackoff,
			},
			DisableProgress: !cfg.BroadcastProgress,
		}, notifiers),
		notifier: notifiers,
	}, nil
}

func openLedger(path string) (*credits.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	return credits.OpenSQLite(path)
}

func (e *engine) Close() error {
	return e.ledger.Close()
}

func (e *engine) service() *service.Service {
	return service.New(service.Deps{
		Orchestrator: e.orch,
		Credits:      e.ledger,
		Fast:         e.fast,
		Adapter: func(id string) (ai.Adapter, error) {
			return e.adapters.Adapter(id, orchestrator.RunOptions{})
		},
		Notifier: e.notifier,
	})
}

func runJob(cmd *cobra.Command, flagCfg *config.Config, mode string) error {
	cfg, err := loadConfig(cmd, flagCfg)
	if err != nil {
		return err
	}

	manifest, err := runfile.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	job := service.Job{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Mode:          mode,
		UserID:        cfg.UserID,
		ShootID:       firstNonEmpty(cfg.ShootID, manifest.ShootID),
		Prompt:        firstNonEmpty(cfg.Prompt, manifest.Prompt),
		SystemPrompt:  firstNonEmpty(cfg.SystemPrompt, manifest.SystemPrompt),
		Provider:      cfg.Provider,
		ProviderOrder: cfg.ProviderOrder,
		AllowFallback: cfg.AllowFallback,
		Images:        manifest.Images,
	}
	if job.Prompt == "" {
		return fmt.Errorf("--prompt is required when the manifest has no prompt")
	}

	ctx, cancel, interrupt := sighandler.WithInterrupt(cmd.Context(), func() {
		logging.Warn("Interrupt received, stopping retries...")
	})
	defer cancel()

	shutdown, err := tracing.Setup(ctx, "cull-engine", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		if err := shutdown(flushCtx); err != nil {
			logging.Warn(fmt.Sprintf("flush traces: %v", err))
		}
	}()

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !cfg.JSON {
		var order []string
		if mode == service.ModeRun {
			order = eng.orch.ProviderOrder(job.ProviderOrder, job.AllowFallback)
		} else {
			order = []string{job.Provider}
		}
		banner.PrintStartupBanner(job.ID, job.UserID, mode, len(job.Images), order)
	}

	if !cfg.StartTime.IsZero() {
		if err := schedule.NewWaiter().WaitUntil(ctx, cfg.StartTime); err != nil {
			if interrupt.Fired() {
				banner.PrintInterruptedBanner(job.ID)
				return &exitError{code: exitcode.Interrupted, err: fmt.Errorf("interrupted before start")}
			}
			return err
		}
	}

	report, runErr := eng.service().Execute(ctx, job)

	if cfg.Report != "" {
		if err := runfile.SaveReport(cfg.Report, report); err != nil {
			logging.Error(err.Error())
		} else {
			logging.Info("report written to " + cfg.Report)
		}
	}

	if err := printOutcome(cmd, cfg, report, runErr, interrupt.Fired()); err != nil {
		return err
	}

	code := jobExitCode(report, runErr, interrupt.Fired())
	if code == exitcode.Success {
		return nil
	}
	if runErr == nil {
		runErr = fmt.Errorf("%d of %d images failed", len(report.Items)-report.Succeeded(), len(report.Items))
	}
	return &exitError{code: code, err: runErr}
}

func printOutcome(cmd *cobra.Command, cfg *config.Config, report *runfile.Report, runErr error, interrupted bool) error {
	if cfg.JSON {
		return writeJSON(cmd, report)
	}

	elapsed := report.FinishedAt.Sub(report.StartedAt)
	switch {
	case interrupted:
		banner.PrintInterruptedBanner(report.JobID)
	case report.Run != nil:
		banner.PrintRunSummary(*report.Run, elapsed)
	case report.Items != nil:
		banner.PrintFastSummary(report.Items, elapsed)
	case runErr != nil && report.Attempts != nil:
		banner.PrintAllProvidersFailed(report.Attempts)
	}
	return nil
}

// jobExitCode maps a job outcome to a process exit code.
func jobExitCode(report *runfile.Report, runErr error, interrupted bool) int {
	if interrupted {
		return exitcode.Interrupted
	}
	if runErr != nil {
		var all *orchestrator.AllProvidersFailedError
		if !errors.As(runErr, &all) {
			return exitcode.Error
		}
		for _, a := range all.Attempts {
			if a.Reason != orchestrator.ReasonInsufficientCredits {
				return exitcode.AllProvidersFailed
			}
		}
		if len(all.Attempts) == 0 {
			return exitcode.AllProvidersFailed
		}
		return exitcode.InsufficientCredits
	}
	if report != nil && report.Succeeded() < len(report.Items) {
		return exitcode.PartialFailure
	}
	return exitcode.Success
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
