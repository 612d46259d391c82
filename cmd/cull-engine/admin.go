package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodexForgeBR/cull-engine/internal/banner"
	"github.com/CodexForgeBR/cull-engine/internal/cli"
	"github.com/CodexForgeBR/cull-engine/internal/config"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/notification"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
	"github.com/CodexForgeBR/cull-engine/internal/service"
	sighandler "github.com/CodexForgeBR/cull-engine/internal/signal"
	"github.com/CodexForgeBR/cull-engine/internal/tracing"
)

func newProvidersCmd(flagCfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider catalog sorted by cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.ValidateConfigFlag(flagCfg); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, flagCfg)
			if err != nil {
				return err
			}

			catalog := providers.NewRegistry()
			if cfg.ProviderCatalog != "" {
				if _, err := catalog.LoadCatalog(cfg.ProviderCatalog); err != nil {
					return err
				}
			}
			caps := catalog.SortByCost()

			if cfg.JSON {
				return writeJSON(cmd, caps)
			}
			banner.PrintProviderTable(caps)
			if ready := service.AdaptersFromConfig(cfg).Available(); len(ready) > 0 {
				logging.Info(fmt.Sprintf("ready: %v", ready))
			} else {
				logging.Warn("no provider is ready: install the local helper or set an API key")
			}
			return nil
		},
	}
}

func newCreditsCmd(flagCfg *config.Config) *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up a user's credit ledger",
	}
	creditsCmd.PersistentFlags().StringVar(&flagCfg.UserID, "user", "", "User id")

	withLedger := func(cmd *cobra.Command, fn func(ctx context.Context, eng *engine) error) error {
		if flagCfg.UserID == "" {
			return fmt.Errorf("--user is required")
		}
		if err := cli.ValidateConfigFlag(flagCfg); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, flagCfg)
		if err != nil {
			return err
		}
		ledger, err := openLedger(cfg.CreditsDB)
		if err != nil {
			return err
		}
		defer ledger.Close()
		return fn(cmd.Context(), &engine{cfg: cfg, ledger: ledger})
	}

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, func(ctx context.Context, eng *engine) error {
				sum, err := eng.ledger.GetCreditSummary(ctx, flagCfg.UserID)
				if err != nil {
					return err
				}
				if eng.cfg.JSON {
					return writeJSON(cmd, sum)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits (%d granted, %d spent)\n", sum.UserID, sum.Balance, sum.Credited, sum.Debited)
				return nil
			})
		},
	}

	var description string
	grantCmd := &cobra.Command{
		Use:   "grant <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got: %s", args[0])
			}
			return withLedger(cmd, func(ctx context.Context, eng *engine) error {
				entry, err := eng.ledger.GrantCredits(ctx, flagCfg.UserID, amount, description)
				if err != nil {
					return err
				}
				if eng.cfg.JSON {
					return writeJSON(cmd, entry)
				}
				logging.Success(fmt.Sprintf("granted %d credits to %s", amount, flagCfg.UserID))
				return nil
			})
		},
	}
	grantCmd.Flags().StringVar(&description, "description", "Manual grant", "Ledger entry description")

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's ledger entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, func(ctx context.Context, eng *engine) error {
				entries, err := eng.ledger.ListEntries(ctx, flagCfg.UserID, limit)
				if err != nil {
					return err
				}
				if eng.cfg.JSON {
					return writeJSON(cmd, entries)
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s %6d  %s\n",
						e.CreatedAt.Local().Format(time.DateTime), e.Type, e.Credits, e.Description)
				}
				return nil
			})
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")

	creditsCmd.AddCommand(balanceCmd, grantCmd, historyCmd)
	return creditsCmd
}

func newServeCmd(flagCfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve progress websockets, telemetry snapshots and job submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.ValidateConfigFlag(flagCfg); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, flagCfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cli.BindServeFlags(cmd, flagCfg)
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, cancel, _ := sighandler.WithInterrupt(parent, func() {
		logging.Warn("Interrupt received, shutting down...")
	})
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, "cull-engine", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.WithoutCancel(ctx))

	hub := notification.NewHub()
	defer hub.Close()

	eng, err := newEngine(cfg, hub)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: (&service.Server{
			Service:    eng.service(),
			Telemetry:  eng.telemetry,
			Catalog:    eng.catalog,
			Progress:   hub,
			JobContext: ctx,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("listening on " + cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
