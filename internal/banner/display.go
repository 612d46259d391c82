// Package banner provides colored banner display functions for the cull-engine CLI.
//
// Banners frame the start and the outcome of a culling job: which providers
// will be tried, which one succeeded, what it cost, and how many images
// failed in fast mode.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/CodexForgeBR/cull-engine/internal/fastmode"
	"github.com/CodexForgeBR/cull-engine/internal/logging"
	"github.com/CodexForgeBR/cull-engine/internal/orchestrator"
	"github.com/CodexForgeBR/cull-engine/internal/providers"
)

const rule = "═══════════════════════════════════════════════════"

var (
	headerColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	successColor = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor    = color.New(color.FgYellow, color.Bold).SprintFunc()
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

// SetOutput redirects banners and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

func emitf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, format, args...)
}

func emit(s string) {
	emitf("%s\n", s)
}

// PrintStartupBanner displays the job header.
//
// Example output:
//
//	═══════════════════════════════════════════════════
//	  cull-engine - AI Photo Culling
//	═══════════════════════════════════════════════════
//	  Job:        0192f1c4-...
//	  User:       user-1
//	  Mode:       run
//	  Images:     240
//	  Providers:  apple-intelligence → gemini-2-5-flash
//	═══════════════════════════════════════════════════
func PrintStartupBanner(jobID, userID, mode string, images int, order []string) {
	sep := headerColor(rule)
	emit(sep)
	emit(headerColor("  cull-engine - AI Photo Culling"))
	emit(sep)
	emitf("  Job:        %s\n", jobID)
	emitf("  User:       %s\n", userID)
	emitf("  Mode:       %s\n", mode)
	emitf("  Images:     %d\n", images)
	if len(order) > 0 {
		emitf("  Providers:  %s\n", strings.Join(order, " → "))
	}
	emit(sep)
}

// PrintRunSummary displays the outcome of an orchestrated run.
func PrintRunSummary(res orchestrator.Result, elapsed time.Duration) {
	sep := successColor(rule)
	emit(sep)
	emit(successColor(fmt.Sprintf("  ✓ Rated %d images with %s", len(res.Ratings), res.ProviderID)))
	emitf("  Credits:    %d\n", res.CreditsCharged)
	emitf("  Duration:   %s\n", logging.FormatDuration(elapsed))
	printAttempts(res.Attempts)
	emit(sep)
}

// PrintAllProvidersFailed displays the per-provider audit trail after a
// run in which no provider succeeded.
func PrintAllProvidersFailed(attempts []orchestrator.Attempt) {
	sep := errorColor(rule)
	emit(sep)
	emit(errorColor("  ✗ ALL PROVIDERS FAILED"))
	emit(sep)
	printAttempts(attempts)
	emit(sep)
}

func printAttempts(attempts []orchestrator.Attempt) {
	if len(attempts) == 0 {
		return
	}
	emit("  Attempts:")
	for _, a := range attempts {
		line := fmt.Sprintf("    - %-20s %-8s %s", a.ProviderID, a.Status, logging.FormatDuration(a.Duration))
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		emit(line)
	}
}

// PrintFastSummary displays fast-mode totals. Failed images are listed
// when any exist.
func PrintFastSummary(results []fastmode.Result, elapsed time.Duration) {
	var failed []fastmode.Result
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r)
		}
	}

	colorFn := successColor
	headline := fmt.Sprintf("  ✓ Rated %d/%d images", len(results)-len(failed), len(results))
	if len(failed) > 0 {
		colorFn = warnColor
		headline = fmt.Sprintf("  ⚠ Rated %d/%d images, %d failed", len(results)-len(failed), len(results), len(failed))
	}

	sep := colorFn(rule)
	emit(sep)
	emit(colorFn(headline))
	emitf("  Duration:   %s\n", logging.FormatDuration(elapsed))
	if len(failed) > 0 {
		emit("  Failed images:")
		for _, r := range failed {
			emitf("    - %s after %d attempts: %s\n", r.ImageID, r.Attempts, r.Error)
		}
	}
	emit(sep)
}

// PrintInterruptedBanner displays when a job is cancelled by a signal.
func PrintInterruptedBanner(jobID string) {
	sep := warnColor(rule)
	emit(sep)
	emit(warnColor("  ⚠ Job interrupted"))
	emitf("  Job:        %s\n", jobID)
	emit(sep)
}

// PrintProviderTable lists capabilities in the given order.
//
// Example output:
//
//	──────────────────────────────────────────────────
//	  ID                  BATCH  PARALLEL  COST/1K
//	  apple-intelligence     10         2     0.00  offline
//	──────────────────────────────────────────────────
func PrintProviderTable(caps []providers.Capability) {
	sep := strings.Repeat("─", 50)
	emit(sep)
	emitf("  %-20s %5s %9s %8s\n", "ID", "BATCH", "PARALLEL", "COST/1K")
	for _, c := range caps {
		line := fmt.Sprintf("  %-20s %5d %9d %8.2f", c.ID, c.MaxBatchImages, c.MaxParallelBatches, c.CostPer1K)
		if c.Offline {
			line += "  offline"
		}
		emit(line)
	}
	emit(sep)
}
