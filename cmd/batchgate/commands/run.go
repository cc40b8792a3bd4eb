package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/reconcile"
)

// RunCmd executes a single reconciliation pass.
var RunCmd = &cobra.Command{
	Use:   "run [dependency-item-id]",
	Short: "Execute one reconciliation pass and exit",
	Long: `Execute one reconciliation pass and exit.

With no arguments, sweeps every item on the dependent board. With a
dependency item id, reconciles only the items that dependency gates.

The exit code is 0 whenever the run completes, however many items were
skipped; only configuration errors and run-level failures (enumeration,
schema mismatch) exit non-zero.

Examples:
  batchgate run                  # Full sweep
  batchgate run --dry-run        # Full sweep, report only
  batchgate run 4501             # Targeted: items gated by dependency 4501
  batchgate run --json | jq .    # Machine-readable summary`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runDryRun     bool
	runJSONOutput bool
)

func init() {
	RunCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Evaluate and report without mutating the tracker")
	RunCmd.Flags().BoolVar(&runJSONOutput, "json", false, "Print the run summary as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ctrl+C stops dispatching new items; items already started finish
	// their remote calls.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := buildOrchestrator(ctx, cfg, verbosity)
	if err != nil {
		return err
	}

	var summary *reconcile.RunSummary
	if len(args) == 1 {
		summary, err = orch.RunTargeted(ctx, args[0], runDryRun)
	} else {
		summary, err = orch.RunFullSweep(ctx, runDryRun)
	}
	if err != nil {
		return err
	}

	if runJSONOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	renderRunSummary(summary, verbosity)
	return nil
}

// renderRunSummary prints the per-item outcomes and the run totals.
// Items that changed (or failed) always print; untouched items only
// appear with -v.
func renderRunSummary(summary *reconcile.RunSummary, verbosity int) {
	if summary.DryRun {
		pterm.Info.Println("Dry run: no changes were written")
	}

	for _, o := range summary.Outcomes {
		switch {
		case o.Updated:
			pterm.Success.Println(outcomeLine(o))
		case o.WouldUpdate:
			pterm.Info.Println(outcomeLine(o))
		case strings.Contains(o.Reason, "failed"):
			pterm.Warning.Println(outcomeLine(o))
		default:
			if verbosity >= logger.VerbosityInfo {
				pterm.Printf("  %s\n", outcomeLine(o))
			}
		}
	}

	changed := summary.Updated
	changedLabel := "updated"
	if summary.DryRun {
		changed = summary.WouldUpdate
		changedLabel = "would update"
	}
	pterm.Printf("\nProcessed %d items in %s: %d %s, %d skipped\n",
		summary.Processed,
		summary.Duration.Round(time.Millisecond),
		changed, changedLabel,
		summary.Skipped)
}

func outcomeLine(o reconcile.Outcome) string {
	if o.ItemName != "" {
		return fmt.Sprintf("%s (%s) - %s", o.ItemID, o.ItemName, o.Reason)
	}
	return fmt.Sprintf("%s - %s", o.ItemID, o.Reason)
}
