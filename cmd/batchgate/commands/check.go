package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/grainway/batchgate/logger"
)

// CheckCmd verifies a deployment before its first run: configuration,
// tracker connectivity, and the live board schema.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, connectivity, and board schema",
	Long: `Verify a batchgate deployment without running it.

Checks, in order:
  1. The effective configuration is complete and consistent
  2. The tracker API is reachable with the configured credentials
  3. Both status columns carry the configured labels at the configured
     indices (status mutations are positional; a reordered label set
     would silently write the wrong state)

Exits non-zero on the first failed check.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig()
	if err != nil {
		pterm.Error.Println("Configuration invalid")
		return err
	}
	pterm.Success.Println("Configuration valid")

	client, err := buildTracker(cfg, verbosity, logger.Named("tracker"))
	if err != nil {
		pterm.Error.Println("Tracker client rejected configuration")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// VerifySchema exercises connectivity, credentials, and the label
	// layout in one pass; it fails loudly on any of the three.
	if err := client.VerifySchema(ctx, schemaExpectations(cfg)); err != nil {
		pterm.Error.Println("Board schema check failed")
		return err
	}
	pterm.Success.Printf("Board schema verified (dependency board %d, dependent board %d)\n",
		cfg.Boards.DependencyBoardID, cfg.Boards.DependentBoardID)

	pterm.Info.Printf("Run deadline for a %d-item sweep: %s\n",
		cfg.Tracker.PageSize,
		cfg.Reconcile.RunTimeout(cfg.Tracker.PageSize).Round(time.Second))
	if cfg.Schedule.IntervalMinutes > 0 {
		pterm.Info.Printf("Scheduled sweeps: every %dm\n", cfg.Schedule.IntervalMinutes)
	} else {
		pterm.Info.Println("Scheduled sweeps: disabled")
	}

	pterm.Success.Println("All checks passed")
	return nil
}
