package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grainway/batchgate/cmd/batchgate/commands"
	"github.com/grainway/batchgate/logger"
)

var rootCmd = &cobra.Command{
	Use:   "batchgate",
	Short: "batchgate - cross-board status reconciliation for production batches",
	Long: `batchgate - cross-board status reconciliation.

Watches purchase-order dependencies on one tracker board and moves
production batches on another board out of the not-started state the
moment every dependency is satisfied.

Available commands:
  run      - Execute one reconciliation pass and exit
  serve    - Run the daemon: webhook receiver, run API, scheduled sweeps
  check    - Verify configuration, connectivity, and board schema
  config   - Manage batchgate configuration
  version  - Show version information

Examples:
  batchgate run --dry-run        # Preview a full sweep without writing
  batchgate run 4501             # Reconcile batches gated by item 4501
  batchgate serve                # Start the daemon
  batchgate check                # Preflight a deployment
  batchgate config show          # Show effective configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands whose stdout gets piped skip logger setup
		switch cmd.Name() {
		case "show", "get", "version":
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON lines (for log collectors)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
