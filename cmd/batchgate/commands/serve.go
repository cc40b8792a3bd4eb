package commands

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/grainway/batchgate/config"
	"github.com/grainway/batchgate/errors"
	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/reconcile"
	"github.com/grainway/batchgate/schedule"
	"github.com/grainway/batchgate/server"
)

// ServeCmd runs the batchgate daemon.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Run the daemon: webhook receiver, run API, scheduled sweeps",
	Long: `Run the batchgate daemon.

The daemon serves the tracker webhook, the manual run API, a status
endpoint, and a WebSocket feed of run summaries, and fires scheduled
full sweeps on the configured interval. Board schema is verified against
the live tracker before the first run.

Safe configuration changes (labels, workers, timeouts, schedule window)
are hot-reloaded from the config file; board, credential, and port
changes require a restart.`,
	RunE: runServe,
}

// startupTimeout bounds the schema verification calls made before the
// daemon accepts traffic.
const startupTimeout = 30 * time.Second

var serveNoBanner bool

func init() {
	ServeCmd.Flags().BoolVar(&serveNoBanner, "no-banner", false, "Suppress the startup banner")
}

// reloadableRunner lets a config reload swap the engine under the server
// and ticker without restarting either. Runs already in flight keep the
// engine they started with.
type reloadableRunner struct {
	orch atomic.Pointer[reconcile.Orchestrator]
}

func (r *reloadableRunner) RunFullSweep(ctx context.Context, dryRun bool) (*reconcile.RunSummary, error) {
	return r.orch.Load().RunFullSweep(ctx, dryRun)
}

func (r *reloadableRunner) RunTargeted(ctx context.Context, dependencyItemID string, dryRun bool) (*reconcile.RunSummary, error) {
	return r.orch.Load().RunTargeted(ctx, dependencyItemID, dryRun)
}

func runServe(cmd *cobra.Command, args []string) error {
	// The daemon defaults to Info so startup and per-run summaries land
	// in the logs.
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Infow("Configuration loaded",
		"config_file", config.ActiveConfigPath(),
		"tracker_url", cfg.Tracker.APIURL,
		"token_fingerprint", config.TokenFingerprint(cfg.Tracker.APIToken))

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	orch, err := buildOrchestrator(startupCtx, cfg, verbosity)
	cancelStartup()
	if err != nil {
		return err
	}

	runner := &reloadableRunner{}
	runner.orch.Store(orch)

	srv := server.New(server.Config{
		Port:                   cfg.Server.Port,
		WebhookSecret:          cfg.Server.WebhookSecret,
		AllowedOrigins:         cfg.Server.AllowedOrigins,
		DependencyStatusColumn: cfg.Boards.DependencyStatusColumn,
		SatisfyingLabels:       cfg.Statuses.SatisfyingLabels,
	}, runner, logger.Named("server"))

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return errors.Wrapf(err, "invalid schedule timezone %q", cfg.Schedule.Timezone)
	}
	ticker := schedule.NewTicker(runner, srv, schedule.Config{
		Interval:           cfg.Schedule.Interval(),
		BusinessHoursOnly:  cfg.Schedule.BusinessHoursOnly,
		BusinessHoursStart: cfg.Schedule.BusinessHoursStart,
		BusinessHoursEnd:   cfg.Schedule.BusinessHoursEnd,
		Location:           loc,
	}, logger.Named("schedule"))
	srv.SetScheduleReporter(ticker)

	if err := srv.Start(); err != nil {
		return err
	}
	ticker.Start()

	watcher := startConfigWatcher(runner, verbosity)

	if !serveNoBanner {
		printStartupBanner(verbosity, srv.Port(), cfg)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

	shutdownDone := make(chan error, 1)
	go func() {
		ticker.Stop()
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Warnw("Config watcher did not stop cleanly", "error", err)
			}
		}
		shutdownDone <- srv.Stop()
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Daemon stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
		return nil // unreachable
	}
}

// startConfigWatcher wires hot reload when a config file exists. Running
// on environment variables alone leaves nothing to watch.
func startConfigWatcher(runner *reloadableRunner, verbosity int) *config.Watcher {
	path := config.ActiveConfigPath()
	if path == "" {
		logger.Debugw("No config file in use, hot reload disabled")
		return nil
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		logger.Warnw("Config watcher unavailable, hot reload disabled",
			"path", path,
			"error", err)
		return nil
	}

	config.SetGlobalWatcher(watcher)
	watcher.OnReload(func(newCfg *config.Config) error {
		return applyReload(runner, newCfg, verbosity)
	})
	watcher.Start()

	logger.Infow("Config hot reload enabled", "path", path)
	return watcher
}

// applyReload rebuilds the engine from an already validated config. The
// new boards and labels are verified against the live schema first; a
// config that fails verification is rejected and the running engine stays.
func applyReload(runner *reloadableRunner, cfg *config.Config, verbosity int) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	orch, err := buildOrchestrator(ctx, cfg, verbosity)
	if err != nil {
		return errors.Wrap(err, "reloaded config rejected, keeping the running engine")
	}
	runner.orch.Store(orch)

	logger.Infow("Engine rebuilt from reloaded config",
		"workers", cfg.Reconcile.Workers,
		"satisfying_labels", cfg.Statuses.SatisfyingLabels)
	logger.Infow("Schedule, port, and webhook secret changes still require a restart")
	return nil
}
