package commands

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grainway/batchgate/config"
	"github.com/grainway/batchgate/errors"
	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/reconcile"
	"github.com/grainway/batchgate/tracker"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildTracker constructs the board client from configuration.
func buildTracker(cfg *config.Config, verbosity int, log *zap.SugaredLogger) (*tracker.Client, error) {
	return tracker.New(tracker.Config{
		APIURL:             cfg.Tracker.APIURL,
		APIToken:           cfg.Tracker.APIToken,
		Timeout:            cfg.Tracker.Timeout(),
		MaxRetries:         cfg.Tracker.MaxRetries,
		RateLimitPerMinute: cfg.Tracker.RateLimitPerMinute,
		PageSize:           cfg.Tracker.PageSize,
		AllowPrivateHosts:  cfg.Tracker.AllowPrivateHosts,
		Verbosity:          verbosity,
		Boards: tracker.Boards{
			DependencyBoardID:        cfg.Boards.DependencyBoardID,
			DependentBoardID:         cfg.Boards.DependentBoardID,
			DependencyStatusColumn:   cfg.Boards.DependencyStatusColumn,
			DependentStatusColumn:    cfg.Boards.DependentStatusColumn,
			DependentRelationColumn:  cfg.Boards.DependentRelationColumn,
			DependencyRelationColumn: cfg.Boards.DependencyRelationColumn,
		},
		Logger: log,
	})
}

// buildRules maps the status configuration onto the engine's readiness rules.
func buildRules(cfg *config.Config) reconcile.Rules {
	return reconcile.Rules{
		SatisfyingLabels: cfg.Statuses.SatisfyingLabels,
		NotStartedLabel:  cfg.Statuses.NotStartedLabel,
		TargetLabel:      cfg.Statuses.TargetLabel,
		TargetIndex:      cfg.Statuses.TargetIndex,
	}
}

// buildOptions maps run-execution settings onto engine options.
func buildOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		Workers:           cfg.Reconcile.Workers,
		RunTimeoutBase:    time.Duration(cfg.Reconcile.RunTimeoutBaseSeconds) * time.Second,
		RunTimeoutPerItem: time.Duration(cfg.Reconcile.RunTimeoutPerItemSeconds) * time.Second,
	}
}

// schemaExpectations pins the configured (index, label) pairs for the
// startup consistency check.
func schemaExpectations(cfg *config.Config) tracker.SchemaExpectations {
	return tracker.SchemaExpectations{
		DependencyLabels: map[int]string{
			cfg.Statuses.ReadyIndex:    cfg.Statuses.ReadyLabel,
			cfg.Statuses.ExcludedIndex: cfg.Statuses.ExcludedLabel,
		},
		DependentLabels: map[int]string{
			cfg.Statuses.NotStartedIndex: cfg.Statuses.NotStartedLabel,
			cfg.Statuses.TargetIndex:     cfg.Statuses.TargetLabel,
		},
	}
}

// buildOrchestrator wires the engine: board client, schema verification,
// readiness rules. Schema mismatches are fatal here, before any run starts.
func buildOrchestrator(ctx context.Context, cfg *config.Config, verbosity int) (*reconcile.Orchestrator, error) {
	client, err := buildTracker(cfg, verbosity, logger.Named("tracker"))
	if err != nil {
		return nil, err
	}
	if err := client.VerifySchema(ctx, schemaExpectations(cfg)); err != nil {
		return nil, errors.Wrap(err, "board schema verification failed")
	}
	return reconcile.New(client, buildRules(cfg), buildOptions(cfg), logger.Named("reconcile")), nil
}
