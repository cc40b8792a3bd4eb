// Package reconcile is the status-reconciliation engine: it re-derives every
// decision from the board service on each run, so runs are idempotent and
// safe to overlap. Two entry points share one per-item pipeline: a full sweep
// over the dependent board, and a targeted pass over the items linked to one
// changed dependency.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/errors"
	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/tracker"
)

// BoardClient is the slice of the tracker client the orchestrator consumes.
// All methods are independent request/response pairs, safe for concurrent use.
type BoardClient interface {
	DependentItems(ctx context.Context, ids []string) ([]tracker.DependentItem, error)
	DependencyStatuses(ctx context.Context, ids []string) ([]tracker.DependencyStatus, error)
	DependencyItem(ctx context.Context, id string) (*tracker.DependencyItem, error)
	UpdateDependentStatus(ctx context.Context, itemID string, statusIndex int) error
	Boards() tracker.Boards
}

// Orchestrator owns run sequencing. It holds no cross-run state; correctness
// against concurrent runs comes from re-checking remote state per item, not
// from locking.
type Orchestrator struct {
	client BoardClient
	rules  Rules
	opts   Options
	logger *zap.SugaredLogger
}

// New wires an orchestrator. A nil logger falls back to the package logger.
func New(client BoardClient, rules Rules, opts Options, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = logger.Named("reconcile")
	}
	return &Orchestrator{
		client: client,
		rules:  rules,
		opts:   opts,
		logger: log,
	}
}

// RunFullSweep enumerates every dependent item and reconciles each one. The
// scheduled path uses this to catch items whose triggering event was missed.
// Enumeration failure is run-fatal; per-item failures are not.
func (o *Orchestrator) RunFullSweep(ctx context.Context, dryRun bool) (*RunSummary, error) {
	items, err := o.client.DependentItems(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate dependent items")
	}
	return o.run(ctx, ModeSweep, "", items, dryRun), nil
}

// RunTargeted reconciles only the dependent items linked to one dependency
// item that just changed. A vanished dependency item yields an empty run, not
// an error: there is nothing left to gate.
func (o *Orchestrator) RunTargeted(ctx context.Context, dependencyItemID string, dryRun bool) (*RunSummary, error) {
	dep, err := o.client.DependencyItem(ctx, dependencyItemID)
	if err != nil {
		if errors.IsNotFound(err) {
			o.logger.Warnw("Dependency item no longer exists, nothing to reconcile",
				logger.FieldDependencyID, dependencyItemID)
			return o.run(ctx, ModeTargeted, dependencyItemID, nil, dryRun), nil
		}
		return nil, errors.Wrapf(err, "failed to fetch dependency item %s", dependencyItemID)
	}

	ids := DependentIDsOnBoard(dep, o.client.Boards().DependentBoardID)
	if len(ids) == 0 {
		o.logger.Infow("Dependency item has no dependents on the dependent board",
			logger.FieldDependencyID, dependencyItemID)
		return o.run(ctx, ModeTargeted, dependencyItemID, nil, dryRun), nil
	}

	items, err := o.client.DependentItems(ctx, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch dependents of %s", dependencyItemID)
	}
	return o.run(ctx, ModeTargeted, dependencyItemID, items, dryRun), nil
}

// run executes the shared pipeline over a resolved item set and aggregates
// the summary. The run deadline scales with item count; on expiry, in-flight
// items finish but no new ones start.
func (o *Orchestrator) run(ctx context.Context, mode Mode, targetID string, items []tracker.DependentItem, dryRun bool) *RunSummary {
	runID := uuid.NewString()
	started := time.Now()

	log := o.logger.With(
		logger.FieldRunID, runID,
		logger.FieldMode, string(mode),
		logger.FieldDryRun, dryRun)
	log.Infow("Reconciliation run started", "items", len(items))

	runCtx, cancel := context.WithTimeout(ctx, o.opts.runTimeout(len(items)))
	defer cancel()

	outcomes := o.processItems(runCtx, log, items, dryRun)

	summary := &RunSummary{
		RunID:     runID,
		Mode:      mode,
		TargetID:  targetID,
		DryRun:    dryRun,
		Processed: len(outcomes),
		StartedAt: started,
		Outcomes:  outcomes,
	}
	for _, outcome := range outcomes {
		if outcome.Updated {
			summary.Updated++
		}
		if outcome.WouldUpdate {
			summary.WouldUpdate++
		}
	}
	summary.Skipped = summary.Processed - summary.Updated - summary.WouldUpdate
	summary.Duration = time.Since(started)

	log.Infow("Reconciliation run complete",
		logger.FieldProcessed, summary.Processed,
		logger.FieldUpdated, summary.Updated,
		"would_update", summary.WouldUpdate,
		logger.FieldSkipped, summary.Skipped,
		logger.FieldDurationMS, summary.Duration.Milliseconds())
	return summary
}

// processItems runs the per-item pipeline over all items, sequentially or
// through a bounded worker pool. Workers share only the stateless client;
// each outcome travels over a channel, never shared memory.
func (o *Orchestrator) processItems(ctx context.Context, log *zap.SugaredLogger, items []tracker.DependentItem, dryRun bool) []Outcome {
	workers := o.opts.Workers
	if workers < 1 {
		workers = 1
	}

	if workers == 1 {
		outcomes := make([]Outcome, 0, len(items))
		for i, item := range items {
			if ctx.Err() != nil {
				log.Warnw("Run deadline reached, leaving remaining items to the next sweep",
					"remaining", len(items)-i)
				break
			}
			outcomes = append(outcomes, o.processItem(context.WithoutCancel(ctx), log, item, dryRun))
		}
		return outcomes
	}

	work := make(chan tracker.DependentItem)
	results := make(chan Outcome, len(items))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				// Detached from the run deadline: an item already started is
				// committed to its remote calls, which carry their own timeout
				results <- o.processItem(context.WithoutCancel(ctx), log, item, dryRun)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			log.Warnw("Run deadline reached, leaving remaining items to the next sweep",
				"remaining", len(items)-dispatched)
			break dispatch
		case work <- item:
			dispatched++
		}
	}
	close(work)
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(items))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// processItem is the per-item pipeline: eligibility check, dependency
// resolution, batched status fetch, evaluation, then the guarded transition.
// Every failure is captured in the outcome; nothing here aborts the run.
func (o *Orchestrator) processItem(ctx context.Context, log *zap.SugaredLogger, item tracker.DependentItem, dryRun bool) Outcome {
	outcome := Outcome{ItemID: item.ID, ItemName: item.Name}

	// Terminal states are checked before any dependency fetch: an item that
	// already left the starting state costs zero extra remote calls
	if item.StatusLabel != o.rules.NotStartedLabel {
		label := item.StatusLabel
		if label == "" {
			label = "unset"
		}
		outcome.Reason = "already " + label
		log.Debugw("Skipping item",
			logger.FieldItemID, item.ID,
			logger.FieldReason, outcome.Reason)
		return outcome
	}

	depIDs := DependencyIDs(item)
	if len(depIDs) == 0 {
		outcome.Reason = "no dependencies"
		log.Debugw("Skipping item",
			logger.FieldItemID, item.ID,
			logger.FieldReason, outcome.Reason)
		return outcome
	}

	labels, err := o.dependencyLabels(ctx, log, depIDs)
	if err != nil {
		outcome.Reason = fmt.Sprintf("dependency fetch failed: %v", err)
		log.Warnw("Skipping item, dependency statuses unavailable",
			logger.FieldItemID, item.ID,
			logger.FieldError, err)
		return outcome
	}

	eval := o.rules.Evaluate(labels)
	if !eval.Ready {
		outcome.Reason = fmt.Sprintf("%d/%d ready", eval.ReadyCount, eval.TotalCount)
		log.Debugw("Skipping item, dependencies pending",
			logger.FieldItemID, item.ID,
			logger.FieldReason, outcome.Reason)
		return outcome
	}

	if dryRun {
		outcome.WouldUpdate = true
		outcome.Reason = "would update"
		log.Infow("Would update item",
			logger.FieldItemID, item.ID,
			logger.FieldItemName, item.Name)
		return outcome
	}

	if err := o.client.UpdateDependentStatus(ctx, item.ID, o.rules.TargetIndex); err != nil {
		outcome.Reason = fmt.Sprintf("update failed: %v", err)
		log.Warnw("Failed to update item",
			logger.FieldItemID, item.ID,
			logger.FieldError, err)
		return outcome
	}

	outcome.Updated = true
	outcome.Reason = "updated to " + o.rules.TargetLabel
	log.Infow("Updated item",
		logger.FieldItemID, item.ID,
		logger.FieldItemName, item.Name,
		"status", o.rules.TargetLabel)
	return outcome
}

// dependencyLabels fetches the status labels for a dependency id set in one
// batched call, positionally aligned with ids. Missing items come back as
// empty labels so they count against readiness instead of failing the item.
func (o *Orchestrator) dependencyLabels(ctx context.Context, log *zap.SugaredLogger, ids []string) ([]string, error) {
	statuses, err := o.client.DependencyStatuses(ctx, ids)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, err
		}
		log.Warnw("Some dependency items are missing, counting them as not ready",
			logger.FieldError, err)
	}

	byID := make(map[string]string, len(statuses))
	for _, status := range statuses {
		byID[status.ID] = status.Label
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = byID[id]
	}
	return labels, nil
}
