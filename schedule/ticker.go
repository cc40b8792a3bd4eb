// Package schedule drives the periodic full sweep: a ticker that fires during
// configured business hours and hands each tick to the reconciliation
// orchestrator. The scheduled path exists to catch items whose triggering
// webhook was missed.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/reconcile"
)

// SweepRunner is the slice of the orchestrator the ticker consumes.
type SweepRunner interface {
	RunFullSweep(ctx context.Context, dryRun bool) (*reconcile.RunSummary, error)
}

// RunBroadcaster publishes completed run summaries to live feeds. Declared
// here so the server package can implement it without a package cycle.
type RunBroadcaster interface {
	BroadcastRunSummary(summary *reconcile.RunSummary)
}

// Config bounds when scheduled sweeps fire. Interval <= 0 disables the
// ticker entirely; webhook and manual triggers still work.
type Config struct {
	Interval time.Duration

	// BusinessHoursOnly restricts sweeps to weekdays between Start (inclusive)
	// and End (exclusive), in Location's local hours.
	BusinessHoursOnly  bool
	BusinessHoursStart int
	BusinessHoursEnd   int
	Location           *time.Location
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// withinBusinessHours reports whether a sweep may fire at the given instant.
func (c Config) withinBusinessHours(now time.Time) bool {
	if !c.BusinessHoursOnly {
		return true
	}
	local := now.In(c.location())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := local.Hour()
	return hour >= c.BusinessHoursStart && hour < c.BusinessHoursEnd
}

// Ticker fires periodic full sweeps. One goroutine runs sweeps sequentially;
// a tick that arrives while a sweep is still running is dropped, never queued.
type Ticker struct {
	runner      SweepRunner
	broadcaster RunBroadcaster
	cfg         Config
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *zap.SugaredLogger

	mu          sync.Mutex
	lastTickAt  time.Time
	lastSummary *reconcile.RunSummary
	ticks       int64
}

// NewTicker creates a sweep ticker. broadcaster may be nil.
func NewTicker(runner SweepRunner, broadcaster RunBroadcaster, cfg Config, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), runner, broadcaster, cfg, log)
}

// NewTickerWithContext creates a ticker whose lifetime is bounded by a parent
// context as well as Stop.
func NewTickerWithContext(ctx context.Context, runner SweepRunner, broadcaster RunBroadcaster, cfg Config, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	if log == nil {
		log = logger.Named("schedule")
	}
	return &Ticker{
		runner:      runner,
		broadcaster: broadcaster,
		cfg:         cfg,
		ctx:         tickerCtx,
		cancel:      cancel,
		logger:      log,
	}
}

// Start begins the ticker loop. With a non-positive interval the ticker stays
// inert: scheduled sweeps disabled, other trigger paths unaffected.
func (t *Ticker) Start() {
	if t.cfg.Interval <= 0 {
		t.logger.Infow("Scheduled sweeps disabled", "interval", t.cfg.Interval)
		return
	}
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Sweep ticker started",
		"interval", t.cfg.Interval,
		"business_hours_only", t.cfg.BusinessHoursOnly)
}

// Stop cancels the loop and waits for an in-flight sweep to wind down.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Sweep ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticks++
			t.mu.Unlock()

			if !t.cfg.withinBusinessHours(tickTime) {
				t.logger.Debugw("Skipping sweep outside business hours",
					"tick_at", tickTime)
				continue
			}

			t.sweep()

			// A sweep longer than the interval leaves a stale tick queued;
			// drop it so sweeps never run back to back
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (t *Ticker) sweep() {
	summary, err := t.runner.RunFullSweep(t.ctx, false)
	if err != nil {
		t.logger.Errorw("Scheduled sweep failed",
			logger.FieldError, err)
		return
	}

	t.mu.Lock()
	t.lastSummary = summary
	t.mu.Unlock()

	t.logHeartbeat(summary)

	if t.broadcaster != nil {
		t.broadcaster.BroadcastRunSummary(summary)
	}
}

const bytesPerGB = 1024 * 1024 * 1024

// logHeartbeat emits the per-sweep status line with memory usage appended,
// the operator's at-a-glance view of a long-running daemon.
func (t *Ticker) logHeartbeat(summary *reconcile.RunSummary) {
	msg := fmt.Sprintf("Sweep complete - %d items, %d updated, %d skipped in %s",
		summary.Processed, summary.Updated, summary.Skipped,
		summary.Duration.Round(time.Second))
	if v, err := mem.VirtualMemory(); err == nil {
		msg += fmt.Sprintf(" │ Mem: %.1f/%.1fGB (%.0f%%)",
			float64(v.Total-v.Available)/bytesPerGB,
			float64(v.Total)/bytesPerGB,
			v.UsedPercent)
	}
	t.logger.Infow(msg)
}

// LastRun returns the most recent completed sweep summary, nil before the
// first completion.
func (t *Ticker) LastRun() *reconcile.RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSummary
}

// Stats returns ticker state for the status endpoint.
func (t *Ticker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticks,
		"interval":          t.cfg.Interval.String(),
	}
}
