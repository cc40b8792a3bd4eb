package reconcile

import (
	"time"
)

// Rules is the fixed readiness policy, loaded once from configuration.
// SatisfyingLabels are the dependency states that count toward readiness;
// NotStartedLabel is the only dependent state the engine will transition away
// from; TargetLabel/TargetIndex name the state it transitions to, by the
// board service's positional encoding.
type Rules struct {
	SatisfyingLabels []string
	NotStartedLabel  string
	TargetLabel      string
	TargetIndex      int
}

// satisfies reports whether one dependency status label counts toward
// readiness. An empty label (unset or missing item) never satisfies.
func (r Rules) satisfies(label string) bool {
	if label == "" {
		return false
	}
	for _, s := range r.SatisfyingLabels {
		if label == s {
			return true
		}
	}
	return false
}

// Evaluation is the aggregate readiness decision for one dependent item.
type Evaluation struct {
	Ready      bool
	ReadyCount int
	TotalCount int
}

// Outcome records what happened to one dependent item during a run. Never
// persisted; aggregated into the run summary.
type Outcome struct {
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name,omitempty"`
	Updated     bool   `json:"updated"`
	WouldUpdate bool   `json:"would_update,omitempty"`
	Reason      string `json:"reason"`
}

// Mode names which entry point produced a run summary.
type Mode string

const (
	ModeSweep    Mode = "sweep"
	ModeTargeted Mode = "targeted"
)

// RunSummary aggregates one reconciliation run. Skipped is always
// Processed - Updated - WouldUpdate, so partial failure is visible without
// parsing individual reasons.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Mode        Mode          `json:"mode"`
	TargetID    string        `json:"target_id,omitempty"` // targeted runs: the dependency item that changed
	DryRun      bool          `json:"dry_run"`
	Processed   int           `json:"processed"`
	Updated     int           `json:"updated"`
	WouldUpdate int           `json:"would_update"`
	Skipped     int           `json:"skipped"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Outcomes    []Outcome     `json:"outcomes"`
}

// Options bounds a run's concurrency and overall deadline.
type Options struct {
	// Workers caps concurrent per-item pipelines. 0 or 1 processes items
	// sequentially, which keeps remote call volume predictable.
	Workers int

	// Run deadline = RunTimeoutBase + RunTimeoutPerItem * item count.
	// In-flight items finish after expiry; no new items start.
	RunTimeoutBase    time.Duration
	RunTimeoutPerItem time.Duration
}

const (
	defaultRunTimeoutBase    = time.Minute
	defaultRunTimeoutPerItem = 2 * time.Second
)

// runTimeout computes the overall deadline for a run over itemCount items.
func (o Options) runTimeout(itemCount int) time.Duration {
	base := o.RunTimeoutBase
	if base <= 0 {
		base = defaultRunTimeoutBase
	}
	perItem := o.RunTimeoutPerItem
	if perItem < 0 {
		perItem = defaultRunTimeoutPerItem
	}
	return base + time.Duration(itemCount)*perItem
}
