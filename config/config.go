// Package config loads and validates the batchgate configuration from TOML
// files and BATCHGATE_* environment variables.
package config

import "time"

// Config is the complete batchgate configuration.
type Config struct {
	Tracker   TrackerConfig   `mapstructure:"tracker" toml:"tracker" json:"tracker"`
	Boards    BoardsConfig    `mapstructure:"boards" toml:"boards" json:"boards"`
	Statuses  StatusConfig    `mapstructure:"statuses" toml:"statuses" json:"statuses"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" toml:"reconcile" json:"reconcile"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" toml:"schedule" json:"schedule"`
	Server    ServerConfig    `mapstructure:"server" toml:"server" json:"server"`
}

// TrackerConfig configures access to the tracking service's GraphQL API
type TrackerConfig struct {
	APIURL             string `mapstructure:"api_url" toml:"api_url" json:"api_url"`
	APIToken           string `mapstructure:"api_token" toml:"api_token" json:"api_token"` // prefer BATCHGATE_TRACKER_API_TOKEN over config files
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries         int    `mapstructure:"max_retries" toml:"max_retries" json:"max_retries"`                                     // retry attempts for transport failures (default: 3)
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`       // 0 = unlimited
	PageSize           int    `mapstructure:"page_size" toml:"page_size" json:"page_size"`                                           // items per page when sweeping the dependent board
	AllowPrivateHosts  bool   `mapstructure:"allow_private_hosts" toml:"allow_private_hosts" json:"allow_private_hosts"`             // permit self-hosted trackers on internal networks
}

// Timeout returns the per-request timeout as a duration
func (t TrackerConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// BoardsConfig identifies the two boards and the columns the engine reads and writes.
// Board and column identifiers are deployment-specific and have no usable defaults.
type BoardsConfig struct {
	DependencyBoardID      int64  `mapstructure:"dependency_board_id" toml:"dependency_board_id" json:"dependency_board_id"` // board holding purchase orders
	DependentBoardID       int64  `mapstructure:"dependent_board_id" toml:"dependent_board_id" json:"dependent_board_id"`    // board holding production batches
	DependencyStatusColumn string `mapstructure:"dependency_status_column" toml:"dependency_status_column" json:"dependency_status_column"`
	DependentStatusColumn  string `mapstructure:"dependent_status_column" toml:"dependent_status_column" json:"dependent_status_column"`
	// Relation column on the dependent board pointing at dependency items
	DependentRelationColumn string `mapstructure:"dependent_relation_column" toml:"dependent_relation_column" json:"dependent_relation_column"`
	// Back-relation column on the dependency board pointing at dependent items (targeted runs)
	DependencyRelationColumn string `mapstructure:"dependency_relation_column" toml:"dependency_relation_column" json:"dependency_relation_column"`
}

// StatusConfig pins the status labels the engine recognizes and the positional
// indices it writes. The tracking service encodes status mutations by index
// into the column's label set, so each (label, index) pair is verified against
// the live schema at startup rather than reinterpreted per run.
type StatusConfig struct {
	SatisfyingLabels []string `mapstructure:"satisfying_labels" toml:"satisfying_labels" json:"satisfying_labels"` // dependency labels that count toward readiness

	// Dependent board: the one transition this engine fires
	NotStartedLabel string `mapstructure:"not_started_label" toml:"not_started_label" json:"not_started_label"`
	NotStartedIndex int    `mapstructure:"not_started_index" toml:"not_started_index" json:"not_started_index"`
	TargetLabel     string `mapstructure:"target_label" toml:"target_label" json:"target_label"`
	TargetIndex     int    `mapstructure:"target_index" toml:"target_index" json:"target_index"`

	// Dependency board: the two readiness-qualifying states
	ReadyLabel    string `mapstructure:"ready_label" toml:"ready_label" json:"ready_label"`
	ReadyIndex    int    `mapstructure:"ready_index" toml:"ready_index" json:"ready_index"`
	ExcludedLabel string `mapstructure:"excluded_label" toml:"excluded_label" json:"excluded_label"`
	ExcludedIndex int    `mapstructure:"excluded_index" toml:"excluded_index" json:"excluded_index"`
}

// SatisfyingSet returns the satisfying labels as a set for the readiness evaluator
func (s StatusConfig) SatisfyingSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.SatisfyingLabels))
	for _, label := range s.SatisfyingLabels {
		set[label] = struct{}{}
	}
	return set
}

// Satisfies reports whether a dependency status label counts toward readiness
func (s StatusConfig) Satisfies(label string) bool {
	for _, l := range s.SatisfyingLabels {
		if l == label {
			return true
		}
	}
	return false
}

// ReconcileConfig configures run execution
type ReconcileConfig struct {
	Workers                  int `mapstructure:"workers" toml:"workers" json:"workers"` // concurrent per-item pipelines (default: 1, sequential)
	RunTimeoutBaseSeconds    int `mapstructure:"run_timeout_base_seconds" toml:"run_timeout_base_seconds" json:"run_timeout_base_seconds"`
	RunTimeoutPerItemSeconds int `mapstructure:"run_timeout_per_item_seconds" toml:"run_timeout_per_item_seconds" json:"run_timeout_per_item_seconds"`
}

// RunTimeout returns the overall deadline for a run processing the given
// number of items, distinct from the per-call timeout
func (r ReconcileConfig) RunTimeout(itemCount int) time.Duration {
	base := time.Duration(r.RunTimeoutBaseSeconds) * time.Second
	perItem := time.Duration(r.RunTimeoutPerItemSeconds) * time.Second
	return base + time.Duration(itemCount)*perItem
}

// ScheduleConfig configures the periodic full-sweep ticker
type ScheduleConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes" toml:"interval_minutes" json:"interval_minutes"` // 0 = no scheduled sweeps

	// When true, scheduled sweeps fire only Monday through Friday within
	// [business_hours_start, business_hours_end) in the configured timezone.
	// Manual and webhook-triggered runs are never gated.
	BusinessHoursOnly  bool   `mapstructure:"business_hours_only" toml:"business_hours_only" json:"business_hours_only"`
	BusinessHoursStart int    `mapstructure:"business_hours_start" toml:"business_hours_start" json:"business_hours_start"`
	BusinessHoursEnd   int    `mapstructure:"business_hours_end" toml:"business_hours_end" json:"business_hours_end"`
	Timezone           string `mapstructure:"timezone" toml:"timezone" json:"timezone"` // IANA name, default "Local"
}

// Interval returns the sweep interval as a duration
func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Location resolves the configured timezone
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ServerConfig configures the batchgate daemon's HTTP surface
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" json:"port"`
	WebhookSecret  string   `mapstructure:"webhook_secret" toml:"webhook_secret" json:"webhook_secret"` // prefer BATCHGATE_SERVER_WEBHOOK_SECRET; empty disables the check
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins"`
}

// Server port constant
const (
	DefaultServerPort = 8337 // above privileged range, unlikely to collide
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
