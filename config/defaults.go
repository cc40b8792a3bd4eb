package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
// Board identifiers, relation columns, and credentials are deployment-specific
// and deliberately have no defaults; Validate rejects a config without them.
func SetDefaults(v *viper.Viper) {
	// Tracker defaults
	v.SetDefault("tracker.timeout_seconds", 30) // per-request cap; a hung call counts as a network failure on expiry
	v.SetDefault("tracker.max_retries", 3)
	v.SetDefault("tracker.rate_limit_per_minute", 100)
	v.SetDefault("tracker.page_size", 100)
	v.SetDefault("tracker.allow_private_hosts", false)

	// Boards: "status" is the conventional identifier of the first status column
	v.SetDefault("boards.dependency_status_column", "status")
	v.SetDefault("boards.dependent_status_column", "status")

	// Statuses: labels and indices for the standard board templates.
	// Index 5 is the tracker's default "not started" slot; verified against
	// the live schema at startup either way.
	v.SetDefault("statuses.satisfying_labels", []string{"Ready", "Excluded"})
	v.SetDefault("statuses.not_started_label", "Not Started")
	v.SetDefault("statuses.not_started_index", 5)
	v.SetDefault("statuses.target_label", "In Progress")
	v.SetDefault("statuses.target_index", 0)
	v.SetDefault("statuses.ready_label", "Ready")
	v.SetDefault("statuses.ready_index", 1)
	v.SetDefault("statuses.excluded_label", "Excluded")
	v.SetDefault("statuses.excluded_index", 2)

	// Reconcile defaults: run deadline = base + per_item * items,
	// one worker keeps call volume predictable
	v.SetDefault("reconcile.workers", 1)
	v.SetDefault("reconcile.run_timeout_base_seconds", 60)
	v.SetDefault("reconcile.run_timeout_per_item_seconds", 2)

	// Schedule defaults
	v.SetDefault("schedule.interval_minutes", 15)
	v.SetDefault("schedule.business_hours_only", false)
	v.SetDefault("schedule.business_hours_start", 7)
	v.SetDefault("schedule.business_hours_end", 19)
	v.SetDefault("schedule.timezone", "Local")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("tracker.api_token", "BATCHGATE_TRACKER_API_TOKEN")
	v.BindEnv("server.webhook_secret", "BATCHGATE_SERVER_WEBHOOK_SECRET")
}
