package config

import (
	"net/url"
	"time"

	"github.com/grainway/batchgate/errors"
)

// Validate checks that the configuration is complete and internally consistent.
// Every failure is a ConfigurationError: fatal at startup, before any run begins.
// Consistency against the live board schema is a separate remote check
// (tracker.VerifySchema); this only validates what is knowable offline.
func (c *Config) Validate() error {
	if err := c.Tracker.validate(); err != nil {
		return err
	}
	if err := c.Boards.validate(); err != nil {
		return err
	}
	if err := c.Statuses.validate(); err != nil {
		return err
	}
	if err := c.Reconcile.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	return c.Server.validate()
}

func (t TrackerConfig) validate() error {
	if t.APIURL == "" {
		return errors.NewConfigurationError("tracker.api_url is required")
	}
	u, err := url.Parse(t.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigurationError("tracker.api_url must be an http(s) URL, got %q", t.APIURL)
	}
	if t.APIToken == "" {
		return errors.NewConfigurationError("tracker.api_token is required (set BATCHGATE_TRACKER_API_TOKEN)")
	}
	if t.TimeoutSeconds <= 0 {
		return errors.NewConfigurationError("tracker.timeout_seconds must be > 0, got %d", t.TimeoutSeconds)
	}
	if t.MaxRetries < 0 {
		return errors.NewConfigurationError("tracker.max_retries must be >= 0, got %d", t.MaxRetries)
	}
	if t.RateLimitPerMinute < 0 {
		return errors.NewConfigurationError("tracker.rate_limit_per_minute must be >= 0, got %d (0 = unlimited)", t.RateLimitPerMinute)
	}
	if t.PageSize < 1 || t.PageSize > 500 {
		return errors.NewConfigurationError("tracker.page_size must be in [1, 500], got %d", t.PageSize)
	}
	return nil
}

func (b BoardsConfig) validate() error {
	if b.DependencyBoardID <= 0 {
		return errors.NewConfigurationError("boards.dependency_board_id is required, got %d", b.DependencyBoardID)
	}
	if b.DependentBoardID <= 0 {
		return errors.NewConfigurationError("boards.dependent_board_id is required, got %d", b.DependentBoardID)
	}
	if b.DependencyBoardID == b.DependentBoardID {
		return errors.NewConfigurationError("boards.dependency_board_id and boards.dependent_board_id must differ, both are %d", b.DependencyBoardID)
	}
	if b.DependencyStatusColumn == "" {
		return errors.NewConfigurationError("boards.dependency_status_column is required")
	}
	if b.DependentStatusColumn == "" {
		return errors.NewConfigurationError("boards.dependent_status_column is required")
	}
	if b.DependentRelationColumn == "" {
		return errors.NewConfigurationError("boards.dependent_relation_column is required")
	}
	if b.DependencyRelationColumn == "" {
		return errors.NewConfigurationError("boards.dependency_relation_column is required (targeted runs resolve dependents through it)")
	}
	return nil
}

func (s StatusConfig) validate() error {
	if len(s.SatisfyingLabels) == 0 {
		return errors.NewConfigurationError("statuses.satisfying_labels must name at least one label")
	}
	for _, label := range s.SatisfyingLabels {
		if label == "" {
			return errors.NewConfigurationError("statuses.satisfying_labels must not contain empty labels")
		}
	}

	labels := map[string]string{
		"statuses.not_started_label": s.NotStartedLabel,
		"statuses.target_label":      s.TargetLabel,
		"statuses.ready_label":       s.ReadyLabel,
		"statuses.excluded_label":    s.ExcludedLabel,
	}
	for key, label := range labels {
		if label == "" {
			return errors.NewConfigurationError("%s is required", key)
		}
	}

	indices := map[string]int{
		"statuses.not_started_index": s.NotStartedIndex,
		"statuses.target_index":      s.TargetIndex,
		"statuses.ready_index":       s.ReadyIndex,
		"statuses.excluded_index":    s.ExcludedIndex,
	}
	for key, index := range indices {
		if index < 0 {
			return errors.NewConfigurationError("%s must be >= 0, got %d", key, index)
		}
	}

	if s.NotStartedIndex == s.TargetIndex {
		return errors.NewConfigurationError("statuses.not_started_index and statuses.target_index must differ, both are %d", s.TargetIndex)
	}
	if s.NotStartedLabel == s.TargetLabel {
		return errors.NewConfigurationError("statuses.not_started_label and statuses.target_label must differ, both are %q", s.TargetLabel)
	}
	return nil
}

func (r ReconcileConfig) validate() error {
	// Workers: 0 and 1 both mean sequential, negative is invalid
	if r.Workers < 0 {
		return errors.NewConfigurationError("reconcile.workers must be >= 0, got %d", r.Workers)
	}
	if r.RunTimeoutBaseSeconds <= 0 {
		return errors.NewConfigurationError("reconcile.run_timeout_base_seconds must be > 0, got %d", r.RunTimeoutBaseSeconds)
	}
	if r.RunTimeoutPerItemSeconds < 0 {
		return errors.NewConfigurationError("reconcile.run_timeout_per_item_seconds must be >= 0, got %d", r.RunTimeoutPerItemSeconds)
	}
	return nil
}

func (s ScheduleConfig) validate() error {
	// Interval: 0 = no scheduled sweeps, negative = invalid
	if s.IntervalMinutes < 0 {
		return errors.NewConfigurationError("schedule.interval_minutes must be >= 0, got %d", s.IntervalMinutes)
	}
	if s.BusinessHoursOnly {
		if s.BusinessHoursStart < 0 || s.BusinessHoursStart > 23 {
			return errors.NewConfigurationError("schedule.business_hours_start must be in [0, 23], got %d", s.BusinessHoursStart)
		}
		if s.BusinessHoursEnd < 1 || s.BusinessHoursEnd > 24 {
			return errors.NewConfigurationError("schedule.business_hours_end must be in [1, 24], got %d", s.BusinessHoursEnd)
		}
		if s.BusinessHoursStart >= s.BusinessHoursEnd {
			return errors.NewConfigurationError("schedule.business_hours_start (%d) must be before schedule.business_hours_end (%d)", s.BusinessHoursStart, s.BusinessHoursEnd)
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return errors.NewConfigurationError("schedule.timezone %q is not a valid IANA timezone: %v", s.Timezone, err)
		}
	}
	return nil
}

func (s ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return errors.NewConfigurationError("server.port must be in [1, 65535], got %d", s.Port)
	}
	return nil
}
