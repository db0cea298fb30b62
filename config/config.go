// Package config loads and persists printfarm configuration.
package config

// Config represents the core printfarm configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
	Quota     QuotaConfig     `mapstructure:"quota" toml:"quota"`
	Approval  ApprovalConfig  `mapstructure:"approval" toml:"approval"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" toml:"dispatch"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// SchedulerConfig configures the scheduling engine
type SchedulerConfig struct {
	// DefaultDurationHours is assumed for jobs submitted before slicing
	// produced a real estimate. Never zero: an unknown duration must not
	// become an indefinite reservation.
	DefaultDurationHours float64 `mapstructure:"default_duration_hours" toml:"default_duration_hours"`

	// Blackout window during which no job may run, as "HH:MM" local times.
	// The window may wrap midnight (e.g. 22:30 -> 05:30).
	BlackoutStart string `mapstructure:"blackout_start" toml:"blackout_start"`
	BlackoutEnd   string `mapstructure:"blackout_end" toml:"blackout_end"`

	// TickerIntervalSeconds is how often `schedule watch` re-runs the engine
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds"`

	// ColorCompat maps a required color token to the loaded tokens that
	// satisfy it. Compatibility is data, not logic: an empty map means
	// exact-match only.
	ColorCompat map[string][]string `mapstructure:"color_compat" toml:"color_compat"`

	// RetentionDays controls cleanup of terminal jobs (0 = keep forever)
	RetentionDays int `mapstructure:"retention_days" toml:"retention_days"`
}

// QuotaConfig configures default per-principal quota limits.
// Zero values mean unlimited; per-principal rows in quota_limits override.
type QuotaConfig struct {
	DefaultPeriod   string  `mapstructure:"default_period" toml:"default_period"` // daily | weekly | monthly | semester
	DefaultMaxJobs  int     `mapstructure:"default_max_jobs" toml:"default_max_jobs"`
	DefaultMaxGrams float64 `mapstructure:"default_max_grams" toml:"default_max_grams"`
	DefaultMaxHours float64 `mapstructure:"default_max_hours" toml:"default_max_hours"`

	// SemesterAnchorMonths are the two months (1-12) at which semester
	// periods begin. Default Feb/Aug.
	SemesterAnchorMonths []int `mapstructure:"semester_anchor_months" toml:"semester_anchor_months"`
}

// ApprovalConfig configures the approval gate
type ApprovalConfig struct {
	// RequireApproval is the global policy switch. Off means every
	// submission skips the gate and enters the backlog directly.
	RequireApproval bool `mapstructure:"require_approval" toml:"require_approval"`

	// ReviewedRoles are principal roles whose submissions need review
	ReviewedRoles []string `mapstructure:"reviewed_roles" toml:"reviewed_roles"`

	// ReviewerRoles are principal roles allowed to approve/reject
	ReviewerRoles []string `mapstructure:"reviewer_roles" toml:"reviewer_roles"`
}

// DispatchConfig configures the dispatch coordinator
type DispatchConfig struct {
	// TransferTimeoutSeconds bounds stage (a), the file transfer
	TransferTimeoutSeconds int `mapstructure:"transfer_timeout_seconds" toml:"transfer_timeout_seconds"`

	// StartTimeoutSeconds bounds stage (b), the start confirmation.
	// A start that does not confirm within this window is treated as failed.
	StartTimeoutSeconds int `mapstructure:"start_timeout_seconds" toml:"start_timeout_seconds"`

	// StartsPerMinute rate-limits start commands per printer so firmware
	// is never hammered by bulk operations
	StartsPerMinute int `mapstructure:"starts_per_minute" toml:"starts_per_minute"`
}
