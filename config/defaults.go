package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "printfarm.db")

	// Scheduler defaults
	v.SetDefault("scheduler.default_duration_hours", 4.0) // assumed for unsliced jobs
	v.SetDefault("scheduler.blackout_start", "22:30")
	v.SetDefault("scheduler.blackout_end", "05:30")
	v.SetDefault("scheduler.ticker_interval_seconds", 60)
	v.SetDefault("scheduler.retention_days", 90)

	// Quota defaults (0 = unlimited along that dimension)
	v.SetDefault("quota.default_period", "daily")
	v.SetDefault("quota.default_max_jobs", 0)
	v.SetDefault("quota.default_max_grams", 0.0)
	v.SetDefault("quota.default_max_hours", 0.0)
	v.SetDefault("quota.semester_anchor_months", []int{2, 8})

	// Approval defaults
	v.SetDefault("approval.require_approval", false)
	v.SetDefault("approval.reviewed_roles", []string{"student"})
	v.SetDefault("approval.reviewer_roles", []string{"staff", "admin"})

	// Dispatch defaults
	v.SetDefault("dispatch.transfer_timeout_seconds", 120)
	v.SetDefault("dispatch.start_timeout_seconds", 30)
	v.SetDefault("dispatch.starts_per_minute", 6)
}
