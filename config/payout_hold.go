package config

import (
	"os"
	"strconv"
	"strings"

	"pitchflow-api/models"
)

// PayoutHoldConfig controls the delay between a payment completing and the
// producer's payout becoming releasable. It is loaded once and injected into
// the payout services; nothing in the engine reads it ambiently.
type PayoutHoldConfig struct {
	Enabled          bool
	DefaultDays      int
	WorkflowDays     map[string]int
	BusinessDaysOnly bool
	// ProcessingHour/ProcessingMinute is the local time of day scheduled
	// payouts are released at.
	ProcessingHour      int
	ProcessingMinute    int
	MinimumHoldHours    int
	AllowAdminBypass    bool
	RequireBypassReason bool
}

// DefaultPayoutHoldConfig mirrors the platform defaults: three calendar days
// by default, one business day for standard projects, immediate release for
// contests and client projects.
func DefaultPayoutHoldConfig() PayoutHoldConfig {
	return PayoutHoldConfig{
		Enabled:     true,
		DefaultDays: 3,
		WorkflowDays: map[string]int{
			models.WorkflowTypeStandard:         1,
			models.WorkflowTypeContest:          0,
			models.WorkflowTypeClientManagement: 0,
		},
		BusinessDaysOnly:    true,
		ProcessingHour:      9,
		ProcessingMinute:    0,
		MinimumHoldHours:    0,
		AllowAdminBypass:    true,
		RequireBypassReason: false,
	}
}

// LoadPayoutHoldConfig builds the hold configuration from environment
// variables, falling back to the defaults for anything unset.
func LoadPayoutHoldConfig() PayoutHoldConfig {
	cfg := DefaultPayoutHoldConfig()

	if v := os.Getenv("PAYOUT_HOLD_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if n, ok := envInt("PAYOUT_HOLD_DEFAULT_DAYS"); ok {
		cfg.DefaultDays = n
	}
	if n, ok := envInt("PAYOUT_HOLD_STANDARD_DAYS"); ok {
		cfg.WorkflowDays[models.WorkflowTypeStandard] = n
	}
	if n, ok := envInt("PAYOUT_HOLD_CONTEST_DAYS"); ok {
		cfg.WorkflowDays[models.WorkflowTypeContest] = n
	}
	if n, ok := envInt("PAYOUT_HOLD_CLIENT_MANAGEMENT_DAYS"); ok {
		cfg.WorkflowDays[models.WorkflowTypeClientManagement] = n
	}
	if v := os.Getenv("PAYOUT_HOLD_BUSINESS_DAYS_ONLY"); v != "" {
		cfg.BusinessDaysOnly = v == "true" || v == "1"
	}
	if v := os.Getenv("PAYOUT_HOLD_PROCESSING_TIME"); v != "" {
		if h, m, ok := parseClock(v); ok {
			cfg.ProcessingHour = h
			cfg.ProcessingMinute = m
		}
	}
	if n, ok := envInt("PAYOUT_HOLD_MINIMUM_HOURS"); ok {
		cfg.MinimumHoldHours = n
	}
	if v := os.Getenv("PAYOUT_HOLD_ALLOW_ADMIN_BYPASS"); v != "" {
		cfg.AllowAdminBypass = v == "true" || v == "1"
	}
	if v := os.Getenv("PAYOUT_HOLD_REQUIRE_BYPASS_REASON"); v != "" {
		cfg.RequireBypassReason = v == "true" || v == "1"
	}

	return cfg
}

// DaysFor returns the hold days for a workflow type, falling back to the
// default when no override exists.
func (c PayoutHoldConfig) DaysFor(workflowType string) int {
	if days, ok := c.WorkflowDays[workflowType]; ok {
		return days
	}
	return c.DefaultDays
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseClock(v string) (hour, minute int, ok bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
