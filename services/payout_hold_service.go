package services

import (
	"time"

	"pitchflow-api/config"
	"pitchflow-api/models"
)

// PayoutHoldService turns the hold configuration into concrete release dates.
// It is pure computation over an injected config; nothing here touches the
// database.
type PayoutHoldService struct {
	cfg config.PayoutHoldConfig
}

func NewPayoutHoldService(cfg config.PayoutHoldConfig) *PayoutHoldService {
	return &PayoutHoldService{cfg: cfg}
}

// CalculateHoldReleaseDate returns the moment a payout scheduled at `from`
// becomes releasable for the given workflow type. A zero-day hold releases
// immediately; otherwise the hold lands on the configured processing time of
// day, optionally counting business days only. The minimum hold window is a
// floor applied after everything else.
func (s *PayoutHoldService) CalculateHoldReleaseDate(workflowType string, from time.Time) time.Time {
	release := from
	if s.cfg.Enabled {
		days := s.cfg.DaysFor(workflowType)
		if days > 0 {
			if s.cfg.BusinessDaysOnly {
				release = addBusinessDays(from, days)
			} else {
				release = from.AddDate(0, 0, days)
			}
			release = time.Date(release.Year(), release.Month(), release.Day(),
				s.cfg.ProcessingHour, s.cfg.ProcessingMinute, 0, 0, release.Location())
		}
	}
	if s.cfg.MinimumHoldHours > 0 {
		floor := from.Add(time.Duration(s.cfg.MinimumHoldHours) * time.Hour)
		if release.Before(floor) {
			release = floor
		}
	}
	return release
}

// ImmediateRelease is the release date for payments that skip the hold, such
// as manual settlements.
func (s *PayoutHoldService) ImmediateRelease(from time.Time) time.Time {
	return from
}

// BypassReleaseDate is the earliest release an admin bypass can force: now,
// lifted to the minimum hold window when one is configured.
func (s *PayoutHoldService) BypassReleaseDate(from time.Time) time.Time {
	if s.cfg.MinimumHoldHours > 0 {
		return from.Add(time.Duration(s.cfg.MinimumHoldHours) * time.Hour)
	}
	return from
}

// ValidateBypass checks whether an admin may short-circuit a hold.
func (s *PayoutHoldService) ValidateBypass(admin *models.User, reason string) error {
	if !s.cfg.AllowAdminBypass {
		return &UnauthorizedActionError{UserID: admin.UserID, Action: "bypass payout holds (disabled by configuration)"}
	}
	if !admin.IsAdmin() {
		return &UnauthorizedActionError{UserID: admin.UserID, Action: "bypass payout holds"}
	}
	if s.cfg.RequireBypassReason && reason == "" {
		return &ValidationError{Field: "reason", Reason: "a bypass reason is required"}
	}
	return nil
}

// addBusinessDays advances `days` weekdays from `from`, skipping Saturdays
// and Sundays.
func addBusinessDays(from time.Time, days int) time.Time {
	t := from
	for added := 0; added < days; {
		t = t.AddDate(0, 0, 1)
		if t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
			added++
		}
	}
	return t
}
