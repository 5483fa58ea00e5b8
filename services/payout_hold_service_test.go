package services

import (
	"testing"
	"time"

	"pitchflow-api/config"
	"pitchflow-api/models"
)

func TestHoldReleaseDateStandardSkipsWeekend(t *testing.T) {
	hold := NewPayoutHoldService(config.DefaultPayoutHoldConfig())

	// Friday afternoon; one business day lands on Monday at 09:00.
	friday := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	release := hold.CalculateHoldReleaseDate(models.WorkflowTypeStandard, friday)

	want := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	if !release.Equal(want) {
		t.Fatalf("release = %s, want %s", release, want)
	}
}

func TestHoldReleaseDateContestIsImmediate(t *testing.T) {
	hold := NewPayoutHoldService(config.DefaultPayoutHoldConfig())

	now := time.Date(2026, 8, 26, 11, 0, 0, 0, time.UTC)
	release := hold.CalculateHoldReleaseDate(models.WorkflowTypeContest, now)
	if !release.Equal(now) {
		t.Fatalf("contest release = %s, want immediate (%s)", release, now)
	}
}

func TestHoldReleaseDateUnknownWorkflowUsesDefault(t *testing.T) {
	cfg := config.DefaultPayoutHoldConfig()
	cfg.BusinessDaysOnly = false
	hold := NewPayoutHoldService(cfg)

	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	release := hold.CalculateHoldReleaseDate("something_else", from)

	want := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC) // 3 calendar days, 09:00
	if !release.Equal(want) {
		t.Fatalf("release = %s, want %s", release, want)
	}
}

func TestHoldMinimumHoursFloor(t *testing.T) {
	cfg := config.DefaultPayoutHoldConfig()
	cfg.MinimumHoldHours = 48
	hold := NewPayoutHoldService(cfg)

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	release := hold.CalculateHoldReleaseDate(models.WorkflowTypeContest, now)

	want := now.Add(48 * time.Hour)
	if !release.Equal(want) {
		t.Fatalf("release = %s, want floor %s", release, want)
	}
}

func TestHoldDisabledReleasesImmediately(t *testing.T) {
	cfg := config.DefaultPayoutHoldConfig()
	cfg.Enabled = false
	hold := NewPayoutHoldService(cfg)

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	if release := hold.CalculateHoldReleaseDate(models.WorkflowTypeStandard, now); !release.Equal(now) {
		t.Fatalf("release = %s, want %s", release, now)
	}
}

func TestValidateBypass(t *testing.T) {
	cfg := config.DefaultPayoutHoldConfig()
	cfg.RequireBypassReason = true
	hold := NewPayoutHoldService(cfg)

	admin := &models.User{UserID: 1, Role: models.RoleAdmin}
	regular := &models.User{UserID: 2, Role: models.RoleUser}

	if err := hold.ValidateBypass(regular, "why"); err == nil {
		t.Fatal("expected bypass by non-admin to fail")
	}
	if err := hold.ValidateBypass(admin, ""); err == nil {
		t.Fatal("expected bypass without reason to fail when reason is required")
	}
	if err := hold.ValidateBypass(admin, "refund settled off-platform"); err != nil {
		t.Fatalf("valid bypass rejected: %v", err)
	}
}
