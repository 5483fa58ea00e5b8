package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pitchflow-api/config"
	"pitchflow-api/models"
)

// Runs a standard-workflow pitch all the way to paid so a payout sits behind
// the one-business-day hold.
func scheduleHeldPayout(t *testing.T, s *testStack, tier string) (*models.User, *models.PayoutSchedule) {
	t.Helper()
	owner := createTestUser(t, s.db, "buyer", models.TierFree)
	producer := createTestUser(t, s.db, "seller", tier)
	project := createTestProject(t, s.db, owner.UserID, models.WorkflowTypeStandard, decimal.NewFromInt(500))

	pitch, err := s.workflow.CreatePitch(project.ProjectID, producer.UserID)
	if err != nil {
		t.Fatalf("create pitch: %v", err)
	}
	if _, err := s.workflow.ApproveInitialPitch(pitch.PitchID, owner.UserID); err != nil {
		t.Fatalf("approve initial: %v", err)
	}
	addTestFile(t, s.db, pitch.PitchID, producer.UserID)
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.workflow.ApproveSubmittedPitch(pitch.PitchID, *pitch.CurrentSnapshotID, owner.UserID); err != nil {
		t.Fatalf("approve submission: %v", err)
	}
	if _, err := s.workflow.CompletePitch(pitch.PitchID, owner.UserID, "", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.workflow.MarkPitchAsPaid(pitch.PitchID, "in_held"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	var payout models.PayoutSchedule
	if err := s.db.First(&payout, "pitch_id = ?", pitch.PitchID).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	return producer, &payout
}

func TestProTierCommissionRate(t *testing.T) {
	s := newTestStack(t)
	_, payout := scheduleHeldPayout(t, s, models.TierPro)

	if !payout.CommissionRate.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("commission rate = %s, want 8", payout.CommissionRate)
	}
	wantCommission := decimal.NewFromInt(40) // 8% of 500
	if !payout.CommissionAmount.Equal(wantCommission) {
		t.Fatalf("commission = %s, want %s", payout.CommissionAmount, wantCommission)
	}
	if !payout.NetAmount.Equal(decimal.NewFromInt(460)) {
		t.Fatalf("net = %s, want 460", payout.NetAmount)
	}
}

func TestProcessDuePayoutsRespectsHold(t *testing.T) {
	s := newTestStack(t)
	producer, payout := scheduleHeldPayout(t, s, models.TierFree)

	// Still inside the hold window: nothing releases.
	released, err := s.payouts.ProcessDuePayouts(time.Now())
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if released != 0 {
		t.Fatalf("released %d payouts inside the hold window", released)
	}

	// Past the release date the payout completes and settles its transaction.
	released, err = s.payouts.ProcessDuePayouts(payout.HoldReleaseDate.Add(time.Minute))
	if err != nil {
		t.Fatalf("process due after hold: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	var done models.PayoutSchedule
	if err := s.db.First(&done, "payout_schedule_id = ?", payout.PayoutScheduleID).Error; err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if done.Status != models.PayoutStatusCompleted || done.CompletedAt == nil || done.PaymentReference == nil {
		t.Fatalf("payout after release: status=%s completed_at=%v ref=%v", done.Status, done.CompletedAt, done.PaymentReference)
	}
	if done.TransactionID == nil {
		t.Fatal("payout has no linked transaction")
	}
	var txn models.Transaction
	if err := s.db.First(&txn, "transaction_id = ?", *done.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Status != models.TransactionStatusCompleted || txn.UserID != producer.UserID {
		t.Fatalf("transaction status=%s user=%d, want completed for %d", txn.Status, txn.UserID, producer.UserID)
	}
	if !txn.Amount.Equal(done.NetAmount) {
		t.Fatalf("transaction amount = %s, want net %s", txn.Amount, done.NetAmount)
	}
}

func TestBypassHoldReleasesEarly(t *testing.T) {
	s := newTestStack(t)
	_, payout := scheduleHeldPayout(t, s, models.TierFree)
	admin := createTestAdmin(t, s.db)

	regular := createTestUser(t, s.db, "bystander", models.TierFree)
	if _, err := s.payouts.BypassHold(payout.PayoutScheduleID, regular, "please"); err == nil {
		t.Fatal("expected bypass by non-admin to fail")
	}

	bypassed, err := s.payouts.BypassHold(payout.PayoutScheduleID, admin, "dispute resolved early")
	if err != nil {
		t.Fatalf("bypass hold: %v", err)
	}
	if !bypassed.HoldBypassed || bypassed.BypassAdminID == nil || *bypassed.BypassAdminID != admin.UserID {
		t.Fatalf("bypass not recorded: %+v", bypassed)
	}
	if bypassed.HoldReleaseDate.After(time.Now().Add(time.Minute)) {
		t.Fatalf("release date %s still in the future after bypass", bypassed.HoldReleaseDate)
	}

	released, err := s.payouts.ProcessDuePayouts(time.Now())
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1 after bypass", released)
	}
}

func TestBypassHoldKeepsMinimumWindow(t *testing.T) {
	s := newTestStack(t)
	_, payout := scheduleHeldPayout(t, s, models.TierFree)
	admin := createTestAdmin(t, s.db)

	cfg := config.DefaultPayoutHoldConfig()
	cfg.MinimumHoldHours = 6
	floored := NewPayoutService(s.db, NewPayoutHoldService(cfg))

	before := time.Now()
	bypassed, err := floored.BypassHold(payout.PayoutScheduleID, admin, "verified off-platform")
	if err != nil {
		t.Fatalf("bypass hold: %v", err)
	}
	if bypassed.HoldReleaseDate.Before(before.Add(5 * time.Hour)) {
		t.Fatalf("bypass release %s does not keep the minimum hold window", bypassed.HoldReleaseDate)
	}
}

func TestCancelPayoutCancelsTransaction(t *testing.T) {
	s := newTestStack(t)
	_, payout := scheduleHeldPayout(t, s, models.TierFree)

	if err := s.payouts.CancelPayout(payout.PayoutScheduleID, "payment refunded"); err != nil {
		t.Fatalf("cancel payout: %v", err)
	}

	var cancelled models.PayoutSchedule
	if err := s.db.First(&cancelled, "payout_schedule_id = ?", payout.PayoutScheduleID).Error; err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if cancelled.Status != models.PayoutStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("payout status = %s, want cancelled", cancelled.Status)
	}
	var txn models.Transaction
	if err := s.db.First(&txn, "transaction_id = ?", *cancelled.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Status != models.TransactionStatusCancelled {
		t.Fatalf("transaction status = %s, want cancelled", txn.Status)
	}

	// A cancelled payout cannot be cancelled again.
	err := s.payouts.CancelPayout(payout.PayoutScheduleID, "twice")
	var invalid *InvalidStatusTransitionError
	var conflict *PaymentStateConflictError
	if !errors.As(err, &invalid) && !errors.As(err, &conflict) {
		t.Fatalf("second cancel error = %v, want a conflict", err)
	}
}
