package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pitchflow-api/models"
)

func setupClientProject(t *testing.T, s *testStack) (*models.User, *models.Project, *models.Pitch) {
	t.Helper()
	producer := createTestUser(t, s.db, "producer", models.TierFree)
	email := "client@example.com"
	project, pitch, err := s.projects.CreateProject(producer.UserID, CreateProjectInput{
		Title:        "Client Mix",
		WorkflowType: models.WorkflowTypeClientManagement,
		Budget:       decimal.NewFromInt(400),
		ClientEmail:  &email,
	})
	if err != nil {
		t.Fatalf("create client project: %v", err)
	}
	if pitch == nil {
		t.Fatal("client project created without a pitch")
	}
	return producer, project, pitch
}

func TestSyncBudgetSingleMilestoneFollows(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)

	// One unpaid milestone follows the budget.
	if err := s.milestone.SyncBudget(pitch.PitchID, producer.UserID, decimal.NewFromInt(650)); err != nil {
		t.Fatalf("sync budget: %v", err)
	}
	milestones, err := s.milestone.ListMilestones(pitch.PitchID)
	if err != nil {
		t.Fatalf("list milestones: %v", err)
	}
	if len(milestones) != 1 {
		t.Fatalf("milestone count = %d, want 1", len(milestones))
	}
	if !milestones[0].Amount.Equal(decimal.NewFromInt(650)) {
		t.Fatalf("milestone amount = %s, want 650", milestones[0].Amount)
	}
	if got := reloadPitch(t, s.db, pitch.PitchID); !got.PaymentAmount.Equal(decimal.NewFromInt(650)) {
		t.Fatalf("pitch payment amount = %s, want 650", got.PaymentAmount)
	}

	// Zeroing the budget deletes the unpaid milestone.
	if err := s.milestone.SyncBudget(pitch.PitchID, producer.UserID, decimal.Zero); err != nil {
		t.Fatalf("zero budget: %v", err)
	}
	milestones, _ = s.milestone.ListMilestones(pitch.PitchID)
	if len(milestones) != 0 {
		t.Fatalf("milestone count after zeroing = %d, want 0", len(milestones))
	}

	// Raising it again recreates the default milestone.
	if err := s.milestone.SyncBudget(pitch.PitchID, producer.UserID, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("restore budget: %v", err)
	}
	milestones, _ = s.milestone.ListMilestones(pitch.PitchID)
	if len(milestones) != 1 || milestones[0].Name != "Project Payment" || milestones[0].SortOrder != 1 {
		t.Fatalf("default milestone not recreated: %+v", milestones)
	}
}

func TestSyncBudgetManualModeIsSticky(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)

	if _, err := s.milestone.AddMilestone(pitch.PitchID, producer.UserID, "Final Master", "", decimal.NewFromInt(150)); err != nil {
		t.Fatalf("add milestone: %v", err)
	}

	// Two milestones now exist; budget edits leave the schedule alone.
	if err := s.milestone.SyncBudget(pitch.PitchID, producer.UserID, decimal.NewFromInt(900)); err != nil {
		t.Fatalf("sync budget in manual mode: %v", err)
	}
	milestones, _ := s.milestone.ListMilestones(pitch.PitchID)
	if len(milestones) != 2 {
		t.Fatalf("milestone count = %d, want 2", len(milestones))
	}
	for _, m := range milestones {
		if m.Amount.Equal(decimal.NewFromInt(900)) {
			t.Fatalf("milestone %q followed the budget in manual mode", m.Name)
		}
	}
}

func TestZeroBudgetBlockedByPaidMilestone(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)

	milestones, _ := s.milestone.ListMilestones(pitch.PitchID)
	if len(milestones) != 1 {
		t.Fatalf("milestone count = %d, want 1", len(milestones))
	}
	if _, err := s.milestone.MarkMilestonePaid(milestones[0].MilestoneID, producer.UserID, "in_abc"); err != nil {
		t.Fatalf("mark milestone paid: %v", err)
	}

	err := s.milestone.SyncBudget(pitch.PitchID, producer.UserID, decimal.Zero)
	var conflict *PaymentStateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("zero budget error = %v, want PaymentStateConflictError", err)
	}

	// Paid milestones cannot be deleted either.
	err = s.milestone.DeleteMilestone(milestones[0].MilestoneID, producer.UserID)
	if !errors.As(err, &conflict) {
		t.Fatalf("delete paid milestone error = %v, want PaymentStateConflictError", err)
	}
}

func TestManualPaymentSkipsCommissionAndHold(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)

	milestones, _ := s.milestone.ListMilestones(pitch.PitchID)
	ref := models.ManualPaymentPrefix + "CHECK42"
	before := time.Now()
	if _, err := s.milestone.MarkMilestonePaid(milestones[0].MilestoneID, producer.UserID, ref); err != nil {
		t.Fatalf("mark manually paid: %v", err)
	}

	var payout models.PayoutSchedule
	if err := s.db.First(&payout, "milestone_id = ?", milestones[0].MilestoneID).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	if !payout.CommissionAmount.IsZero() || !payout.CommissionRate.IsZero() {
		t.Fatalf("manual payment carried commission: rate %s amount %s", payout.CommissionRate, payout.CommissionAmount)
	}
	if !payout.NetAmount.Equal(payout.GrossAmount) {
		t.Fatal("manual payout net should equal gross")
	}
	if payout.HoldReleaseDate.After(before.Add(time.Minute)) {
		t.Fatalf("manual payout held until %s, want immediate release", payout.HoldReleaseDate)
	}

	var milestone models.PitchMilestone
	if err := s.db.First(&milestone, "milestone_id = ?", milestones[0].MilestoneID).Error; err != nil {
		t.Fatalf("reload milestone: %v", err)
	}
	if !milestone.IsManualPayment() {
		t.Fatal("milestone not recognized as manual payment")
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(payout.Metadata, &meta); err != nil {
		t.Fatalf("decode payout metadata: %v", err)
	}
	if meta["milestone_name"] != milestone.Name {
		t.Fatalf("payout metadata milestone_name = %v, want %q", meta["milestone_name"], milestone.Name)
	}
	if meta["manual_payment"] != true {
		t.Fatalf("payout metadata manual_payment = %v, want true", meta["manual_payment"])
	}
}

func TestMarkMilestonePaidTwiceConflicts(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)

	milestones, _ := s.milestone.ListMilestones(pitch.PitchID)
	if _, err := s.milestone.MarkMilestonePaid(milestones[0].MilestoneID, producer.UserID, "in_first"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	_, err := s.milestone.MarkMilestonePaid(milestones[0].MilestoneID, producer.UserID, "in_second")
	var conflict *PaymentStateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second payment error = %v, want PaymentStateConflictError", err)
	}
	var payouts int64
	s.db.Model(&models.PayoutSchedule{}).Where("milestone_id = ?", milestones[0].MilestoneID).Count(&payouts)
	if payouts != 1 {
		t.Fatalf("payout count = %d, want 1", payouts)
	}
}

func TestBillableRevisionCreatesMilestone(t *testing.T) {
	s := newTestStack(t)
	owner := createTestUser(t, s.db, "owner", models.TierFree)
	producer := createTestUser(t, s.db, "producer", models.TierFree)
	project := createTestProject(t, s.db, owner.UserID, models.WorkflowTypeStandard, decimal.NewFromInt(200))

	pitch, err := s.workflow.CreatePitch(project.ProjectID, producer.UserID)
	if err != nil {
		t.Fatalf("create pitch: %v", err)
	}
	if err := s.db.Model(&models.Pitch{}).
		Where("pitch_id = ?", pitch.PitchID).
		Updates(map[string]interface{}{
			"included_revisions":        1,
			"additional_revision_price": decimal.NewFromInt(75),
		}).Error; err != nil {
		t.Fatalf("set revision policy: %v", err)
	}
	if _, err := s.workflow.ApproveInitialPitch(pitch.PitchID, owner.UserID); err != nil {
		t.Fatalf("approve initial: %v", err)
	}
	firstFile := addTestFile(t, s.db, pitch.PitchID, producer.UserID)

	// Round 1 is included; no milestone.
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.workflow.RequestPitchRevisions(pitch.PitchID, *pitch.CurrentSnapshotID, owner.UserID, "round one"); err != nil {
		t.Fatalf("request revisions: %v", err)
	}
	var count int64
	s.db.Model(&models.PitchMilestone{}).Where("pitch_id = ? AND is_revision_milestone = ?", pitch.PitchID, true).Count(&count)
	if count != 0 {
		t.Fatalf("revision milestone count after included round = %d, want 0", count)
	}

	// Round 2 exceeds the allotment and is billable.
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "addressed")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if _, err := s.workflow.RequestPitchRevisions(pitch.PitchID, *pitch.CurrentSnapshotID, owner.UserID, "round two"); err != nil {
		t.Fatalf("request second revisions: %v", err)
	}
	var revision models.PitchMilestone
	if err := s.db.Where("pitch_id = ? AND is_revision_milestone = ?", pitch.PitchID, true).
		First(&revision).Error; err != nil {
		t.Fatalf("load revision milestone: %v", err)
	}
	if revision.Name != "Revision Round 2" {
		t.Fatalf("revision milestone name = %q, want Revision Round 2", revision.Name)
	}
	if !revision.Amount.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("revision milestone amount = %s, want 75", revision.Amount)
	}
	if revision.RevisionRoundNumber == nil || *revision.RevisionRoundNumber != 2 {
		t.Fatalf("revision round = %v, want 2", revision.RevisionRoundNumber)
	}

	// A billable round supersedes the current deliverables; the next snapshot
	// only carries the files uploaded for it.
	var superseded models.PitchFile
	if err := s.db.First(&superseded, "file_id = ?", firstFile.FileID).Error; err != nil {
		t.Fatalf("reload file: %v", err)
	}
	if !superseded.SupersededByRevision || superseded.RevisionRound == nil || *superseded.RevisionRound != 2 {
		t.Fatalf("file superseded=%v round=%v, want true/2", superseded.SupersededByRevision, superseded.RevisionRound)
	}
	replacement := addTestFile(t, s.db, pitch.PitchID, producer.UserID)
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "fresh stems")
	if err != nil {
		t.Fatalf("resubmit after billable round: %v", err)
	}
	var snap models.PitchSnapshot
	if err := s.db.First(&snap, "snapshot_id = ?", *pitch.CurrentSnapshotID).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	data, err := snap.DecodeData()
	if err != nil {
		t.Fatalf("decode snapshot data: %v", err)
	}
	if len(data.FileIDs) != 1 || data.FileIDs[0] != replacement.FileID {
		t.Fatalf("snapshot files = %v, want only file %d", data.FileIDs, replacement.FileID)
	}

	// Dropping the price to zero removes the unpaid revision milestone.
	if err := s.milestone.UpdateRevisionPolicy(pitch.PitchID, owner.UserID, 1, decimal.Zero); err != nil {
		t.Fatalf("update revision policy: %v", err)
	}
	s.db.Model(&models.PitchMilestone{}).Where("pitch_id = ? AND is_revision_milestone = ?", pitch.PitchID, true).Count(&count)
	if count != 0 {
		t.Fatalf("revision milestone count after zero price = %d, want 0", count)
	}
}

func TestClientApprovalCompletesWhenSchedulePaid(t *testing.T) {
	s := newTestStack(t)
	producer, _, pitch := setupClientProject(t, s)
	addTestFile(t, s.db, pitch.PitchID, producer.UserID)

	if _, err := s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Approval with an unpaid schedule parks at approved.
	updated, err := s.workflow.ClientApprovePitch(pitch.PitchID)
	if err != nil {
		t.Fatalf("client approve: %v", err)
	}
	if updated.Status != models.PitchStatusApproved {
		t.Fatalf("status = %s, want approved", updated.Status)
	}

	// Settling the schedule completes the pitch.
	milestones, _ := s.milestone.ListMilestones(pitch.PitchID)
	if _, err := s.milestone.MarkMilestonePaid(milestones[0].MilestoneID, producer.UserID, "in_xyz"); err != nil {
		t.Fatalf("mark milestone paid: %v", err)
	}
	got := reloadPitch(t, s.db, pitch.PitchID)
	if got.Status != models.PitchStatusCompleted {
		t.Fatalf("status after final payment = %s, want completed", got.Status)
	}
	if got.PaymentStatus == nil || *got.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("payment status = %v, want paid", got.PaymentStatus)
	}
}
