package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pitchflow-api/models"
)

func setupContest(t *testing.T, s *testStack, prize int64, entries int) (*models.User, *models.Project, []*models.Pitch) {
	t.Helper()
	owner := createTestUser(t, s.db, "host", models.TierFree)
	project := models.Project{
		UserID:       owner.UserID,
		Title:        "Remix Contest",
		WorkflowType: models.WorkflowTypeContest,
		Status:       models.ProjectStatusOpen,
		PrizeAmount:  decimal.NewFromInt(prize),
	}
	if err := s.db.Create(&project).Error; err != nil {
		t.Fatalf("create contest: %v", err)
	}

	var pitches []*models.Pitch
	for i := 0; i < entries; i++ {
		producer := createTestUser(t, s.db, "entrant"+string(rune('a'+i)), models.TierFree)
		pitch, err := s.workflow.CreatePitch(project.ProjectID, producer.UserID)
		if err != nil {
			t.Fatalf("create entry %d: %v", i, err)
		}
		if pitch.Status != models.PitchStatusContestEntry {
			t.Fatalf("entry status = %s, want contest_entry", pitch.Status)
		}
		pitches = append(pitches, pitch)
	}
	return owner, &project, pitches
}

func TestSelectContestWinnerClosesOtherEntries(t *testing.T) {
	s := newTestStack(t)
	owner, project, entries := setupContest(t, s, 1000, 3)

	winner, err := s.workflow.SelectContestWinner(entries[0].PitchID, owner.UserID)
	if err != nil {
		t.Fatalf("select winner: %v", err)
	}
	if winner.Status != models.PitchStatusContestWinner {
		t.Fatalf("winner status = %s, want contest_winner", winner.Status)
	}
	if winner.Rank == nil || *winner.Rank != models.RankFirst {
		t.Fatalf("winner rank = %v, want 1st", winner.Rank)
	}
	if !winner.PaymentAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("winner payment amount = %s, want prize 1000", winner.PaymentAmount)
	}
	got := reloadPitch(t, s.db, winner.PitchID)
	if got.PaymentStatus == nil || *got.PaymentStatus != models.PaymentStatusProcessing {
		t.Fatalf("winner payment status = %v, want processing", got.PaymentStatus)
	}
	// The prize invoice is raised at selection time.
	if got.FinalInvoiceID == nil || *got.FinalInvoiceID == "" {
		t.Fatal("winner has no prize invoice reference")
	}
	if got.ApprovedAt == nil {
		t.Fatal("winner approved_at not set")
	}

	for _, entry := range entries[1:] {
		e := reloadPitch(t, s.db, entry.PitchID)
		if e.Status != models.PitchStatusContestNotSelected || e.ClosedAt == nil {
			t.Fatalf("entry %d status = %s closed_at %v, want contest_not_selected", e.PitchID, e.Status, e.ClosedAt)
		}
	}

	result, err := s.judging.GetOrCreateResult(project.ProjectID)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.FirstPlacePitchID == nil || *result.FirstPlacePitchID != winner.PitchID {
		t.Fatal("winner not recorded on contest result")
	}

	// Prize settles through the whole-pitch payment path with the contest's
	// zero-day hold.
	if _, err := s.workflow.MarkPitchAsPaid(winner.PitchID, "in_prize"); err != nil {
		t.Fatalf("pay prize: %v", err)
	}
	var payout models.PayoutSchedule
	if err := s.db.First(&payout, "pitch_id = ?", winner.PitchID).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	if !payout.NetAmount.Equal(payout.GrossAmount.Sub(payout.CommissionAmount)) {
		t.Fatal("net amount does not equal gross minus commission")
	}
}

func TestZeroPrizeWinnerNeedsNoPayment(t *testing.T) {
	s := newTestStack(t)
	owner, _, entries := setupContest(t, s, 0, 2)

	winner, err := s.workflow.SelectContestWinner(entries[0].PitchID, owner.UserID)
	if err != nil {
		t.Fatalf("select winner: %v", err)
	}
	got := reloadPitch(t, s.db, winner.PitchID)
	if got.PaymentStatus == nil || *got.PaymentStatus != models.PaymentStatusNotRequired {
		t.Fatalf("payment status = %v, want not_required", got.PaymentStatus)
	}
}

func TestRunnerUpPlacementAndRemoval(t *testing.T) {
	s := newTestStack(t)
	owner, project, entries := setupContest(t, s, 500, 3)

	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[1].PitchID, models.RankRunnerUp); err != nil {
		t.Fatalf("set runner-up placement: %v", err)
	}
	result, _ := s.judging.GetOrCreateResult(project.ProjectID)
	if ids := result.RunnerUpIDs(); len(ids) != 1 || ids[0] != entries[1].PitchID {
		t.Fatalf("runner-up ids = %v, want [%d]", ids, entries[1].PitchID)
	}

	// Moving the same pitch to second place clears the runner-up slot, and
	// an emptied runner-up list is stored as null.
	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[1].PitchID, models.RankSecond); err != nil {
		t.Fatalf("move to second place: %v", err)
	}
	result, _ = s.judging.GetOrCreateResult(project.ProjectID)
	if result.SecondPlacePitchID == nil || *result.SecondPlacePitchID != entries[1].PitchID {
		t.Fatal("second place not recorded")
	}
	if result.RunnerUpPitchIDs != nil {
		t.Fatalf("emptied runner-up list = %s, want null", string(result.RunnerUpPitchIDs))
	}
}

func TestDeletePitchRepairsPlacements(t *testing.T) {
	s := newTestStack(t)
	owner, project, entries := setupContest(t, s, 500, 2)

	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[0].PitchID, models.RankRunnerUp); err != nil {
		t.Fatalf("set placement: %v", err)
	}

	producerID := entries[0].UserID
	if err := s.workflow.DeletePitch(entries[0].PitchID, producerID); err != nil {
		t.Fatalf("delete pitch: %v", err)
	}

	result, _ := s.judging.GetOrCreateResult(project.ProjectID)
	if result.RunnerUpPitchIDs != nil {
		t.Fatalf("placement survived pitch deletion: %s", string(result.RunnerUpPitchIDs))
	}
	orphans, err := s.judging.OrphanedPitchIDs(project.ProjectID)
	if err != nil {
		t.Fatalf("orphan check: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("orphans = %v, want none", orphans)
	}
}

func TestFinalizeJudgingBlockedByOrphans(t *testing.T) {
	s := newTestStack(t)
	owner, project, entries := setupContest(t, s, 500, 2)

	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[0].PitchID, models.RankFirst); err != nil {
		t.Fatalf("set placement: %v", err)
	}

	// Delete the pitch row out from under the placement to simulate a
	// reference the application-level cleanup never saw.
	if err := s.db.Delete(&models.Pitch{}, "pitch_id = ?", entries[0].PitchID).Error; err != nil {
		t.Fatalf("raw delete: %v", err)
	}

	_, err := s.judging.FinalizeJudging(project.ProjectID, owner.UserID)
	var orphaned *OrphanedReferenceError
	if !errors.As(err, &orphaned) {
		t.Fatalf("finalize error = %v, want OrphanedReferenceError", err)
	}

	if _, err := s.judging.CleanupOrphanedPitches(project.ProjectID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	result, _ := s.judging.GetOrCreateResult(project.ProjectID)
	if result.FirstPlacePitchID != nil {
		t.Fatal("orphaned first place survived cleanup")
	}
}

func TestFinalizeJudgingRunsAllTransitions(t *testing.T) {
	s := newTestStack(t)
	owner, project, entries := setupContest(t, s, 800, 4)

	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[0].PitchID, models.RankFirst); err != nil {
		t.Fatalf("set first: %v", err)
	}
	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[1].PitchID, models.RankSecond); err != nil {
		t.Fatalf("set second: %v", err)
	}
	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[2].PitchID, models.RankRunnerUp); err != nil {
		t.Fatalf("set runner-up: %v", err)
	}

	result, err := s.judging.FinalizeJudging(project.ProjectID, owner.UserID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.IsFinalized() {
		t.Fatal("result not marked finalized")
	}

	if got := reloadPitch(t, s.db, entries[0].PitchID); got.Status != models.PitchStatusContestWinner {
		t.Fatalf("first place status = %s, want contest_winner", got.Status)
	}
	if got := reloadPitch(t, s.db, entries[1].PitchID); got.Status != models.PitchStatusContestRunnerUp || got.Rank == nil || *got.Rank != models.RankSecond {
		t.Fatalf("second place status = %s rank %v", got.Status, got.Rank)
	}
	if got := reloadPitch(t, s.db, entries[2].PitchID); got.Status != models.PitchStatusContestRunnerUp || got.Rank == nil || *got.Rank != models.RankRunnerUp {
		t.Fatalf("runner-up status = %s rank %v", got.Status, got.Rank)
	}
	if got := reloadPitch(t, s.db, entries[3].PitchID); got.Status != models.PitchStatusContestNotSelected {
		t.Fatalf("unplaced entry status = %s, want contest_not_selected", got.Status)
	}

	var doneProject models.Project
	if err := s.db.First(&doneProject, "project_id = ?", project.ProjectID).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if !doneProject.IsJudgingFinalized() || doneProject.Status != models.ProjectStatusCompleted {
		t.Fatalf("project finalized=%v status=%s", doneProject.IsJudgingFinalized(), doneProject.Status)
	}

	// Placements are locked after finalization.
	if _, err := s.judging.SetPlacement(project.ProjectID, owner.UserID, entries[3].PitchID, models.RankThird); err == nil {
		t.Fatal("expected placement after finalization to fail")
	}

	// Reopening restores every entry.
	admin := createTestAdmin(t, s.db)
	if err := s.judging.ReopenJudging(project.ProjectID, admin); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for _, entry := range entries {
		if got := reloadPitch(t, s.db, entry.PitchID); got.Status != models.PitchStatusContestEntry {
			t.Fatalf("entry %d status after reopen = %s, want contest_entry", entry.PitchID, got.Status)
		}
	}
}
