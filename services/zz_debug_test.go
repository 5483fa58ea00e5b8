package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"pitchflow-api/models"
)

func TestZZDebugResubmit(t *testing.T) {
	s := newTestStack(t)
	owner := createTestUser(t, s.db, "owner", models.TierFree)
	producer := createTestUser(t, s.db, "producer", models.TierFree)
	rival := createTestUser(t, s.db, "rival", models.TierFree)
	project := createTestProject(t, s.db, owner.UserID, models.WorkflowTypeStandard, decimal.NewFromInt(500))

	pitch, err := s.workflow.CreatePitch(project.ProjectID, producer.UserID)
	if err != nil {
		t.Fatalf("create pitch: %v", err)
	}
	if _, err := s.workflow.CreatePitch(project.ProjectID, rival.UserID); err != nil {
		t.Fatalf("create rival pitch: %v", err)
	}
	if _, err := s.workflow.CreatePitch(project.ProjectID, owner.UserID); err == nil {
		t.Fatal("expected error for owner pitching own project")
	}
	if _, err := s.workflow.ApproveInitialPitch(pitch.PitchID, owner.UserID); err != nil {
		t.Fatalf("approve initial: %v", err)
	}
	if _, err := s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, ""); err == nil {
		t.Fatal("expected error submitting without files")
	}
	addTestFile(t, s.db, pitch.PitchID, producer.UserID)
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	firstSnapshotID := *pitch.CurrentSnapshotID
	t.Logf("first snapshot id = %d", firstSnapshotID)

	pitch, err = s.workflow.RequestPitchRevisions(pitch.PitchID, firstSnapshotID, owner.UserID, "tighten the low end")
	if err != nil {
		t.Fatalf("request revisions: %v", err)
	}
	if _, err := s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, ""); err == nil {
		t.Fatal("expected error resubmitting without a response to feedback")
	}
	pitch, err = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "rebalanced the mix")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	t.Logf("current snapshot id after resubmit = %d", *pitch.CurrentSnapshotID)

	var snaps []models.PitchSnapshot
	if err := s.db.Find(&snaps).Error; err != nil {
		t.Fatalf("find snapshots: %v", err)
	}
	for _, sn := range snaps {
		t.Logf("snapshot %d pitch=%d version=%d status=%s", sn.SnapshotID, sn.PitchID, sn.Version, sn.Status)
	}
}

func TestZZDebugVarReuse(t *testing.T) {
	s := newTestStack(t)
	owner := createTestUser(t, s.db, "owner", models.TierFree)
	producer := createTestUser(t, s.db, "producer", models.TierFree)
	project := createTestProject(t, s.db, owner.UserID, models.WorkflowTypeStandard, decimal.NewFromInt(500))
	pitch, _ := s.workflow.CreatePitch(project.ProjectID, producer.UserID)
	s.workflow.ApproveInitialPitch(pitch.PitchID, owner.UserID)
	addTestFile(t, s.db, pitch.PitchID, producer.UserID)
	pitch, _ = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "")
	first := *pitch.CurrentSnapshotID
	s.workflow.RequestPitchRevisions(pitch.PitchID, first, owner.UserID, "notes")
	pitch, _ = s.workflow.SubmitPitchForReview(pitch.PitchID, producer.UserID, "reply")

	var snap models.PitchSnapshot
	if err := s.db.First(&snap, "snapshot_id = ?", first).Error; err != nil {
		t.Fatalf("first load: %v", err)
	}
	err := s.db.Debug().First(&snap, "snapshot_id = ?", *pitch.CurrentSnapshotID).Error
	t.Logf("reused-var load of snapshot %d: err=%v", *pitch.CurrentSnapshotID, err)
}
