package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pitchflow-api/models"
)

// PitchWorkflowService is the authority over pitch status transitions. Every
// mutation runs inside a transaction with a guarded update on the current
// status, so two racing requests cannot both win the same transition.
type PitchWorkflowService struct {
	db         *gorm.DB
	notifier   Notifier
	milestones *MilestoneService
	payouts    *PayoutService
	files      *PitchFileService
	invoicer   Invoicer
}

func NewPitchWorkflowService(db *gorm.DB, notifier Notifier, milestones *MilestoneService, payouts *PayoutService, files *PitchFileService, invoicer Invoicer) *PitchWorkflowService {
	return &PitchWorkflowService{
		db:         db,
		notifier:   notifier,
		milestones: milestones,
		payouts:    payouts,
		files:      files,
		invoicer:   invoicer,
	}
}

// activePitchStatuses are the statuses a pitch can be closed out of when a
// sibling completes or a contest resolves.
var activePitchStatuses = []string{
	models.PitchStatusPending,
	models.PitchStatusInProgress,
	models.PitchStatusReadyForReview,
	models.PitchStatusApproved,
	models.PitchStatusDenied,
	models.PitchStatusRevisionsRequested,
	models.PitchStatusClientRevisions,
}

// resubmittableStatuses are the statuses a producer may submit for review
// from. Denied pitches may be reworked and resubmitted.
var resubmittableStatuses = []string{
	models.PitchStatusInProgress,
	models.PitchStatusRevisionsRequested,
	models.PitchStatusClientRevisions,
	models.PitchStatusDenied,
}

func (s *PitchWorkflowService) loadPitch(tx *gorm.DB, pitchID uint) (*models.Pitch, error) {
	var pitch models.Pitch
	if err := tx.Preload("Project").First(&pitch, "pitch_id = ?", pitchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "pitch", ID: pitchID}
		}
		return nil, fmt.Errorf("load pitch %d: %w", pitchID, err)
	}
	return &pitch, nil
}

// guardedPitchTransition updates the pitch row only if it is still in
// fromStatus. Zero rows affected means another request moved the pitch first.
func guardedPitchTransition(tx *gorm.DB, pitch *models.Pitch, fromStatus, toStatus string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = toStatus

	query := tx.Model(&models.Pitch{}).
		Where("pitch_id = ? AND status = ?", pitch.PitchID, fromStatus)
	if pitch.CurrentSnapshotID != nil {
		query = query.Where("current_snapshot_id = ?", *pitch.CurrentSnapshotID)
	} else {
		query = query.Where("current_snapshot_id IS NULL")
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("transition pitch %d to %s: %w", pitch.PitchID, toStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return &InvalidStatusTransitionError{
			PitchID:    pitch.PitchID,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			Reason:     "pitch was modified by another request",
		}
	}
	pitch.Status = toStatus
	return nil
}

func recordPitchEvent(tx *gorm.DB, pitch *models.Pitch, eventType, comment string, snapshotID, createdBy *uint, meta map[string]interface{}) error {
	event := models.PitchEvent{
		PitchID:    pitch.PitchID,
		EventType:  eventType,
		Status:     pitch.Status,
		Comment:    comment,
		SnapshotID: snapshotID,
		Metadata:   models.EncodeEventMetadata(meta),
		CreatedBy:  createdBy,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("record pitch event: %w", err)
	}
	return nil
}

// snapshotIsCurrent rejects review actions carrying a snapshot id the pitch
// has since moved past. A stale review loses; the caller re-fetches.
func snapshotIsCurrent(pitch *models.Pitch, snapshotID uint) error {
	if pitch.CurrentSnapshotID == nil || *pitch.CurrentSnapshotID != snapshotID {
		return &InvalidStatusTransitionError{
			PitchID:    pitch.PitchID,
			FromStatus: pitch.Status,
			ToStatus:   pitch.Status,
			Reason:     "snapshot is no longer the current submission",
		}
	}
	return nil
}

func setSnapshotStatus(tx *gorm.DB, snapshotID uint, status string) error {
	err := tx.Model(&models.PitchSnapshot{}).
		Where("snapshot_id = ?", snapshotID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("update snapshot %d to %s: %w", snapshotID, status, err)
	}
	return nil
}

// CreatePitch opens a pitch against a project on behalf of a producer. The
// workflow policy decides the initial status; contest entries skip owner
// approval entirely.
func (s *PitchWorkflowService) CreatePitch(projectID, producerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "project_id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "project", ID: projectID}
			}
			return fmt.Errorf("load project %d: %w", projectID, err)
		}

		policy, err := policyFor(project.WorkflowType)
		if err != nil {
			return err
		}
		if project.IsOwnedBy(producerID) {
			return &ValidationError{Field: "user_id", Reason: "project owners cannot pitch on their own project"}
		}
		if !project.IsOpenForPitches() {
			return &ValidationError{Field: "project_id", Reason: "project is not open for pitches"}
		}
		if policy.UsesContestJudging() && project.IsSubmissionPeriodClosed() {
			return &ValidationError{Field: "project_id", Reason: "contest submissions have closed"}
		}
		if project.TargetProducerID != nil && *project.TargetProducerID != producerID {
			return &UnauthorizedActionError{UserID: producerID, Action: "pitch on an invite-only project"}
		}

		var existing int64
		if err := tx.Model(&models.Pitch{}).
			Where("project_id = ? AND user_id = ?", projectID, producerID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing pitch: %w", err)
		}
		if existing > 0 {
			return &ValidationError{Field: "project_id", Reason: "producer already has a pitch on this project"}
		}

		pitch = &models.Pitch{
			ProjectID:         projectID,
			UserID:            producerID,
			Status:            policy.InitialPitchStatus(),
			IncludedRevisions: 2,
		}
		if err := tx.Create(pitch).Error; err != nil {
			return fmt.Errorf("create pitch: %w", err)
		}
		pitch.Project = &project

		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Pitch created", nil, &producerID, nil)
	})
	if err != nil {
		return nil, err
	}
	return pitch, nil
}

// ApproveInitialPitch lets the project owner accept a pending pitch so work
// can start.
func (s *PitchWorkflowService) ApproveInitialPitch(pitchID, ownerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "approve pitches on this project"}
		}
		if pitch.Status != models.PitchStatusPending {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusInProgress}
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusPending, models.PitchStatusInProgress, nil); err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Pitch approved to start", nil, &ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusPending, "")
	return pitch, nil
}

// DenyInitialPitch rejects a pending pitch before any work starts.
func (s *PitchWorkflowService) DenyInitialPitch(pitchID, ownerID uint, reason string) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "deny pitches on this project"}
		}
		if pitch.Status != models.PitchStatusPending {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusDenied}
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusPending, models.PitchStatusDenied, nil); err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, reason, nil, &ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusPending, reason)
	return pitch, nil
}

// SubmitPitchForReview captures the pitch's current deliverables as a new
// snapshot version and moves the pitch to ready_for_review. Resubmitting after
// a revision request marks the previous snapshot revision_addressed.
func (s *PitchWorkflowService) SubmitPitchForReview(pitchID, producerID uint, responseToFeedback string) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.IsOwnedBy(producerID) {
			return &UnauthorizedActionError{UserID: producerID, Action: "submit this pitch"}
		}
		policy, err := policyFor(pitch.Project.WorkflowType)
		if err != nil {
			return err
		}
		if !policy.UsesReviewCycle() {
			return &ValidationError{Field: "workflow_type", Reason: "this workflow does not use review submissions"}
		}

		fromStatus := pitch.Status
		allowed := false
		for _, status := range resubmittableStatuses {
			if fromStatus == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: fromStatus, ToStatus: models.PitchStatusReadyForReview}
		}
		wasRevisionCycle := fromStatus == models.PitchStatusRevisionsRequested ||
			fromStatus == models.PitchStatusClientRevisions
		if wasRevisionCycle && responseToFeedback == "" {
			return &ValidationError{Field: "response_to_feedback", Reason: "a response to the requested revisions is required"}
		}

		fileIDs, err := s.files.CurrentFileIDs(pitchID)
		if err != nil {
			return err
		}
		if len(fileIDs) == 0 {
			return &ValidationError{Field: "files", Reason: "at least one deliverable is required before submitting"}
		}

		var maxVersion int
		row := tx.Model(&models.PitchSnapshot{}).
			Where("pitch_id = ?", pitchID).
			Select("COALESCE(MAX(version), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return fmt.Errorf("determine snapshot version: %w", err)
		}

		data := models.SnapshotData{
			Version:            maxVersion + 1,
			FileIDs:            fileIDs,
			ResponseToFeedback: responseToFeedback,
			PreviousSnapshotID: pitch.CurrentSnapshotID,
		}
		blob, err := models.EncodeSnapshotData(data)
		if err != nil {
			return fmt.Errorf("encode snapshot data: %w", err)
		}
		snapshot := models.PitchSnapshot{
			PitchID:   pitchID,
			ProjectID: pitch.ProjectID,
			UserID:    producerID,
			Version:   maxVersion + 1,
			Status:    models.SnapshotStatusPending,
			Data:      blob,
		}
		if err := tx.Create(&snapshot).Error; err != nil {
			return fmt.Errorf("create snapshot: %w", err)
		}

		if wasRevisionCycle && pitch.CurrentSnapshotID != nil {
			if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusRevisionAddressed); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"current_snapshot_id": snapshot.SnapshotID}
		if err := guardedPitchTransition(tx, pitch, fromStatus, models.PitchStatusReadyForReview, updates); err != nil {
			return err
		}
		pitch.CurrentSnapshotID = &snapshot.SnapshotID

		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Submitted for review", &snapshot.SnapshotID, &producerID, map[string]interface{}{
			"snapshot_version": snapshot.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	policy, _ := policyFor(pitch.Project.WorkflowType)
	if policy != nil && policy.ClientReviews() {
		s.notifier.ClientActionRequired(pitch.Project, pitch, "a new submission is ready for your review")
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusInProgress, "")
	return pitch, nil
}

// CancelPitchSubmission lets the producer withdraw a pending submission. The
// snapshot is always marked cancelled, never deleted, so the audit trail and
// version sequence stay intact.
func (s *PitchWorkflowService) CancelPitchSubmission(pitchID, producerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.IsOwnedBy(producerID) {
			return &UnauthorizedActionError{UserID: producerID, Action: "cancel this submission"}
		}
		if pitch.Status != models.PitchStatusReadyForReview {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusInProgress}
		}
		snapshotID := pitch.CurrentSnapshotID

		updates := map[string]interface{}{"current_snapshot_id": nil}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusReadyForReview, models.PitchStatusInProgress, updates); err != nil {
			return err
		}
		pitch.CurrentSnapshotID = nil

		if snapshotID != nil {
			if err := setSnapshotStatus(tx, *snapshotID, models.SnapshotStatusCancelled); err != nil {
				return err
			}
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Submission cancelled", snapshotID, &producerID, nil)
	})
	if err != nil {
		return nil, err
	}
	return pitch, nil
}

// ApproveSubmittedPitch is the owner accepting the snapshot they reviewed.
// The supplied snapshot id must still be current; a stale approval loses.
func (s *PitchWorkflowService) ApproveSubmittedPitch(pitchID, snapshotID, ownerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "review submissions on this project"}
		}
		if err := snapshotIsCurrent(pitch, snapshotID); err != nil {
			return err
		}
		return s.approveSubmission(tx, pitch, &ownerID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusReadyForReview, "")
	return pitch, nil
}

func (s *PitchWorkflowService) approveSubmission(tx *gorm.DB, pitch *models.Pitch, reviewerID *uint) error {
	if pitch.Status != models.PitchStatusReadyForReview {
		return &InvalidStatusTransitionError{PitchID: pitch.PitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusApproved}
	}
	if pitch.CurrentSnapshotID == nil {
		return &InvalidStatusTransitionError{PitchID: pitch.PitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusApproved, Reason: "no submission to approve"}
	}
	now := time.Now()
	updates := map[string]interface{}{"approved_at": now}
	if err := guardedPitchTransition(tx, pitch, models.PitchStatusReadyForReview, models.PitchStatusApproved, updates); err != nil {
		return err
	}
	pitch.ApprovedAt = &now
	if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusAccepted); err != nil {
		return err
	}
	return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Submission approved", pitch.CurrentSnapshotID, reviewerID, nil)
}

// DenySubmittedPitch rejects the reviewed snapshot with a reason.
func (s *PitchWorkflowService) DenySubmittedPitch(pitchID, snapshotID, ownerID uint, reason string) (*models.Pitch, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "a denial reason is required"}
	}
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "review submissions on this project"}
		}
		if err := snapshotIsCurrent(pitch, snapshotID); err != nil {
			return err
		}
		if pitch.Status != models.PitchStatusReadyForReview || pitch.CurrentSnapshotID == nil {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusDenied}
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusReadyForReview, models.PitchStatusDenied, nil); err != nil {
			return err
		}
		if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusDenied); err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, reason, pitch.CurrentSnapshotID, &ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusReadyForReview, reason)
	return pitch, nil
}

// RequestPitchRevisions sends the submission back with feedback. When the
// pitch has used up its included revisions and carries a revision price, an
// unpaid revision milestone is created for the new round.
func (s *PitchWorkflowService) RequestPitchRevisions(pitchID, snapshotID, ownerID uint, feedback string) (*models.Pitch, error) {
	return s.requestRevisions(pitchID, &snapshotID, &ownerID, feedback, false)
}

// ClientRequestRevisions is the portal variant: the external client sends the
// submission back. The portal always acts on the current snapshot, and no
// platform user id is attached to the event.
func (s *PitchWorkflowService) ClientRequestRevisions(pitchID uint, feedback string) (*models.Pitch, error) {
	return s.requestRevisions(pitchID, nil, nil, feedback, true)
}

func (s *PitchWorkflowService) requestRevisions(pitchID uint, snapshotID, reviewerID *uint, feedback string, byClient bool) (*models.Pitch, error) {
	if feedback == "" {
		return nil, &ValidationError{Field: "feedback", Reason: "revision feedback is required"}
	}
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		policy, err := policyFor(pitch.Project.WorkflowType)
		if err != nil {
			return err
		}
		if byClient {
			if !policy.ClientReviews() {
				return &UnauthorizedActionError{UserID: 0, Action: "review this pitch through the client portal"}
			}
		} else {
			if !pitch.Project.IsOwnedBy(*reviewerID) {
				return &UnauthorizedActionError{UserID: *reviewerID, Action: "review submissions on this project"}
			}
		}
		if snapshotID != nil {
			if err := snapshotIsCurrent(pitch, *snapshotID); err != nil {
				return err
			}
		}
		if pitch.Status != models.PitchStatusReadyForReview || pitch.CurrentSnapshotID == nil {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusRevisionsRequested}
		}

		toStatus := models.PitchStatusRevisionsRequested
		eventType := models.EventTypeRevisionRequest
		if byClient {
			toStatus = models.PitchStatusClientRevisions
			eventType = models.EventTypeClientRevisions
		}

		round := pitch.RevisionsUsed + 1
		updates := map[string]interface{}{"revisions_used": round}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusReadyForReview, toStatus, updates); err != nil {
			return err
		}
		pitch.RevisionsUsed = round

		if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusRevisionsRequested); err != nil {
			return err
		}

		// Rounds beyond the included allotment are billable when the pitch
		// carries a revision price. A billable round replaces the deliverable
		// set: the current files are superseded and the next snapshot only
		// captures what the producer uploads for this round.
		if round > pitch.IncludedRevisions && pitch.AdditionalRevisionPrice.GreaterThan(decimalZero) {
			fileIDs, err := s.files.CurrentFileIDs(pitch.PitchID)
			if err != nil {
				return err
			}
			if err := s.files.MarkSuperseded(tx, fileIDs, round); err != nil {
				return fmt.Errorf("supersede files for revision round %d: %w", round, err)
			}
			if _, err := s.milestones.CreateRevisionMilestone(tx, pitch, round, feedback); err != nil {
				return err
			}
		}

		return recordPitchEvent(tx, pitch, eventType, feedback, pitch.CurrentSnapshotID, reviewerID, map[string]interface{}{
			"revision_round": round,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusReadyForReview, feedback)
	return pitch, nil
}

// ClientApprovePitch is the portal approval. When every milestone has already
// settled the pitch completes outright; otherwise it parks in approved until
// payment catches up.
func (s *PitchWorkflowService) ClientApprovePitch(pitchID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	var completed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		policy, err := policyFor(pitch.Project.WorkflowType)
		if err != nil {
			return err
		}
		if !policy.ClientReviews() {
			return &UnauthorizedActionError{UserID: 0, Action: "approve this pitch through the client portal"}
		}
		if pitch.Status != models.PitchStatusReadyForReview || pitch.CurrentSnapshotID == nil {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusApproved}
		}

		allPaid, hasMilestones, err := s.milestones.AllMilestonesPaid(tx, pitchID)
		if err != nil {
			return err
		}

		if err := s.approveSubmission(tx, pitch, nil); err != nil {
			return err
		}
		if err := recordPitchEvent(tx, pitch, models.EventTypeClientApproved, "Client approved the submission", pitch.CurrentSnapshotID, nil, nil); err != nil {
			return err
		}

		if hasMilestones && allPaid {
			completed = true
			return completeApprovedPitchTx(tx, pitch, nil, "Client approved with all milestones paid")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusReadyForReview, "")
	if completed {
		s.notifier.PaymentStatusChanged(pitch, models.PaymentStatusPaid)
	}
	return pitch, nil
}

// CompletePitch moves an approved pitch to completed, closes out the other
// pitches on the project, and finishes the project itself. An optional 1-5
// rating of the producer's work is recorded on the event log.
func (s *PitchWorkflowService) CompletePitch(pitchID, ownerID uint, feedback string, rating *int) (*models.Pitch, error) {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, &ValidationError{Field: "rating", Reason: "rating must be between 1 and 5"}
	}
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "complete pitches on this project"}
		}
		if pitch.Status != models.PitchStatusApproved {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusCompleted}
		}
		if err := completeApprovedPitchTx(tx, pitch, &ownerID, feedback); err != nil {
			return err
		}
		if rating != nil {
			return recordPitchEvent(tx, pitch, models.EventTypeRating, feedback, pitch.CurrentSnapshotID, &ownerID, map[string]interface{}{
				"rating": *rating,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusApproved, feedback)
	return pitch, nil
}

func completeApprovedPitchTx(tx *gorm.DB, pitch *models.Pitch, ownerID *uint, feedback string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"completed_at": now,
	}
	if feedback != "" {
		updates["completion_feedback"] = feedback
	}

	// Paid work keeps its existing payment state; unpaid work becomes either
	// pending (there is money to collect) or not_required.
	if pitch.PaymentStatus == nil || !pitch.PaymentFinalized() {
		paymentStatus := models.PaymentStatusNotRequired
		if pitch.Project.Budget.GreaterThan(decimalZero) || pitch.PaymentAmount.GreaterThan(decimalZero) {
			paymentStatus = models.PaymentStatusPending
		}
		updates["payment_status"] = paymentStatus
		if pitch.PaymentAmount.IsZero() && pitch.Project.Budget.GreaterThan(decimalZero) {
			updates["payment_amount"] = pitch.Project.Budget
			pitch.PaymentAmount = pitch.Project.Budget
		}
	}

	if err := guardedPitchTransition(tx, pitch, models.PitchStatusApproved, models.PitchStatusCompleted, updates); err != nil {
		return err
	}
	pitch.CompletedAt = &now

	if pitch.CurrentSnapshotID != nil {
		if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusCompleted); err != nil {
			return err
		}
	}

	if err := closeOtherPitches(tx, pitch.ProjectID, pitch.PitchID, now); err != nil {
		return err
	}

	err := tx.Model(&models.Project{}).
		Where("project_id = ?", pitch.ProjectID).
		Updates(map[string]interface{}{
			"status":       models.ProjectStatusCompleted,
			"completed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("complete project %d: %w", pitch.ProjectID, err)
	}

	eventType := models.EventTypeStatusChange
	if ownerID == nil {
		eventType = models.EventTypeClientCompleted
	}
	return recordPitchEvent(tx, pitch, eventType, feedback, pitch.CurrentSnapshotID, ownerID, nil)
}

func closeOtherPitches(tx *gorm.DB, projectID, keepPitchID uint, now time.Time) error {
	err := tx.Model(&models.Pitch{}).
		Where("project_id = ? AND pitch_id != ? AND status IN ?", projectID, keepPitchID, activePitchStatuses).
		Updates(map[string]interface{}{
			"status":    models.PitchStatusClosed,
			"closed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("close sibling pitches: %w", err)
	}
	return nil
}

// ReturnPitchToReview reverts an approval so the submission can be re-judged.
func (s *PitchWorkflowService) ReturnPitchToReview(pitchID, ownerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "revert approvals on this project"}
		}
		if pitch.Status != models.PitchStatusApproved {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusReadyForReview}
		}
		if pitch.PaymentFinalized() {
			return &PaymentStateConflictError{Reason: "cannot revert an approval after payment has started"}
		}
		updates := map[string]interface{}{"approved_at": nil}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusApproved, models.PitchStatusReadyForReview, updates); err != nil {
			return err
		}
		pitch.ApprovedAt = nil
		if pitch.CurrentSnapshotID != nil {
			if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusPending); err != nil {
				return err
			}
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Approval reverted", pitch.CurrentSnapshotID, &ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusApproved, "")
	return pitch, nil
}

// ReturnPitchToApproved reverts a completion, reopening the project. Blocked
// once payment has started.
func (s *PitchWorkflowService) ReturnPitchToApproved(pitchID, ownerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "revert completions on this project"}
		}
		if pitch.Status != models.PitchStatusCompleted {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusApproved}
		}
		if pitch.PaymentFinalized() {
			return &PaymentStateConflictError{Reason: "cannot revert a completion after payment has started"}
		}
		updates := map[string]interface{}{
			"completed_at":        nil,
			"completion_feedback": nil,
			"payment_status":      nil,
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusCompleted, models.PitchStatusApproved, updates); err != nil {
			return err
		}
		pitch.CompletedAt = nil
		pitch.PaymentStatus = nil

		if pitch.CurrentSnapshotID != nil {
			if err := setSnapshotStatus(tx, *pitch.CurrentSnapshotID, models.SnapshotStatusAccepted); err != nil {
				return err
			}
		}

		err = tx.Model(&models.Project{}).
			Where("project_id = ?", pitch.ProjectID).
			Updates(map[string]interface{}{
				"status":       models.ProjectStatusOpen,
				"completed_at": nil,
			}).Error
		if err != nil {
			return fmt.Errorf("reopen project %d: %w", pitch.ProjectID, err)
		}
		return recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Completion reverted", pitch.CurrentSnapshotID, &ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PitchStatusChanged(pitch, models.PitchStatusCompleted, "")
	return pitch, nil
}

// MarkPitchAsPaid records a completed gateway or manual payment for the whole
// pitch and schedules the producer's payout.
func (s *PitchWorkflowService) MarkPitchAsPaid(pitchID uint, paymentReference string) (*models.Pitch, error) {
	var pitch *models.Pitch
	var payout *models.PayoutSchedule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if pitch.Status != models.PitchStatusCompleted && pitch.Status != models.PitchStatusContestWinner {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: pitch.Status, Reason: "pitch is not awaiting payment"}
		}
		now := time.Now()
		updates := map[string]interface{}{
			"payment_status":       models.PaymentStatusPaid,
			"payment_completed_at": now,
			"final_invoice_id":     paymentReference,
		}
		// The not-yet-paid check and the write are one compare-and-swap, so a
		// repeated or concurrent call cannot schedule a second payout.
		result := tx.Model(&models.Pitch{}).
			Where("pitch_id = ? AND (payment_status IS NULL OR payment_status != ?)", pitchID, models.PaymentStatusPaid).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("mark pitch %d paid: %w", pitchID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil // already paid, idempotent
		}
		paid := models.PaymentStatusPaid
		pitch.PaymentStatus = &paid
		pitch.PaymentCompletedAt = &now
		pitch.FinalInvoiceID = &paymentReference

		payout, err = s.payouts.SchedulePayoutForPitch(tx, pitch, paymentReference)
		if err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, models.EventTypePaymentStatusChange, "Payment completed", nil, nil, map[string]interface{}{
			"payment_reference": paymentReference,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PaymentStatusChanged(pitch, models.PaymentStatusPaid)
	if payout != nil {
		s.notifier.PayoutScheduled(payout)
	}
	return pitch, nil
}

// MarkPitchPaymentFailed records a failed payment attempt. The pitch status
// itself does not move; only the payment lane changes.
func (s *PitchWorkflowService) MarkPitchPaymentFailed(pitchID uint, reason string) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if pitch.PaymentStatus != nil && *pitch.PaymentStatus == models.PaymentStatusPaid {
			return &PaymentStateConflictError{Reason: "payment already completed"}
		}
		err = tx.Model(&models.Pitch{}).
			Where("pitch_id = ?", pitchID).
			Update("payment_status", models.PaymentStatusFailed).Error
		if err != nil {
			return fmt.Errorf("mark pitch %d payment failed: %w", pitchID, err)
		}
		failed := models.PaymentStatusFailed
		pitch.PaymentStatus = &failed
		return recordPitchEvent(tx, pitch, models.EventTypePaymentStatusChange, reason, nil, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PaymentStatusChanged(pitch, models.PaymentStatusFailed)
	return pitch, nil
}

// SelectContestWinner crowns a contest entry. The winner takes the prize, the
// remaining entries are closed out as not selected, and a zero-prize contest
// records the win without any payment lane.
func (s *PitchWorkflowService) SelectContestWinner(pitchID, ownerID uint) (*models.Pitch, error) {
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "judge this contest"}
		}
		policy, err := policyFor(pitch.Project.WorkflowType)
		if err != nil {
			return err
		}
		if !policy.UsesContestJudging() {
			return &ValidationError{Field: "workflow_type", Reason: "project is not a contest"}
		}
		if pitch.Status != models.PitchStatusContestEntry {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusContestWinner}
		}

		prize := pitch.Project.PrizeAmount
		hasPrize := prize.GreaterThan(decimalZero)
		now := time.Now()
		updates := map[string]interface{}{
			"rank":           models.RankFirst,
			"payment_amount": prize,
			"approved_at":    now,
		}
		eventType := models.EventTypeContestWinnerNoPrize
		var invoiceRef string
		if hasPrize {
			// The prize invoice is raised at selection time; payment is in
			// flight until the owner settles it.
			var err error
			invoiceRef, err = s.invoicer.CreateInvoice(pitch, prize, fmt.Sprintf("Contest prize for %s", pitch.Project.Title))
			if err != nil {
				return fmt.Errorf("create prize invoice for pitch %d: %w", pitchID, err)
			}
			updates["payment_status"] = models.PaymentStatusProcessing
			updates["final_invoice_id"] = invoiceRef
			eventType = models.EventTypeContestWinner
		} else {
			updates["payment_status"] = models.PaymentStatusNotRequired
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusContestEntry, models.PitchStatusContestWinner, updates); err != nil {
			return err
		}
		rank := models.RankFirst
		pitch.Rank = &rank
		pitch.PaymentAmount = prize
		pitch.ApprovedAt = &now
		if hasPrize {
			pitch.FinalInvoiceID = &invoiceRef
		}

		if err := s.setContestPlacement(tx, pitch.ProjectID, models.RankFirst, pitchID); err != nil {
			return err
		}
		if err := s.closeOtherContestEntries(tx, pitch.ProjectID, pitchID, ownerID); err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, eventType, "", nil, &ownerID, map[string]interface{}{
			"prize_amount": prize.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ContestResultAnnounced(pitch, models.RankFirst)
	return pitch, nil
}

// SelectContestRunnerUp marks an entry as runner-up. Runner-ups earn the
// placement, never the prize.
func (s *PitchWorkflowService) SelectContestRunnerUp(pitchID, ownerID uint) (*models.Pitch, error) {
	return s.PlaceContestEntry(pitchID, ownerID, models.RankRunnerUp)
}

// PlaceContestEntry assigns a non-winning placement (2nd, 3rd, or runner-up).
// The entry moves to contest_runner_up status with the rank recorded; none of
// these placements carry the prize.
func (s *PitchWorkflowService) PlaceContestEntry(pitchID, ownerID uint, rank string) (*models.Pitch, error) {
	switch rank {
	case models.RankSecond, models.RankThird, models.RankRunnerUp:
	default:
		return nil, &ValidationError{Field: "rank", Reason: fmt.Sprintf("rank %q is not a non-winning placement", rank)}
	}
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.Project.IsOwnedBy(ownerID) {
			return &UnauthorizedActionError{UserID: ownerID, Action: "judge this contest"}
		}
		policy, err := policyFor(pitch.Project.WorkflowType)
		if err != nil {
			return err
		}
		if !policy.UsesContestJudging() {
			return &ValidationError{Field: "workflow_type", Reason: "project is not a contest"}
		}
		if pitch.Status != models.PitchStatusContestEntry {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: models.PitchStatusContestRunnerUp}
		}
		updates := map[string]interface{}{
			"rank":           rank,
			"payment_status": models.PaymentStatusNotRequired,
		}
		if err := guardedPitchTransition(tx, pitch, models.PitchStatusContestEntry, models.PitchStatusContestRunnerUp, updates); err != nil {
			return err
		}
		pitch.Rank = &rank

		if err := s.setContestPlacement(tx, pitch.ProjectID, rank, pitchID); err != nil {
			return err
		}
		return recordPitchEvent(tx, pitch, models.EventTypeContestRunnerUp, "", nil, &ownerID, map[string]interface{}{
			"rank": rank,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ContestResultAnnounced(pitch, models.RankRunnerUp)
	return pitch, nil
}

func (s *PitchWorkflowService) setContestPlacement(tx *gorm.DB, projectID uint, place string, pitchID uint) error {
	var result models.ContestResult
	err := tx.Where("project_id = ?", projectID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result = models.ContestResult{ProjectID: projectID}
	} else if err != nil {
		return fmt.Errorf("load contest result for project %d: %w", projectID, err)
	}

	result.RemovePitchFromAllPlacements(pitchID)
	switch place {
	case models.RankFirst:
		result.FirstPlacePitchID = &pitchID
	case models.RankSecond:
		result.SecondPlacePitchID = &pitchID
	case models.RankThird:
		result.ThirdPlacePitchID = &pitchID
	case models.RankRunnerUp:
		result.SetRunnerUpIDs(append(result.RunnerUpIDs(), pitchID))
	default:
		return &ValidationError{Field: "placement", Reason: fmt.Sprintf("unknown placement %q", place)}
	}
	if err := tx.Save(&result).Error; err != nil {
		return fmt.Errorf("save contest result: %w", err)
	}
	return nil
}

func (s *PitchWorkflowService) closeOtherContestEntries(tx *gorm.DB, projectID, winnerPitchID, ownerID uint) error {
	var entries []models.Pitch
	err := tx.Where("project_id = ? AND pitch_id != ? AND status = ?",
		projectID, winnerPitchID, models.PitchStatusContestEntry).
		Find(&entries).Error
	if err != nil {
		return fmt.Errorf("load remaining contest entries: %w", err)
	}
	now := time.Now()
	for i := range entries {
		entry := &entries[i]
		err := tx.Model(&models.Pitch{}).
			Where("pitch_id = ? AND status = ?", entry.PitchID, models.PitchStatusContestEntry).
			Updates(map[string]interface{}{
				"status":    models.PitchStatusContestNotSelected,
				"closed_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("close contest entry %d: %w", entry.PitchID, err)
		}
		entry.Status = models.PitchStatusContestNotSelected
		if err := recordPitchEvent(tx, entry, models.EventTypeContestEntryNotSelected, "", nil, &ownerID, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeletePitch removes a pitch entirely. Contest placements referencing it are
// repaired in the same transaction so no orphaned reference survives.
func (s *PitchWorkflowService) DeletePitch(pitchID, userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		pitch, err := s.loadPitch(tx, pitchID)
		if err != nil {
			return err
		}
		if !pitch.IsOwnedBy(userID) && !pitch.Project.IsOwnedBy(userID) {
			return &UnauthorizedActionError{UserID: userID, Action: "delete this pitch"}
		}
		if pitch.PaymentFinalized() {
			return &PaymentStateConflictError{Reason: "cannot delete a pitch after payment has started"}
		}

		var result models.ContestResult
		err = tx.Where("project_id = ?", pitch.ProjectID).First(&result).Error
		if err == nil {
			if result.RemovePitchFromAllPlacements(pitchID) {
				if err := tx.Save(&result).Error; err != nil {
					return fmt.Errorf("repair contest result: %w", err)
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load contest result: %w", err)
		}

		for _, del := range []interface{}{
			&models.PitchEvent{}, &models.PitchSnapshot{}, &models.PitchMilestone{}, &models.PitchFile{},
		} {
			if err := tx.Where("pitch_id = ?", pitchID).Delete(del).Error; err != nil {
				return fmt.Errorf("delete pitch children: %w", err)
			}
		}
		if err := tx.Delete(&models.Pitch{}, "pitch_id = ?", pitchID).Error; err != nil {
			return fmt.Errorf("delete pitch %d: %w", pitchID, err)
		}
		return nil
	})
}
