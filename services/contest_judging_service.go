package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pitchflow-api/models"
)

// ContestJudgingService manages contest placements and the finalize step that
// turns them into pitch outcomes. Before finalization placements are a
// scratchpad on the contest result row; finalizing locks them and runs the
// status transitions.
type ContestJudgingService struct {
	db       *gorm.DB
	workflow *PitchWorkflowService
}

func NewContestJudgingService(db *gorm.DB, workflow *PitchWorkflowService) *ContestJudgingService {
	return &ContestJudgingService{db: db, workflow: workflow}
}

func (s *ContestJudgingService) loadContestProject(tx *gorm.DB, projectID, ownerID uint) (*models.Project, error) {
	var project models.Project
	if err := tx.First(&project, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: projectID}
		}
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	if !project.IsOwnedBy(ownerID) {
		return nil, &UnauthorizedActionError{UserID: ownerID, Action: "judge this contest"}
	}
	if !project.IsContest() {
		return nil, &ValidationError{Field: "project_id", Reason: "project is not a contest"}
	}
	return &project, nil
}

// GetOrCreateResult returns the contest result row for a project, creating an
// empty one on first access.
func (s *ContestJudgingService) GetOrCreateResult(projectID uint) (*models.ContestResult, error) {
	var result models.ContestResult
	err := s.db.Where("project_id = ?", projectID).First(&result).Error
	if err == nil {
		return &result, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load contest result: %w", err)
	}
	result = models.ContestResult{ProjectID: projectID}
	if err := s.db.Create(&result).Error; err != nil {
		return nil, fmt.Errorf("create contest result: %w", err)
	}
	return &result, nil
}

// SetPlacement records a tentative placement before finalization. A pitch can
// hold only one placement; assigning a new one clears the old.
func (s *ContestJudgingService) SetPlacement(projectID, ownerID, pitchID uint, place string) (*models.ContestResult, error) {
	switch place {
	case models.RankFirst, models.RankSecond, models.RankThird, models.RankRunnerUp:
	default:
		return nil, &ValidationError{Field: "place", Reason: fmt.Sprintf("unknown placement %q", place)}
	}
	var result *models.ContestResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.loadContestProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if project.IsJudgingFinalized() {
			return &ValidationError{Field: "project_id", Reason: "judging has been finalized"}
		}

		var pitch models.Pitch
		if err := tx.First(&pitch, "pitch_id = ? AND project_id = ?", pitchID, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ValidationError{Field: "pitch_id", Reason: "pitch does not belong to this contest"}
			}
			return fmt.Errorf("load pitch %d: %w", pitchID, err)
		}
		if pitch.Status != models.PitchStatusContestEntry {
			return &InvalidStatusTransitionError{PitchID: pitchID, FromStatus: pitch.Status, ToStatus: pitch.Status, Reason: "only contest entries can be placed"}
		}

		var row models.ContestResult
		err = tx.Where("project_id = ?", projectID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.ContestResult{ProjectID: projectID}
		} else if err != nil {
			return fmt.Errorf("load contest result: %w", err)
		}

		row.RemovePitchFromAllPlacements(pitchID)
		switch place {
		case models.RankFirst:
			row.FirstPlacePitchID = &pitchID
		case models.RankSecond:
			row.SecondPlacePitchID = &pitchID
		case models.RankThird:
			row.ThirdPlacePitchID = &pitchID
		case models.RankRunnerUp:
			row.SetRunnerUpIDs(append(row.RunnerUpIDs(), pitchID))
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save contest result: %w", err)
		}
		result = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClearPlacement removes a pitch from every placement it holds.
func (s *ContestJudgingService) ClearPlacement(projectID, ownerID, pitchID uint) (*models.ContestResult, error) {
	var result *models.ContestResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.loadContestProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if project.IsJudgingFinalized() {
			return &ValidationError{Field: "project_id", Reason: "judging has been finalized"}
		}
		var row models.ContestResult
		if err := tx.Where("project_id = ?", projectID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ValidationError{Field: "project_id", Reason: "contest has no placements yet"}
			}
			return fmt.Errorf("load contest result: %w", err)
		}
		if row.RemovePitchFromAllPlacements(pitchID) {
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("save contest result: %w", err)
			}
		}
		result = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OrphanedPitchIDs returns placement references that no longer resolve to a
// pitch row.
func (s *ContestJudgingService) OrphanedPitchIDs(projectID uint) ([]uint, error) {
	var result models.ContestResult
	err := s.db.Where("project_id = ?", projectID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load contest result: %w", err)
	}

	placed := result.PlacedPitchIDs()
	if len(placed) == 0 {
		return nil, nil
	}
	var existing []uint
	if err := s.db.Model(&models.Pitch{}).
		Where("pitch_id IN ?", placed).
		Pluck("pitch_id", &existing).Error; err != nil {
		return nil, fmt.Errorf("resolve placed pitches: %w", err)
	}
	alive := make(map[uint]bool, len(existing))
	for _, id := range existing {
		alive[id] = true
	}
	var orphans []uint
	for _, id := range placed {
		if !alive[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// HasOrphanedPitches reports whether any placement points at a missing pitch.
func (s *ContestJudgingService) HasOrphanedPitches(projectID uint) (bool, error) {
	orphans, err := s.OrphanedPitchIDs(projectID)
	if err != nil {
		return false, err
	}
	return len(orphans) > 0, nil
}

// CleanupOrphanedPitches strips placements whose pitch no longer exists and
// returns the repaired result.
func (s *ContestJudgingService) CleanupOrphanedPitches(projectID uint) (*models.ContestResult, error) {
	orphans, err := s.OrphanedPitchIDs(projectID)
	if err != nil {
		return nil, err
	}
	var result models.ContestResult
	if err := s.db.Where("project_id = ?", projectID).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "project_id", Reason: "contest has no placements"}
		}
		return nil, fmt.Errorf("load contest result: %w", err)
	}
	changed := false
	for _, id := range orphans {
		if result.RemovePitchFromAllPlacements(id) {
			changed = true
		}
	}
	if changed {
		if err := s.db.Save(&result).Error; err != nil {
			return nil, fmt.Errorf("save contest result: %w", err)
		}
	}
	return &result, nil
}

// FinalizeJudging locks the placements and runs the outcome transitions:
// non-winning placements first, then the winner, whose selection also closes
// the remaining entries as not selected. Orphaned placements block
// finalization until cleaned up.
func (s *ContestJudgingService) FinalizeJudging(projectID, ownerID uint) (*models.ContestResult, error) {
	var project *models.Project
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = s.loadContestProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if project.IsJudgingFinalized() {
			return &ValidationError{Field: "project_id", Reason: "judging has already been finalized"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	orphans, err := s.OrphanedPitchIDs(projectID)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		return nil, &OrphanedReferenceError{ProjectID: projectID, PitchIDs: orphans}
	}

	result, err := s.GetOrCreateResult(projectID)
	if err != nil {
		return nil, err
	}
	if !result.HasWinners() {
		return nil, &ValidationError{Field: "project_id", Reason: "at least one placement is required to finalize"}
	}

	if result.SecondPlacePitchID != nil {
		if _, err := s.workflow.PlaceContestEntry(*result.SecondPlacePitchID, ownerID, models.RankSecond); err != nil {
			return nil, err
		}
	}
	if result.ThirdPlacePitchID != nil {
		if _, err := s.workflow.PlaceContestEntry(*result.ThirdPlacePitchID, ownerID, models.RankThird); err != nil {
			return nil, err
		}
	}
	for _, id := range result.RunnerUpIDs() {
		if _, err := s.workflow.PlaceContestEntry(id, ownerID, models.RankRunnerUp); err != nil {
			return nil, err
		}
	}
	if result.FirstPlacePitchID != nil {
		if _, err := s.workflow.SelectContestWinner(*result.FirstPlacePitchID, ownerID); err != nil {
			return nil, err
		}
	} else {
		// No winner declared: the placed entries keep their ranks and the
		// rest close out as not selected.
		if err := s.closeRemainingEntries(projectID, ownerID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ContestResult{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"finalized_at": now,
				"finalized_by": ownerID,
			}).Error; err != nil {
			return fmt.Errorf("finalize contest result: %w", err)
		}
		return tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"judging_finalized_at": now,
				"status":               models.ProjectStatusCompleted,
				"completed_at":         now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrCreateResult(projectID)
}

func (s *ContestJudgingService) closeRemainingEntries(projectID, ownerID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entries []models.Pitch
		err := tx.Where("project_id = ? AND status = ?", projectID, models.PitchStatusContestEntry).
			Find(&entries).Error
		if err != nil {
			return fmt.Errorf("load remaining entries: %w", err)
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
	})
}

// ReopenJudging unwinds a finalized contest so placements can change. Blocked
// once the prize has actually been paid; an in-flight invoice is abandoned.
func (s *ContestJudgingService) ReopenJudging(projectID uint, admin *models.User) error {
	if !admin.IsAdmin() {
		return &UnauthorizedActionError{UserID: admin.UserID, Action: "reopen contest judging"}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "project_id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "project", ID: projectID}
			}
			return fmt.Errorf("load project %d: %w", projectID, err)
		}
		if !project.IsContest() || !project.IsJudgingFinalized() {
			return &ValidationError{Field: "project_id", Reason: "project is not a finalized contest"}
		}

		var winner models.Pitch
		err := tx.Where("project_id = ? AND status = ?", projectID, models.PitchStatusContestWinner).
			First(&winner).Error
		if err == nil && winner.PaymentStatus != nil && *winner.PaymentStatus == models.PaymentStatusPaid {
			return &PaymentStateConflictError{Reason: "cannot reopen judging after the prize has been paid"}
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load winner: %w", err)
		}

		judgedStatuses := []string{
			models.PitchStatusContestWinner,
			models.PitchStatusContestRunnerUp,
			models.PitchStatusContestNotSelected,
		}
		err = tx.Model(&models.Pitch{}).
			Where("project_id = ? AND status IN ?", projectID, judgedStatuses).
			Updates(map[string]interface{}{
				"status":           models.PitchStatusContestEntry,
				"rank":             nil,
				"payment_status":   nil,
				"payment_amount":   decimalZero,
				"final_invoice_id": nil,
				"approved_at":      nil,
				"closed_at":        nil,
			}).Error
		if err != nil {
			return fmt.Errorf("reset contest entries: %w", err)
		}

		if err := tx.Model(&models.ContestResult{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"finalized_at": nil,
				"finalized_by": nil,
			}).Error; err != nil {
			return fmt.Errorf("reset contest result: %w", err)
		}
		return tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			Updates(map[string]interface{}{
				"judging_finalized_at": nil,
				"status":               models.ProjectStatusOpen,
				"completed_at":         nil,
			}).Error
	})
}
