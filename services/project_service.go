package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pitchflow-api/models"
)

// ProjectService owns project lifecycle and the explicit orchestration that
// some workflows need at creation time: direct-hire and client projects get
// their working pitch created up front rather than waiting for applicants.
type ProjectService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewProjectService(db *gorm.DB, notifier Notifier) *ProjectService {
	return &ProjectService{db: db, notifier: notifier}
}

// CreateProjectInput carries the owner-supplied fields for a new project.
type CreateProjectInput struct {
	Title            string
	Description      string
	WorkflowType     string
	Budget           decimal.Decimal
	PrizeAmount      decimal.Decimal
	ClientEmail      *string
	ClientName       *string
	TargetProducerID *uint
	AutoAllowAccess  bool
}

// CreateProject validates and stores a project, then runs the workflow's
// creation orchestration. The returned project includes the auto-created
// pitch for workflows that have one.
func (s *ProjectService) CreateProject(ownerID uint, input CreateProjectInput) (*models.Project, *models.Pitch, error) {
	policy, err := policyFor(input.WorkflowType)
	if err != nil {
		return nil, nil, err
	}
	if input.Title == "" {
		return nil, nil, &ValidationError{Field: "title", Reason: "project title is required"}
	}
	if input.Budget.LessThan(decimalZero) || input.PrizeAmount.LessThan(decimalZero) {
		return nil, nil, &ValidationError{Field: "budget", Reason: "amounts cannot be negative"}
	}
	switch input.WorkflowType {
	case models.WorkflowTypeContest:
		if input.PrizeAmount.IsZero() && input.Budget.GreaterThan(decimalZero) {
			input.PrizeAmount = input.Budget
		}
	case models.WorkflowTypeDirectHire:
		if input.TargetProducerID == nil {
			return nil, nil, &ValidationError{Field: "target_producer_id", Reason: "direct hire requires a target producer"}
		}
	case models.WorkflowTypeClientManagement:
		if input.ClientEmail == nil || *input.ClientEmail == "" {
			return nil, nil, &ValidationError{Field: "client_email", Reason: "client projects require a client email"}
		}
	}

	var project *models.Project
	var pitch *models.Pitch
	err = s.db.Transaction(func(tx *gorm.DB) error {
		project = &models.Project{
			UserID:           ownerID,
			Title:            input.Title,
			Description:      input.Description,
			WorkflowType:     input.WorkflowType,
			Status:           models.ProjectStatusUnpublished,
			Budget:           input.Budget,
			PrizeAmount:      input.PrizeAmount,
			PrizeCurrency:    "USD",
			ClientEmail:      input.ClientEmail,
			ClientName:       input.ClientName,
			TargetProducerID: input.TargetProducerID,
			AutoAllowAccess:  input.AutoAllowAccess,
		}
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}

		pitch, err = s.createPitchForWorkflow(tx, project, policy)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if policy.ClientReviews() && pitch != nil {
		s.notifier.ClientActionRequired(project, pitch, "a new project has been set up for you")
	}
	return project, pitch, nil
}

// createPitchForWorkflow is the explicit creation-time orchestration. Client
// projects get the owner's own working pitch; direct hire gets the target
// producer's pitch, already in progress.
func (s *ProjectService) createPitchForWorkflow(tx *gorm.DB, project *models.Project, policy workflowPolicy) (*models.Pitch, error) {
	var producerID uint
	switch {
	case policy.ClientReviews():
		producerID = project.UserID
	case project.IsDirectHire():
		producerID = *project.TargetProducerID
	default:
		return nil, nil
	}

	pitch := &models.Pitch{
		ProjectID:         project.ProjectID,
		UserID:            producerID,
		Status:            policy.InitialPitchStatus(),
		PaymentAmount:     project.Budget,
		IncludedRevisions: 2,
	}
	if err := tx.Create(pitch).Error; err != nil {
		return nil, fmt.Errorf("create workflow pitch: %w", err)
	}
	pitch.Project = project

	if project.Budget.GreaterThan(decimalZero) {
		milestone := models.PitchMilestone{
			PitchID:   pitch.PitchID,
			Name:      defaultMilestoneName,
			Amount:    project.Budget,
			SortOrder: 1,
			Status:    models.MilestoneStatusPending,
		}
		if err := tx.Create(&milestone).Error; err != nil {
			return nil, fmt.Errorf("create default milestone: %w", err)
		}
	}

	if err := recordPitchEvent(tx, pitch, models.EventTypeStatusChange, "Pitch created with project", nil, &project.UserID, nil); err != nil {
		return nil, err
	}
	return pitch, nil
}

func (s *ProjectService) loadOwnedProject(tx *gorm.DB, projectID, ownerID uint) (*models.Project, error) {
	var project models.Project
	if err := tx.First(&project, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: projectID}
		}
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	if !project.IsOwnedBy(ownerID) {
		return nil, &UnauthorizedActionError{UserID: ownerID, Action: "manage this project"}
	}
	return &project, nil
}

// GetProject loads a project by id.
func (s *ProjectService) GetProject(projectID uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: projectID}
		}
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	return &project, nil
}

// PublishProject opens the project for pitches.
func (s *ProjectService) PublishProject(projectID, ownerID uint) (*models.Project, error) {
	var project *models.Project
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = s.loadOwnedProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if project.Status != models.ProjectStatusUnpublished {
			return &ValidationError{Field: "project_id", Reason: "only unpublished projects can be published"}
		}
		if err := tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			Update("status", models.ProjectStatusOpen).Error; err != nil {
			return fmt.Errorf("publish project: %w", err)
		}
		project.Status = models.ProjectStatusOpen
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CloseSubmissions ends a contest's entry period.
func (s *ProjectService) CloseSubmissions(projectID, ownerID uint) (*models.Project, error) {
	var project *models.Project
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = s.loadOwnedProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if !project.IsContest() {
			return &ValidationError{Field: "project_id", Reason: "only contests have a submission period"}
		}
		if project.IsSubmissionPeriodClosed() {
			return &ValidationError{Field: "project_id", Reason: "submissions are already closed"}
		}
		now := time.Now()
		if err := tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			Update("submissions_closed_at", now).Error; err != nil {
			return fmt.Errorf("close submissions: %w", err)
		}
		project.SubmissionsClosedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CancelProject abandons an unfinished project and closes its active pitches.
func (s *ProjectService) CancelProject(projectID, ownerID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.loadOwnedProject(tx, projectID, ownerID)
		if err != nil {
			return err
		}
		if project.Status == models.ProjectStatusCompleted {
			return &ValidationError{Field: "project_id", Reason: "completed projects cannot be cancelled"}
		}

		var paidCount int64
		err = tx.Model(&models.Pitch{}).
			Where("project_id = ? AND payment_status IN ?", projectID,
				[]string{models.PaymentStatusPaid, models.PaymentStatusProcessing}).
			Count(&paidCount).Error
		if err != nil {
			return fmt.Errorf("check paid pitches: %w", err)
		}
		if paidCount > 0 {
			return &PaymentStateConflictError{Reason: "cannot cancel a project with paid pitches"}
		}

		now := time.Now()
		err = tx.Model(&models.Pitch{}).
			Where("project_id = ? AND status IN ?", projectID,
				append(activePitchStatuses, models.PitchStatusContestEntry)).
			Updates(map[string]interface{}{
				"status":    models.PitchStatusClosed,
				"closed_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("close project pitches: %w", err)
		}

		return tx.Model(&models.Project{}).
			Where("project_id = ?", projectID).
			Update("status", models.ProjectStatusCancelled).Error
	})
}
