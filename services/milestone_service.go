package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pitchflow-api/models"
)

var decimalZero = decimal.Zero

// defaultMilestoneName is the name given to the single auto-managed milestone
// that mirrors the project budget.
const defaultMilestoneName = "Project Payment"

// MilestoneService owns the payment schedule attached to a pitch: the
// budget-synced default milestone, manually managed splits, and billable
// revision rounds.
type MilestoneService struct {
	db       *gorm.DB
	payouts  *PayoutService
	notifier Notifier
}

func NewMilestoneService(db *gorm.DB, payouts *PayoutService, notifier Notifier) *MilestoneService {
	return &MilestoneService{db: db, payouts: payouts, notifier: notifier}
}

func (s *MilestoneService) loadPitchForOwner(tx *gorm.DB, pitchID, ownerID uint) (*models.Pitch, error) {
	var pitch models.Pitch
	if err := tx.Preload("Project").First(&pitch, "pitch_id = ?", pitchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "pitch", ID: pitchID}
		}
		return nil, fmt.Errorf("load pitch %d: %w", pitchID, err)
	}
	if !pitch.Project.IsOwnedBy(ownerID) {
		return nil, &UnauthorizedActionError{UserID: ownerID, Action: "manage milestones on this project"}
	}
	return &pitch, nil
}

// ListMilestones returns the pitch's milestones in payment order.
func (s *MilestoneService) ListMilestones(pitchID uint) ([]models.PitchMilestone, error) {
	var milestones []models.PitchMilestone
	err := s.db.Where("pitch_id = ?", pitchID).
		Order("sort_order ASC, milestone_id ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("list milestones for pitch %d: %w", pitchID, err)
	}
	return milestones, nil
}

// AllMilestonesPaid reports whether every milestone on the pitch has settled,
// and whether the pitch has any milestones at all.
func (s *MilestoneService) AllMilestonesPaid(tx *gorm.DB, pitchID uint) (allPaid, hasMilestones bool, err error) {
	var total, paid int64
	if err := tx.Model(&models.PitchMilestone{}).
		Where("pitch_id = ?", pitchID).
		Count(&total).Error; err != nil {
		return false, false, fmt.Errorf("count milestones: %w", err)
	}
	if total == 0 {
		return false, false, nil
	}
	if err := tx.Model(&models.PitchMilestone{}).
		Where("pitch_id = ? AND payment_status = ?", pitchID, models.PaymentStatusPaid).
		Count(&paid).Error; err != nil {
		return false, true, fmt.Errorf("count paid milestones: %w", err)
	}
	return paid == total, true, nil
}

// SyncBudget updates the project budget and reconciles the pitch's milestone
// schedule with it:
//
//   - no milestones and a positive budget: create the default milestone
//   - exactly one unpaid, non-revision milestone: its amount follows the budget
//   - budget set to zero: the single unpaid milestone is deleted; a paid one
//     blocks the change
//   - more than one milestone: the schedule is manually managed and the
//     amounts are left alone
func (s *MilestoneService) SyncBudget(pitchID, ownerID uint, budget decimal.Decimal) error {
	if budget.LessThan(decimalZero) {
		return &ValidationError{Field: "budget", Reason: "budget cannot be negative"}
	}
	var pitch *models.Pitch
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pitch, err = s.loadPitchForOwner(tx, pitchID, ownerID)
		if err != nil {
			return err
		}
		if pitch.PaymentFinalized() {
			return &PaymentStateConflictError{Reason: "cannot change the budget after payment has started"}
		}

		var milestones []models.PitchMilestone
		if err := tx.Where("pitch_id = ? AND is_revision_milestone = ?", pitchID, false).
			Order("sort_order ASC").
			Find(&milestones).Error; err != nil {
			return fmt.Errorf("load milestones: %w", err)
		}

		previousBudget := pitch.Project.Budget

		switch {
		case len(milestones) == 0:
			if budget.GreaterThan(decimalZero) {
				milestone := models.PitchMilestone{
					PitchID:   pitchID,
					Name:      defaultMilestoneName,
					Amount:    budget,
					SortOrder: 1,
					Status:    models.MilestoneStatusPending,
				}
				if err := tx.Create(&milestone).Error; err != nil {
					return fmt.Errorf("create default milestone: %w", err)
				}
			}
		case len(milestones) == 1:
			only := milestones[0]
			if budget.IsZero() {
				if only.IsPaid() {
					return &PaymentStateConflictError{Reason: "cannot zero the budget while a paid milestone exists"}
				}
				if err := tx.Delete(&models.PitchMilestone{}, "milestone_id = ?", only.MilestoneID).Error; err != nil {
					return fmt.Errorf("delete milestone: %w", err)
				}
			} else if !only.IsPaid() {
				if err := tx.Model(&models.PitchMilestone{}).
					Where("milestone_id = ?", only.MilestoneID).
					Update("amount", budget).Error; err != nil {
					return fmt.Errorf("sync milestone amount: %w", err)
				}
			}
		default:
			// Manual mode: a split schedule never follows budget edits.
		}

		if err := tx.Model(&models.Project{}).
			Where("project_id = ?", pitch.ProjectID).
			Update("budget", budget).Error; err != nil {
			return fmt.Errorf("update project budget: %w", err)
		}
		if err := tx.Model(&models.Pitch{}).
			Where("pitch_id = ?", pitchID).
			Update("payment_amount", budget).Error; err != nil {
			return fmt.Errorf("update pitch payment amount: %w", err)
		}
		pitch.PaymentAmount = budget

		return recordPitchEvent(tx, pitch, models.EventTypeBudgetUpdated, "", nil, &ownerID, map[string]interface{}{
			"previous_budget": previousBudget.String(),
			"new_budget":      budget.String(),
		})
	})
	return err
}

// UpdateRevisionPolicy changes the included-revision allotment and the price
// of additional rounds. Dropping the price to zero deletes any unpaid revision
// milestones; paid ones are history and stay.
func (s *MilestoneService) UpdateRevisionPolicy(pitchID, ownerID uint, includedRevisions int, additionalPrice decimal.Decimal) error {
	if includedRevisions < 0 {
		return &ValidationError{Field: "included_revisions", Reason: "cannot be negative"}
	}
	if additionalPrice.LessThan(decimalZero) {
		return &ValidationError{Field: "additional_revision_price", Reason: "cannot be negative"}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		pitch, err := s.loadPitchForOwner(tx, pitchID, ownerID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Pitch{}).
			Where("pitch_id = ?", pitchID).
			Updates(map[string]interface{}{
				"included_revisions":        includedRevisions,
				"additional_revision_price": additionalPrice,
			}).Error; err != nil {
			return fmt.Errorf("update revision policy: %w", err)
		}

		if additionalPrice.IsZero() {
			err := tx.Where("pitch_id = ? AND is_revision_milestone = ? AND (payment_status IS NULL OR payment_status != ?)",
				pitchID, true, models.PaymentStatusPaid).
				Delete(&models.PitchMilestone{}).Error
			if err != nil {
				return fmt.Errorf("delete unpaid revision milestones: %w", err)
			}
		}

		return recordPitchEvent(tx, pitch, models.EventTypeRevisionPolicyUpdated, "", nil, &ownerID, map[string]interface{}{
			"included_revisions":        includedRevisions,
			"additional_revision_price": additionalPrice.String(),
		})
	})
}

// AddMilestone appends a manually managed milestone to the schedule.
func (s *MilestoneService) AddMilestone(pitchID, ownerID uint, name, description string, amount decimal.Decimal) (*models.PitchMilestone, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "milestone name is required"}
	}
	if amount.LessThanOrEqual(decimalZero) {
		return nil, &ValidationError{Field: "amount", Reason: "milestone amount must be positive"}
	}
	var milestone *models.PitchMilestone
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pitch, err := s.loadPitchForOwner(tx, pitchID, ownerID)
		if err != nil {
			return err
		}
		_ = pitch

		var maxOrder int
		row := tx.Model(&models.PitchMilestone{}).
			Where("pitch_id = ?", pitchID).
			Select("COALESCE(MAX(sort_order), 0)").
			Row()
		if err := row.Scan(&maxOrder); err != nil {
			return fmt.Errorf("determine sort order: %w", err)
		}

		milestone = &models.PitchMilestone{
			PitchID:     pitchID,
			Name:        name,
			Description: description,
			Amount:      amount,
			SortOrder:   maxOrder + 1,
			Status:      models.MilestoneStatusPending,
		}
		if err := tx.Create(milestone).Error; err != nil {
			return fmt.Errorf("create milestone: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// UpdateMilestone edits an unpaid milestone's name, description, and amount.
func (s *MilestoneService) UpdateMilestone(milestoneID, ownerID uint, name, description string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimalZero) {
		return &ValidationError{Field: "amount", Reason: "milestone amount must be positive"}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		milestone, err := s.loadMilestoneForOwner(tx, milestoneID, ownerID)
		if err != nil {
			return err
		}
		if milestone.IsPaid() {
			return &PaymentStateConflictError{Reason: "cannot edit a paid milestone"}
		}
		return tx.Model(&models.PitchMilestone{}).
			Where("milestone_id = ?", milestoneID).
			Updates(map[string]interface{}{
				"name":        name,
				"description": description,
				"amount":      amount,
			}).Error
	})
}

// DeleteMilestone removes an unpaid milestone from the schedule.
func (s *MilestoneService) DeleteMilestone(milestoneID, ownerID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		milestone, err := s.loadMilestoneForOwner(tx, milestoneID, ownerID)
		if err != nil {
			return err
		}
		if milestone.IsPaid() {
			return &PaymentStateConflictError{Reason: "cannot delete a paid milestone"}
		}
		return tx.Delete(&models.PitchMilestone{}, "milestone_id = ?", milestoneID).Error
	})
}

func (s *MilestoneService) loadMilestoneForOwner(tx *gorm.DB, milestoneID, ownerID uint) (*models.PitchMilestone, error) {
	var milestone models.PitchMilestone
	if err := tx.First(&milestone, "milestone_id = ?", milestoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "milestone", ID: milestoneID}
		}
		return nil, fmt.Errorf("load milestone %d: %w", milestoneID, err)
	}
	if _, err := s.loadPitchForOwner(tx, milestone.PitchID, ownerID); err != nil {
		return nil, err
	}
	return &milestone, nil
}

// CreateRevisionMilestone records a billable revision round. Called from the
// revision-request transition once the included rounds run out.
func (s *MilestoneService) CreateRevisionMilestone(tx *gorm.DB, pitch *models.Pitch, round int, details string) (*models.PitchMilestone, error) {
	var maxOrder int
	row := tx.Model(&models.PitchMilestone{}).
		Where("pitch_id = ?", pitch.PitchID).
		Select("COALESCE(MAX(sort_order), 0)").
		Row()
	if err := row.Scan(&maxOrder); err != nil {
		return nil, fmt.Errorf("determine sort order: %w", err)
	}

	milestone := models.PitchMilestone{
		PitchID:                pitch.PitchID,
		Name:                   fmt.Sprintf("Revision Round %d", round),
		Amount:                 pitch.AdditionalRevisionPrice,
		SortOrder:              maxOrder + 1,
		Status:                 models.MilestoneStatusPending,
		IsRevisionMilestone:    true,
		RevisionRoundNumber:    &round,
		RevisionRequestDetails: &details,
		PitchSnapshotID:        pitch.CurrentSnapshotID,
	}
	if err := tx.Create(&milestone).Error; err != nil {
		return nil, fmt.Errorf("create revision milestone: %w", err)
	}
	return &milestone, nil
}

// MarkMilestonePaid records a settled milestone payment, schedules the
// producer's payout, and rolls the pitch forward when the whole schedule has
// settled. A MANUAL_ reference marks an off-platform settlement.
func (s *MilestoneService) MarkMilestonePaid(milestoneID, ownerID uint, paymentReference string) (*models.PitchMilestone, error) {
	if paymentReference == "" {
		return nil, &ValidationError{Field: "payment_reference", Reason: "payment reference is required"}
	}
	var milestone *models.PitchMilestone
	var pitch *models.Pitch
	var payout *models.PayoutSchedule
	var pitchFullyPaid bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		milestone, err = s.loadMilestoneForOwner(tx, milestoneID, ownerID)
		if err != nil {
			return err
		}
		pitch, err = s.loadPitchForOwner(tx, milestone.PitchID, ownerID)
		if err != nil {
			return err
		}

		now := time.Now()
		// The not-yet-paid check and the write are one compare-and-swap; the
		// unique index on milestone_id backstops the payout either way.
		result := tx.Model(&models.PitchMilestone{}).
			Where("milestone_id = ? AND (payment_status IS NULL OR payment_status != ?)", milestoneID, models.PaymentStatusPaid).
			Updates(map[string]interface{}{
				"payment_status":       models.PaymentStatusPaid,
				"payment_completed_at": now,
				"stripe_invoice_id":    paymentReference,
				"status":               models.MilestoneStatusApproved,
			})
		if result.Error != nil {
			return fmt.Errorf("mark milestone %d paid: %w", milestoneID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &PaymentStateConflictError{Reason: "milestone is already paid"}
		}
		paid := models.PaymentStatusPaid
		milestone.PaymentStatus = &paid
		milestone.PaymentCompletedAt = &now
		milestone.StripeInvoiceID = &paymentReference

		payout, err = s.payouts.SchedulePayoutForMilestone(tx, pitch, milestone, paymentReference)
		if err != nil {
			return err
		}

		eventType := models.EventTypePaymentStatusChange
		if IsManualReference(paymentReference) {
			eventType = models.EventTypeMilestoneManuallyPaid
		}
		if err := recordPitchEvent(tx, pitch, eventType, "", nil, &ownerID, map[string]interface{}{
			"milestone_id":      milestoneID,
			"amount":            milestone.Amount.String(),
			"payment_reference": paymentReference,
		}); err != nil {
			return err
		}

		allPaid, hasMilestones, err := s.AllMilestonesPaid(tx, milestone.PitchID)
		if err != nil {
			return err
		}
		if hasMilestones && allPaid {
			pitchFullyPaid = true
			err = tx.Model(&models.Pitch{}).
				Where("pitch_id = ? AND (payment_status IS NULL OR payment_status != ?)", milestone.PitchID, models.PaymentStatusPaid).
				Updates(map[string]interface{}{
					"payment_status":       models.PaymentStatusPaid,
					"payment_completed_at": now,
				}).Error
			if err != nil {
				return fmt.Errorf("mark pitch paid: %w", err)
			}
			pitch.PaymentStatus = &paid
			pitch.PaymentCompletedAt = &now

			// In the client workflow an already-approved pitch completes
			// once the schedule settles.
			policy, err := policyFor(pitch.Project.WorkflowType)
			if err != nil {
				return err
			}
			if policy.ClientReviews() && pitch.Status == models.PitchStatusApproved {
				if err := completeApprovedPitchTx(tx, pitch, nil, "All milestones paid"); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pitchFullyPaid {
		s.notifier.PaymentStatusChanged(pitch, models.PaymentStatusPaid)
	}
	if payout != nil {
		s.notifier.PayoutScheduled(payout)
	}
	return milestone, nil
}
