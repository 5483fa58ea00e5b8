package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pitchflow-api/models"
)

// PayoutService schedules and releases producer payouts. Scheduling happens
// inside the payment transaction; release happens later, from the sweep, once
// the hold window passes.
type PayoutService struct {
	db   *gorm.DB
	hold *PayoutHoldService
}

func NewPayoutService(db *gorm.DB, hold *PayoutHoldService) *PayoutService {
	return &PayoutService{db: db, hold: hold}
}

// SchedulePayoutForMilestone creates the payout row for a settled milestone.
// Idempotent per milestone: a second call for the same milestone returns the
// existing schedule untouched.
func (s *PayoutService) SchedulePayoutForMilestone(tx *gorm.DB, pitch *models.Pitch, milestone *models.PitchMilestone, paymentReference string) (*models.PayoutSchedule, error) {
	var existing models.PayoutSchedule
	err := tx.Where("milestone_id = ? AND status != ?", milestone.MilestoneID, models.PayoutStatusCancelled).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing payout: %w", err)
	}
	return s.schedule(tx, pitch, milestone, milestone.Amount, paymentReference)
}

// SchedulePayoutForPitch creates the payout row for a whole-pitch payment,
// such as a contest prize. Idempotent per pitch.
func (s *PayoutService) SchedulePayoutForPitch(tx *gorm.DB, pitch *models.Pitch, paymentReference string) (*models.PayoutSchedule, error) {
	var existing models.PayoutSchedule
	err := tx.Where("pitch_id = ? AND milestone_id IS NULL AND status != ?", pitch.PitchID, models.PayoutStatusCancelled).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing payout: %w", err)
	}
	return s.schedule(tx, pitch, nil, pitch.PaymentAmount, paymentReference)
}

func (s *PayoutService) schedule(tx *gorm.DB, pitch *models.Pitch, milestone *models.PitchMilestone, gross decimal.Decimal, paymentReference string) (*models.PayoutSchedule, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return nil, &ValidationError{Field: "amount", Reason: "payout gross amount must be positive"}
	}
	if pitch.Project == nil {
		return nil, &ValidationError{Field: "pitch", Reason: "pitch must be loaded with its project"}
	}

	var producer models.User
	if err := tx.First(&producer, "user_id = ?", pitch.UserID).Error; err != nil {
		return nil, fmt.Errorf("load producer %d: %w", pitch.UserID, err)
	}

	now := time.Now()
	manual := IsManualReference(paymentReference)

	// Manual settlements already happened off-platform: no commission, no
	// hold window.
	rate := producer.PlatformCommissionRate()
	releaseDate := s.hold.CalculateHoldReleaseDate(pitch.Project.WorkflowType, now)
	if manual {
		rate = decimal.Zero
		releaseDate = s.hold.ImmediateRelease(now)
	}

	commission := gross.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
	net := gross.Sub(commission)

	var milestoneID *uint
	meta := map[string]interface{}{
		"payment_reference": paymentReference,
		"manual_payment":    manual,
		"workflow_type":     pitch.Project.WorkflowType,
	}
	description := fmt.Sprintf("Producer payout for pitch %d", pitch.PitchID)
	if milestone != nil {
		milestoneID = &milestone.MilestoneID
		description = fmt.Sprintf("Producer payout for milestone %q on pitch %d", milestone.Name, pitch.PitchID)
		meta["milestone_name"] = milestone.Name
		meta["is_revision_milestone"] = milestone.IsRevisionMilestone
		if milestone.RevisionRoundNumber != nil {
			meta["revision_round"] = *milestone.RevisionRoundNumber
		}
	}

	txn := models.Transaction{
		UserID:       pitch.UserID,
		ProjectID:    pitch.ProjectID,
		PitchID:      pitch.PitchID,
		Type:         models.TransactionTypePayment,
		Status:       models.TransactionStatusPending,
		Amount:       net,
		WorkflowType: pitch.Project.WorkflowType,
		Description:  description,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, fmt.Errorf("create payout transaction: %w", err)
	}

	payout := models.PayoutSchedule{
		ProducerUserID:   pitch.UserID,
		ProjectID:        pitch.ProjectID,
		PitchID:          pitch.PitchID,
		MilestoneID:      milestoneID,
		TransactionID:    &txn.TransactionID,
		WorkflowType:     pitch.Project.WorkflowType,
		GrossAmount:      gross,
		CommissionRate:   rate,
		CommissionAmount: commission,
		NetAmount:        net,
		Currency:         "USD",
		Status:           models.PayoutStatusScheduled,
		HoldReleaseDate:  releaseDate,
		Metadata:         models.EncodePayoutMetadata(meta),
	}
	if err := tx.Create(&payout).Error; err != nil {
		return nil, fmt.Errorf("create payout schedule: %w", err)
	}

	if err := tx.Model(&models.Transaction{}).
		Where("transaction_id = ?", txn.TransactionID).
		Update("payout_schedule_id", payout.PayoutScheduleID).Error; err != nil {
		return nil, fmt.Errorf("link transaction to payout: %w", err)
	}
	return &payout, nil
}

// BypassHold lets an admin release a scheduled payout before its hold date.
func (s *PayoutService) BypassHold(payoutID uint, admin *models.User, reason string) (*models.PayoutSchedule, error) {
	if err := s.hold.ValidateBypass(admin, reason); err != nil {
		return nil, err
	}
	var payout models.PayoutSchedule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payout, "payout_schedule_id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "payout", ID: payoutID}
			}
			return fmt.Errorf("load payout %d: %w", payoutID, err)
		}
		if payout.Status != models.PayoutStatusScheduled {
			return &PaymentStateConflictError{Reason: "only scheduled payouts can bypass the hold"}
		}
		now := time.Now()
		release := s.hold.BypassReleaseDate(now)
		updates := map[string]interface{}{
			"hold_release_date": release,
			"hold_bypassed":     true,
			"bypass_admin_id":   admin.UserID,
			"bypassed_at":       now,
		}
		if reason != "" {
			updates["bypass_reason"] = reason
		}
		result := tx.Model(&models.PayoutSchedule{}).
			Where("payout_schedule_id = ? AND status = ?", payoutID, models.PayoutStatusScheduled).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("bypass hold: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &PaymentStateConflictError{Reason: "payout left the scheduled state"}
		}
		payout.HoldReleaseDate = release
		payout.HoldBypassed = true
		payout.Status = models.PayoutStatusScheduled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// CancelPayout withdraws a scheduled payout, for example when a payment is
// refunded before release.
func (s *PayoutService) CancelPayout(payoutID uint, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.PayoutSchedule{}).
			Where("payout_schedule_id = ? AND status = ?", payoutID, models.PayoutStatusScheduled).
			Updates(map[string]interface{}{
				"status":         models.PayoutStatusCancelled,
				"cancelled_at":   now,
				"failure_reason": reason,
			})
		if result.Error != nil {
			return fmt.Errorf("cancel payout %d: %w", payoutID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &PaymentStateConflictError{Reason: "only scheduled payouts can be cancelled"}
		}
		var payout models.PayoutSchedule
		if err := tx.First(&payout, "payout_schedule_id = ?", payoutID).Error; err == nil && payout.TransactionID != nil {
			return tx.Model(&models.Transaction{}).
				Where("transaction_id = ?", *payout.TransactionID).
				Update("status", models.TransactionStatusCancelled).Error
		}
		return nil
	})
}

// ProcessDuePayouts releases every scheduled payout whose hold has expired.
// Returns the number released. Each payout moves through processing to
// completed in its own transaction so one failure does not wedge the sweep.
func (s *PayoutService) ProcessDuePayouts(now time.Time) (int, error) {
	var due []models.PayoutSchedule
	err := s.db.Where("status = ? AND hold_release_date <= ?", models.PayoutStatusScheduled, now).
		Order("hold_release_date ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("list due payouts: %w", err)
	}

	released := 0
	for i := range due {
		if err := s.releasePayout(&due[i], now); err != nil {
			s.markPayoutFailed(due[i].PayoutScheduleID, err.Error())
			continue
		}
		released++
	}
	return released, nil
}

func (s *PayoutService) releasePayout(payout *models.PayoutSchedule, now time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PayoutSchedule{}).
			Where("payout_schedule_id = ? AND status = ?", payout.PayoutScheduleID, models.PayoutStatusScheduled).
			Updates(map[string]interface{}{
				"status":       models.PayoutStatusProcessing,
				"processed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &PaymentStateConflictError{Reason: "payout left the scheduled state"}
		}

		reference := PayoutReference(payout.PayoutScheduleID)
		err := tx.Model(&models.PayoutSchedule{}).
			Where("payout_schedule_id = ?", payout.PayoutScheduleID).
			Updates(map[string]interface{}{
				"status":            models.PayoutStatusCompleted,
				"payment_reference": reference,
				"completed_at":      now,
			}).Error
		if err != nil {
			return err
		}

		if payout.TransactionID != nil {
			err = tx.Model(&models.Transaction{}).
				Where("transaction_id = ?", *payout.TransactionID).
				Updates(map[string]interface{}{
					"status":                  models.TransactionStatusCompleted,
					"external_transaction_id": reference,
					"completed_at":            now,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PayoutService) markPayoutFailed(payoutID uint, reason string) {
	now := time.Now()
	s.db.Model(&models.PayoutSchedule{}).
		Where("payout_schedule_id = ?", payoutID).
		Updates(map[string]interface{}{
			"status":         models.PayoutStatusFailed,
			"failure_reason": reason,
			"failed_at":      now,
		})
}

// ListProducerPayouts returns a producer's payouts, newest first.
func (s *PayoutService) ListProducerPayouts(producerID uint) ([]models.PayoutSchedule, error) {
	var payouts []models.PayoutSchedule
	err := s.db.Where("producer_user_id = ?", producerID).
		Order("create_at DESC").
		Find(&payouts).Error
	if err != nil {
		return nil, fmt.Errorf("list payouts for producer %d: %w", producerID, err)
	}
	return payouts, nil
}

// ListPayouts returns every payout, newest first, optionally filtered by
// status. Admin listing.
func (s *PayoutService) ListPayouts(status string) ([]models.PayoutSchedule, error) {
	query := s.db.Order("create_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var payouts []models.PayoutSchedule
	if err := query.Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return payouts, nil
}

// PayoutStatistics summarizes payout state for the admin dashboard.
type PayoutStatistics struct {
	TotalCount     int64           `json:"total_count"`
	ScheduledCount int64           `json:"scheduled_count"`
	CompletedCount int64           `json:"completed_count"`
	FailedCount    int64           `json:"failed_count"`
	CancelledCount int64           `json:"cancelled_count"`
	TotalNetAmount decimal.Decimal `json:"total_net_amount"`
	TotalHeld      decimal.Decimal `json:"total_held"`
}

// Statistics aggregates payout counts and amounts.
func (s *PayoutService) Statistics() (*PayoutStatistics, error) {
	stats := &PayoutStatistics{}
	counts := map[string]*int64{
		models.PayoutStatusScheduled: &stats.ScheduledCount,
		models.PayoutStatusCompleted: &stats.CompletedCount,
		models.PayoutStatusFailed:    &stats.FailedCount,
		models.PayoutStatusCancelled: &stats.CancelledCount,
	}
	if err := s.db.Model(&models.PayoutSchedule{}).Count(&stats.TotalCount).Error; err != nil {
		return nil, fmt.Errorf("count payouts: %w", err)
	}
	for status, dest := range counts {
		if err := s.db.Model(&models.PayoutSchedule{}).
			Where("status = ?", status).
			Count(dest).Error; err != nil {
			return nil, fmt.Errorf("count %s payouts: %w", status, err)
		}
	}

	var completed, held []models.PayoutSchedule
	if err := s.db.Where("status = ?", models.PayoutStatusCompleted).Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("load completed payouts: %w", err)
	}
	for i := range completed {
		stats.TotalNetAmount = stats.TotalNetAmount.Add(completed[i].NetAmount)
	}
	if err := s.db.Where("status = ?", models.PayoutStatusScheduled).Find(&held).Error; err != nil {
		return nil, fmt.Errorf("load scheduled payouts: %w", err)
	}
	for i := range held {
		stats.TotalHeld = stats.TotalHeld.Add(held[i].NetAmount)
	}
	return stats, nil
}
