package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PayoutStatusScheduled  = "scheduled"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// PayoutSchedule represents the payout_schedules table: a scheduled transfer
// to a producer for a paid milestone or a fully paid pitch. Exactly one row
// exists per payment-completion event; net_amount always equals gross minus
// commission.
type PayoutSchedule struct {
	PayoutScheduleID uint            `gorm:"primaryKey;column:payout_schedule_id" json:"payout_schedule_id"`
	ProducerUserID   uint            `gorm:"column:producer_user_id;index" json:"producer_user_id"`
	ProjectID        uint            `gorm:"column:project_id" json:"project_id"`
	PitchID          uint            `gorm:"column:pitch_id;index" json:"pitch_id"`
	MilestoneID      *uint           `gorm:"column:milestone_id;uniqueIndex" json:"milestone_id,omitempty"`
	TransactionID    *uint           `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	WorkflowType     string          `gorm:"column:workflow_type" json:"workflow_type"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:decimal(10,2)" json:"gross_amount"`
	CommissionRate   decimal.Decimal `gorm:"column:commission_rate;type:decimal(5,2)" json:"commission_rate"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:decimal(10,2)" json:"commission_amount"`
	NetAmount        decimal.Decimal `gorm:"column:net_amount;type:decimal(10,2)" json:"net_amount"`
	Currency         string          `gorm:"column:currency;default:USD" json:"currency"`
	Status           string          `gorm:"column:status;default:scheduled" json:"status"`
	HoldReleaseDate  time.Time       `gorm:"column:hold_release_date" json:"hold_release_date"`
	HoldBypassed     bool            `gorm:"column:hold_bypassed" json:"hold_bypassed"`
	BypassReason     *string         `gorm:"column:bypass_reason" json:"bypass_reason,omitempty"`
	BypassAdminID    *uint           `gorm:"column:bypass_admin_id" json:"bypass_admin_id,omitempty"`
	BypassedAt       *time.Time      `gorm:"column:bypassed_at" json:"bypassed_at,omitempty"`
	PaymentReference *string         `gorm:"column:payment_reference" json:"payment_reference,omitempty"`
	FailureReason    *string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CompletedAt      *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	FailedAt         *time.Time      `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CancelledAt      *time.Time      `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	Metadata         datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreateAt         time.Time       `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt         time.Time       `gorm:"column:update_at;autoUpdateTime" json:"update_at"`

	Producer    *User           `gorm:"foreignKey:ProducerUserID" json:"producer,omitempty"`
	Transaction *Transaction    `gorm:"foreignKey:TransactionID;references:TransactionID" json:"transaction,omitempty"`
	Milestone   *PitchMilestone `gorm:"foreignKey:MilestoneID;references:MilestoneID" json:"milestone,omitempty"`
}

func (PayoutSchedule) TableName() string {
	return "payout_schedules"
}

func (p *PayoutSchedule) IsReleasable(now time.Time) bool {
	return p.Status == PayoutStatusScheduled && !p.HoldReleaseDate.After(now)
}

// EncodePayoutMetadata marshals free-form payout metadata.
func EncodePayoutMetadata(meta map[string]interface{}) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
