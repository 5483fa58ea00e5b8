package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	TransactionTypePayment = "payment"
	TransactionTypeRefund  = "refund"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Transaction represents the transactions table: the producer-side ledger
// record behind a payout schedule.
type Transaction struct {
	TransactionID         uint            `gorm:"primaryKey;column:transaction_id" json:"transaction_id"`
	UserID                uint            `gorm:"column:user_id;index" json:"user_id"`
	ProjectID             uint            `gorm:"column:project_id" json:"project_id"`
	PitchID               uint            `gorm:"column:pitch_id" json:"pitch_id"`
	PayoutScheduleID      *uint           `gorm:"column:payout_schedule_id" json:"payout_schedule_id,omitempty"`
	Type                  string          `gorm:"column:type;default:payment" json:"type"`
	Status                string          `gorm:"column:status;default:pending" json:"status"`
	Amount                decimal.Decimal `gorm:"column:amount;type:decimal(10,2)" json:"amount"`
	ExternalTransactionID *string         `gorm:"column:external_transaction_id" json:"external_transaction_id,omitempty"`
	WorkflowType          string          `gorm:"column:workflow_type" json:"workflow_type"`
	Description           string          `gorm:"column:description" json:"description"`
	Metadata              datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CompletedAt           *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreateAt              time.Time       `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt              time.Time       `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
