package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MilestoneStatusPending  = "pending"
	MilestoneStatusApproved = "approved"

	// ManualPaymentPrefix marks invoice references recorded outside the
	// payment gateway.
	ManualPaymentPrefix = "MANUAL_"
)

// PitchMilestone represents the pitch_milestones table: a named, individually
// payable portion of a pitch's total compensation.
type PitchMilestone struct {
	MilestoneID            uint            `gorm:"primaryKey;column:milestone_id" json:"milestone_id"`
	PitchID                uint            `gorm:"column:pitch_id;index" json:"pitch_id"`
	Name                   string          `gorm:"column:name" json:"name"`
	Description            string          `gorm:"column:description" json:"description"`
	Amount                 decimal.Decimal `gorm:"column:amount;type:decimal(10,2)" json:"amount"`
	SortOrder              int             `gorm:"column:sort_order" json:"sort_order"`
	Status                 string          `gorm:"column:status;default:pending" json:"status"`
	PaymentStatus          *string         `gorm:"column:payment_status" json:"payment_status,omitempty"`
	PaymentCompletedAt     *time.Time      `gorm:"column:payment_completed_at" json:"payment_completed_at,omitempty"`
	StripeInvoiceID        *string         `gorm:"column:stripe_invoice_id" json:"stripe_invoice_id,omitempty"`
	IsRevisionMilestone    bool            `gorm:"column:is_revision_milestone" json:"is_revision_milestone"`
	RevisionRoundNumber    *int            `gorm:"column:revision_round_number" json:"revision_round_number,omitempty"`
	RevisionRequestDetails *string         `gorm:"column:revision_request_details" json:"revision_request_details,omitempty"`
	PitchSnapshotID        *uint           `gorm:"column:pitch_snapshot_id" json:"pitch_snapshot_id,omitempty"`
	CreateAt               time.Time       `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt               time.Time       `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
}

func (PitchMilestone) TableName() string {
	return "pitch_milestones"
}

func (m *PitchMilestone) IsPaid() bool {
	return m.PaymentStatus != nil && *m.PaymentStatus == PaymentStatusPaid
}

// IsManualPayment reports whether the milestone was settled outside the
// payment gateway.
func (m *PitchMilestone) IsManualPayment() bool {
	return m.StripeInvoiceID != nil && strings.HasPrefix(*m.StripeInvoiceID, ManualPaymentPrefix)
}
