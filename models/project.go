package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProjectStatusUnpublished = "unpublished"
	ProjectStatusOpen        = "open"
	ProjectStatusInProgress  = "in_progress"
	ProjectStatusCompleted   = "completed"
	ProjectStatusCancelled   = "cancelled"

	WorkflowTypeStandard         = "standard"
	WorkflowTypeContest          = "contest"
	WorkflowTypeDirectHire       = "direct_hire"
	WorkflowTypeClientManagement = "client_management"
)

// Project represents the projects table.
type Project struct {
	ProjectID          uint            `gorm:"primaryKey;column:project_id" json:"project_id"`
	UserID             uint            `gorm:"column:user_id;index" json:"user_id"`
	Title              string          `gorm:"column:title" json:"title"`
	Description        string          `gorm:"column:description" json:"description"`
	WorkflowType       string          `gorm:"column:workflow_type;default:standard" json:"workflow_type"`
	Status             string          `gorm:"column:status;default:unpublished" json:"status"`
	Budget             decimal.Decimal `gorm:"column:budget;type:decimal(10,2)" json:"budget"`
	PrizeAmount        decimal.Decimal `gorm:"column:prize_amount;type:decimal(10,2)" json:"prize_amount"`
	PrizeCurrency      string          `gorm:"column:prize_currency;default:USD" json:"prize_currency"`
	ClientEmail        *string         `gorm:"column:client_email" json:"client_email,omitempty"`
	ClientName         *string         `gorm:"column:client_name" json:"client_name,omitempty"`
	AutoAllowAccess    bool            `gorm:"column:auto_allow_access" json:"auto_allow_access"`
	TargetProducerID   *uint           `gorm:"column:target_producer_id" json:"target_producer_id,omitempty"`
	SubmissionsClosedAt *time.Time     `gorm:"column:submissions_closed_at" json:"submissions_closed_at,omitempty"`
	JudgingFinalizedAt *time.Time      `gorm:"column:judging_finalized_at" json:"judging_finalized_at,omitempty"`
	CompletedAt        *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreateAt           time.Time       `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt           time.Time       `gorm:"column:update_at;autoUpdateTime" json:"update_at"`

	Owner *User `gorm:"foreignKey:UserID;references:UserID" json:"owner,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) IsStandard() bool {
	return p.WorkflowType == WorkflowTypeStandard
}

func (p *Project) IsContest() bool {
	return p.WorkflowType == WorkflowTypeContest
}

func (p *Project) IsDirectHire() bool {
	return p.WorkflowType == WorkflowTypeDirectHire
}

func (p *Project) IsClientManagement() bool {
	return p.WorkflowType == WorkflowTypeClientManagement
}

func (p *Project) IsOwnedBy(userID uint) bool {
	return p.UserID == userID
}

// IsOpenForPitches reports whether new pitches may be created against the
// project. Unpublished client-management projects still accept the producer's
// own pitch, which is created through the explicit orchestration path.
func (p *Project) IsOpenForPitches() bool {
	return p.Status == ProjectStatusOpen
}

// IsSubmissionPeriodClosed reports whether a contest stopped accepting entries.
func (p *Project) IsSubmissionPeriodClosed() bool {
	return p.SubmissionsClosedAt != nil && p.SubmissionsClosedAt.Before(time.Now())
}

func (p *Project) IsJudgingFinalized() bool {
	return p.JudgingFinalizedAt != nil
}
