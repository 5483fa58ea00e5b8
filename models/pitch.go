package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PitchStatusPending            = "pending"
	PitchStatusInProgress         = "in_progress"
	PitchStatusReadyForReview     = "ready_for_review"
	PitchStatusApproved           = "approved"
	PitchStatusDenied             = "denied"
	PitchStatusRevisionsRequested = "revisions_requested"
	PitchStatusClientRevisions    = "client_revisions_requested"
	PitchStatusCompleted          = "completed"
	PitchStatusClosed             = "closed"

	PitchStatusContestEntry       = "contest_entry"
	PitchStatusContestWinner      = "contest_winner"
	PitchStatusContestRunnerUp    = "contest_runner_up"
	PitchStatusContestNotSelected = "contest_not_selected"

	PaymentStatusPending     = "pending"
	PaymentStatusProcessing  = "processing"
	PaymentStatusPaid        = "paid"
	PaymentStatusFailed      = "failed"
	PaymentStatusNotRequired = "not_required"

	RankFirst    = "1st"
	RankSecond   = "2nd"
	RankThird    = "3rd"
	RankRunnerUp = "runner_up"
)

// Pitch represents the pitches table: a producer's working submission
// against a project.
type Pitch struct {
	PitchID                 uint            `gorm:"primaryKey;column:pitch_id" json:"pitch_id"`
	ProjectID               uint            `gorm:"column:project_id;index" json:"project_id"`
	UserID                  uint            `gorm:"column:user_id;index" json:"user_id"`
	Status                  string          `gorm:"column:status;default:pending" json:"status"`
	PaymentStatus           *string         `gorm:"column:payment_status" json:"payment_status,omitempty"`
	PaymentAmount           decimal.Decimal `gorm:"column:payment_amount;type:decimal(10,2)" json:"payment_amount"`
	Rank                    *string         `gorm:"column:rank" json:"rank,omitempty"`
	CurrentSnapshotID       *uint           `gorm:"column:current_snapshot_id" json:"current_snapshot_id,omitempty"`
	RevisionsUsed           int             `gorm:"column:revisions_used" json:"revisions_used"`
	IncludedRevisions       int             `gorm:"column:included_revisions" json:"included_revisions"`
	AdditionalRevisionPrice decimal.Decimal `gorm:"column:additional_revision_price;type:decimal(10,2)" json:"additional_revision_price"`
	FinalInvoiceID          *string         `gorm:"column:final_invoice_id" json:"final_invoice_id,omitempty"`
	CompletionFeedback      *string         `gorm:"column:completion_feedback" json:"completion_feedback,omitempty"`
	ApprovedAt              *time.Time      `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CompletedAt             *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ClosedAt                *time.Time      `gorm:"column:closed_at" json:"closed_at,omitempty"`
	PaymentCompletedAt      *time.Time      `gorm:"column:payment_completed_at" json:"payment_completed_at,omitempty"`
	CreateAt                time.Time       `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt                time.Time       `gorm:"column:update_at;autoUpdateTime" json:"update_at"`

	Project   *Project        `gorm:"foreignKey:ProjectID;references:ProjectID" json:"project,omitempty"`
	Producer  *User           `gorm:"foreignKey:UserID;references:UserID" json:"producer,omitempty"`
	Snapshots []PitchSnapshot `gorm:"foreignKey:PitchID" json:"snapshots,omitempty"`
}

func (Pitch) TableName() string {
	return "pitches"
}

// AllPitchStatuses is the fixed enum of valid pitch statuses.
var AllPitchStatuses = []string{
	PitchStatusPending,
	PitchStatusInProgress,
	PitchStatusReadyForReview,
	PitchStatusApproved,
	PitchStatusDenied,
	PitchStatusRevisionsRequested,
	PitchStatusClientRevisions,
	PitchStatusCompleted,
	PitchStatusClosed,
	PitchStatusContestEntry,
	PitchStatusContestWinner,
	PitchStatusContestRunnerUp,
	PitchStatusContestNotSelected,
}

func IsValidPitchStatus(status string) bool {
	for _, s := range AllPitchStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (p *Pitch) IsOwnedBy(userID uint) bool {
	return p.UserID == userID
}

// PaymentFinalized reports whether money has already moved (or is moving) for
// this pitch, which locks it against further review-cycle mutation.
func (p *Pitch) PaymentFinalized() bool {
	if p.PaymentStatus == nil {
		return false
	}
	return *p.PaymentStatus == PaymentStatusPaid || *p.PaymentStatus == PaymentStatusProcessing
}

func (p *Pitch) ReadableStatus() string {
	switch p.Status {
	case PitchStatusPending:
		return "Pending"
	case PitchStatusInProgress:
		return "In Progress"
	case PitchStatusReadyForReview:
		return "Ready for Review"
	case PitchStatusApproved:
		return "Approved"
	case PitchStatusDenied:
		return "Denied"
	case PitchStatusRevisionsRequested:
		return "Revisions Requested"
	case PitchStatusClientRevisions:
		return "Client Revisions Requested"
	case PitchStatusCompleted:
		return "Completed"
	case PitchStatusClosed:
		return "Closed"
	case PitchStatusContestEntry:
		return "Contest Entry"
	case PitchStatusContestWinner:
		return "Contest Winner"
	case PitchStatusContestRunnerUp:
		return "Contest Runner-Up"
	case PitchStatusContestNotSelected:
		return "Not Selected"
	default:
		return p.Status
	}
}
