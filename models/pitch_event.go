package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	EventTypeStatusChange            = "status_change"
	EventTypeRevisionRequest         = "revision_request"
	EventTypePaymentStatusChange     = "payment_status_change"
	EventTypeBudgetUpdated           = "budget_updated"
	EventTypeRevisionPolicyUpdated   = "revision_policy_updated"
	EventTypeMilestoneManuallyPaid   = "milestone_manually_marked_paid"
	EventTypeClientApproved          = "client_approved"
	EventTypeClientCompleted         = "client_completed"
	EventTypeClientRevisions         = "client_revisions_requested"
	EventTypeContestWinner           = "contest_winner_selected"
	EventTypeContestWinnerNoPrize    = "contest_winner_selected_no_prize"
	EventTypeContestRunnerUp         = "contest_runner_up_selected"
	EventTypeContestEntryNotSelected = "contest_entry_not_selected"
	EventTypeRating                  = "rating"
)

// PitchEvent represents the pitch_events table: the append-only audit log of
// everything that happened to a pitch.
type PitchEvent struct {
	EventID    uint           `gorm:"primaryKey;column:event_id" json:"event_id"`
	PitchID    uint           `gorm:"column:pitch_id;index" json:"pitch_id"`
	EventType  string         `gorm:"column:event_type" json:"event_type"`
	Status     string         `gorm:"column:status" json:"status"`
	Comment    string         `gorm:"column:comment" json:"comment"`
	SnapshotID *uint          `gorm:"column:snapshot_id" json:"snapshot_id,omitempty"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedBy  *uint          `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PitchEvent) TableName() string {
	return "pitch_events"
}

// EncodeEventMetadata marshals free-form event metadata; nil maps produce a
// nil column.
func EncodeEventMetadata(meta map[string]interface{}) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
