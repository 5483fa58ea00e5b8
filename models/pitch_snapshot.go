package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	SnapshotStatusPending            = "pending"
	SnapshotStatusAccepted           = "accepted"
	SnapshotStatusDenied             = "denied"
	SnapshotStatusRevisionsRequested = "revisions_requested"
	SnapshotStatusRevisionAddressed  = "revision_addressed"
	SnapshotStatusCancelled          = "cancelled"
	SnapshotStatusCompleted          = "completed"
)

// SnapshotData is the immutable payload captured when a pitch is submitted
// for review.
type SnapshotData struct {
	Version            int    `json:"version"`
	FileIDs            []uint `json:"file_ids"`
	ResponseToFeedback string `json:"response_to_feedback,omitempty"`
	PreviousSnapshotID *uint  `json:"previous_snapshot_id,omitempty"`
}

// PitchSnapshot represents the pitch_snapshots table: an append-only,
// versioned capture of a pitch's deliverables at review time. Only the status
// column is ever updated after creation.
type PitchSnapshot struct {
	SnapshotID uint           `gorm:"primaryKey;column:snapshot_id" json:"snapshot_id"`
	PitchID    uint           `gorm:"column:pitch_id;index" json:"pitch_id"`
	ProjectID  uint           `gorm:"column:project_id" json:"project_id"`
	UserID     uint           `gorm:"column:user_id" json:"user_id"`
	Version    int            `gorm:"column:version" json:"version"`
	Status     string         `gorm:"column:status;default:pending" json:"status"`
	Data       datatypes.JSON `gorm:"column:data" json:"data"`
	CreateAt   time.Time      `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt   time.Time      `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
}

func (PitchSnapshot) TableName() string {
	return "pitch_snapshots"
}

func (s *PitchSnapshot) IsPending() bool {
	return s.Status == SnapshotStatusPending
}

// DecodeData unpacks the JSON payload. An empty blob yields a zero value.
func (s *PitchSnapshot) DecodeData() (SnapshotData, error) {
	var data SnapshotData
	if len(s.Data) == 0 {
		return data, nil
	}
	err := json.Unmarshal(s.Data, &data)
	return data, err
}

// EncodeSnapshotData marshals the payload for storage.
func EncodeSnapshotData(data SnapshotData) (datatypes.JSON, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
