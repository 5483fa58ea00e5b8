package models

import "time"

// PitchFile represents the pitch_files table: an uploaded deliverable owned
// by a pitch. Snapshot data blobs reference these by id.
type PitchFile struct {
	FileID               uint       `gorm:"primaryKey;column:file_id" json:"file_id"`
	PitchID              uint       `gorm:"column:pitch_id;index" json:"pitch_id"`
	OriginalName         string     `gorm:"column:original_name" json:"original_name"`
	StoredPath           string     `gorm:"column:stored_path" json:"stored_path"`
	FileSize             int64      `gorm:"column:file_size" json:"file_size"`
	MimeType             string     `gorm:"column:mime_type" json:"mime_type"`
	SupersededByRevision bool       `gorm:"column:superseded_by_revision" json:"superseded_by_revision"`
	RevisionRound        *int       `gorm:"column:revision_round" json:"revision_round,omitempty"`
	UploadedBy           uint       `gorm:"column:uploaded_by" json:"uploaded_by"`
	UploadedAt           time.Time  `gorm:"column:uploaded_at;autoCreateTime" json:"uploaded_at"`
	DeleteAt             *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (PitchFile) TableName() string {
	return "pitch_files"
}

func (f *PitchFile) IsAudio() bool {
	switch f.MimeType {
	case "audio/mpeg", "audio/wav", "audio/x-wav", "audio/ogg", "audio/aac", "audio/flac", "audio/mp4":
		return true
	}
	return false
}

func (f *PitchFile) FileSizeInMB() float64 {
	return float64(f.FileSize) / (1024 * 1024)
}
