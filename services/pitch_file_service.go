package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"pitchflow-api/models"
)

// PitchFileService manages deliverable records. Actual bytes live on disk or
// in object storage behind StoredPath; this service only owns the metadata
// rows that snapshots reference by id.
type PitchFileService struct {
	db    *gorm.DB
	store FileStore
}

// NewPitchFileService builds the service. store may be nil when deliverable
// bytes are managed externally; disk operations are then skipped.
func NewPitchFileService(db *gorm.DB, store FileStore) *PitchFileService {
	return &PitchFileService{db: db, store: store}
}

// RegisterFile records an uploaded deliverable against a pitch. Only the
// pitch's producer may upload.
func (s *PitchFileService) RegisterFile(pitchID, uploaderID uint, originalName, storedPath, mimeType string, fileSize int64) (*models.PitchFile, error) {
	var pitch models.Pitch
	if err := s.db.First(&pitch, "pitch_id = ?", pitchID).Error; err != nil {
		return nil, fmt.Errorf("load pitch %d: %w", pitchID, err)
	}
	if !pitch.IsOwnedBy(uploaderID) {
		return nil, &UnauthorizedActionError{UserID: uploaderID, Action: "upload files to this pitch"}
	}
	if originalName == "" || storedPath == "" {
		return nil, &ValidationError{Field: "file", Reason: "name and storage path are required"}
	}
	if s.store != nil && !s.store.Exists(storedPath) {
		return nil, &ValidationError{Field: "file", Reason: "stored file not found"}
	}

	file := models.PitchFile{
		PitchID:      pitchID,
		OriginalName: originalName,
		StoredPath:   storedPath,
		FileSize:     fileSize,
		MimeType:     mimeType,
		UploadedBy:   uploaderID,
	}
	if err := s.db.Create(&file).Error; err != nil {
		return nil, fmt.Errorf("store file record: %w", err)
	}
	return &file, nil
}

// CurrentFileIDs returns the ids of the pitch's live deliverables, the set a
// new snapshot captures.
func (s *PitchFileService) CurrentFileIDs(pitchID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.PitchFile{}).
		Where("pitch_id = ? AND superseded_by_revision = ? AND delete_at IS NULL", pitchID, false).
		Pluck("file_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list current files for pitch %d: %w", pitchID, err)
	}
	return ids, nil
}

// MarkSuperseded flags the given files as replaced during the given revision
// round so later snapshots stop picking them up.
func (s *PitchFileService) MarkSuperseded(tx *gorm.DB, fileIDs []uint, revisionRound int) error {
	if len(fileIDs) == 0 {
		return nil
	}
	return tx.Model(&models.PitchFile{}).
		Where("file_id IN ?", fileIDs).
		Updates(map[string]interface{}{
			"superseded_by_revision": true,
			"revision_round":         revisionRound,
		}).Error
}

// DeleteFile soft-deletes a deliverable. Files referenced by an accepted or
// completed snapshot stay untouched so the audit trail keeps resolving.
func (s *PitchFileService) DeleteFile(fileID, userID uint) error {
	var file models.PitchFile
	if err := s.db.First(&file, "file_id = ?", fileID).Error; err != nil {
		return fmt.Errorf("load file %d: %w", fileID, err)
	}
	if file.UploadedBy != userID {
		return &UnauthorizedActionError{UserID: userID, Action: "delete this file"}
	}

	referenced, err := s.fileReferencedByFinalSnapshot(file.PitchID, fileID)
	if err != nil {
		return err
	}
	if referenced {
		return &ValidationError{Field: "file_id", Reason: "file belongs to an accepted snapshot and cannot be deleted"}
	}

	now := time.Now()
	err = s.db.Model(&models.PitchFile{}).
		Where("file_id = ?", fileID).
		Update("delete_at", now).Error
	if err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Delete(file.StoredPath); err != nil {
			log.Printf("file %d: could not remove stored bytes: %v", fileID, err)
		}
	}
	return nil
}

func (s *PitchFileService) fileReferencedByFinalSnapshot(pitchID, fileID uint) (bool, error) {
	var snapshots []models.PitchSnapshot
	err := s.db.Where("pitch_id = ? AND status IN ?", pitchID,
		[]string{models.SnapshotStatusAccepted, models.SnapshotStatusCompleted}).
		Find(&snapshots).Error
	if err != nil {
		return false, fmt.Errorf("load snapshots for pitch %d: %w", pitchID, err)
	}
	for i := range snapshots {
		data, err := snapshots[i].DecodeData()
		if err != nil {
			continue
		}
		for _, id := range data.FileIDs {
			if id == fileID {
				return true, nil
			}
		}
	}
	return false, nil
}
