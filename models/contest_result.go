package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ContestResult represents the contest_results table: one row per contest
// project holding placement assignments. The three exclusive placements are
// foreign references with ON DELETE SET NULL semantics; the runner-up list is
// an application-managed JSON array and must be repaired in code when a pitch
// disappears.
type ContestResult struct {
	ContestResultID         uint           `gorm:"primaryKey;column:contest_result_id" json:"contest_result_id"`
	ProjectID               uint           `gorm:"column:project_id;uniqueIndex" json:"project_id"`
	FirstPlacePitchID       *uint          `gorm:"column:first_place_pitch_id" json:"first_place_pitch_id,omitempty"`
	SecondPlacePitchID      *uint          `gorm:"column:second_place_pitch_id" json:"second_place_pitch_id,omitempty"`
	ThirdPlacePitchID       *uint          `gorm:"column:third_place_pitch_id" json:"third_place_pitch_id,omitempty"`
	RunnerUpPitchIDs        datatypes.JSON `gorm:"column:runner_up_pitch_ids" json:"runner_up_pitch_ids,omitempty"`
	FinalizedAt             *time.Time     `gorm:"column:finalized_at" json:"finalized_at,omitempty"`
	FinalizedBy             *uint          `gorm:"column:finalized_by" json:"finalized_by,omitempty"`
	ShowSubmissionsPublicly bool           `gorm:"column:show_submissions_publicly" json:"show_submissions_publicly"`
	CreateAt                time.Time      `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt                time.Time      `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
}

func (ContestResult) TableName() string {
	return "contest_results"
}

func (r *ContestResult) IsFinalized() bool {
	return r.FinalizedAt != nil
}

// RunnerUpIDs decodes the runner-up list; a null column yields nil.
func (r *ContestResult) RunnerUpIDs() []uint {
	if len(r.RunnerUpPitchIDs) == 0 {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal(r.RunnerUpPitchIDs, &ids); err != nil {
		return nil
	}
	return ids
}

// SetRunnerUpIDs encodes the runner-up list. An empty list is normalized to
// null, never stored as an empty array.
func (r *ContestResult) SetRunnerUpIDs(ids []uint) {
	if len(ids) == 0 {
		r.RunnerUpPitchIDs = nil
		return
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		r.RunnerUpPitchIDs = nil
		return
	}
	r.RunnerUpPitchIDs = datatypes.JSON(raw)
}

// HasPlacement returns the placement a pitch currently holds, if any.
func (r *ContestResult) HasPlacement(pitchID uint) *string {
	placement := func(s string) *string { return &s }
	if r.FirstPlacePitchID != nil && *r.FirstPlacePitchID == pitchID {
		return placement(RankFirst)
	}
	if r.SecondPlacePitchID != nil && *r.SecondPlacePitchID == pitchID {
		return placement(RankSecond)
	}
	if r.ThirdPlacePitchID != nil && *r.ThirdPlacePitchID == pitchID {
		return placement(RankThird)
	}
	for _, id := range r.RunnerUpIDs() {
		if id == pitchID {
			return placement(RankRunnerUp)
		}
	}
	return nil
}

// PlacedPitchIDs returns every pitch id referenced by any placement field.
func (r *ContestResult) PlacedPitchIDs() []uint {
	var ids []uint
	if r.FirstPlacePitchID != nil {
		ids = append(ids, *r.FirstPlacePitchID)
	}
	if r.SecondPlacePitchID != nil {
		ids = append(ids, *r.SecondPlacePitchID)
	}
	if r.ThirdPlacePitchID != nil {
		ids = append(ids, *r.ThirdPlacePitchID)
	}
	return append(ids, r.RunnerUpIDs()...)
}

func (r *ContestResult) HasWinners() bool {
	return r.FirstPlacePitchID != nil ||
		r.SecondPlacePitchID != nil ||
		r.ThirdPlacePitchID != nil ||
		len(r.RunnerUpIDs()) > 0
}

// RemovePitchFromAllPlacements clears the pitch id wherever it appears.
// Reports whether anything changed.
func (r *ContestResult) RemovePitchFromAllPlacements(pitchID uint) bool {
	removed := false
	if r.FirstPlacePitchID != nil && *r.FirstPlacePitchID == pitchID {
		r.FirstPlacePitchID = nil
		removed = true
	}
	if r.SecondPlacePitchID != nil && *r.SecondPlacePitchID == pitchID {
		r.SecondPlacePitchID = nil
		removed = true
	}
	if r.ThirdPlacePitchID != nil && *r.ThirdPlacePitchID == pitchID {
		r.ThirdPlacePitchID = nil
		removed = true
	}
	runnerUps := r.RunnerUpIDs()
	filtered := runnerUps[:0]
	for _, id := range runnerUps {
		if id != pitchID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) != len(runnerUps) {
		r.SetRunnerUpIDs(filtered)
		removed = true
	}
	return removed
}
