package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pitchflow-api/config"
	"pitchflow-api/middleware"
	"pitchflow-api/models"
)

type SetPlacementRequest struct {
	PitchID uint   `json:"pitch_id" binding:"required"`
	Place   string `json:"place" binding:"required"`
}

// SetContestPlacement records a tentative placement before finalization.
func SetContestPlacement(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := judgingService().SetPlacement(projectID, middleware.CurrentUserID(c), req.PitchID, req.Place)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_result": result})
}

type ClearPlacementRequest struct {
	PitchID uint `json:"pitch_id" binding:"required"`
}

// ClearContestPlacement removes a pitch from every placement it holds.
func ClearContestPlacement(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ClearPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := judgingService().ClearPlacement(projectID, middleware.CurrentUserID(c), req.PitchID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_result": result})
}

// GetContestResult returns the placements and their orphan state.
func GetContestResult(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := judgingService().GetOrCreateResult(projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	orphans, err := judgingService().OrphanedPitchIDs(projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_result": result, "orphaned_pitch_ids": orphans})
}

// CleanupContestResult strips placements whose pitch no longer exists.
func CleanupContestResult(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := judgingService().CleanupOrphanedPitches(projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_result": result})
}

// FinalizeContestJudging locks the placements and announces the outcomes.
func FinalizeContestJudging(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := judgingService().FinalizeJudging(projectID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_result": result})
}

// SelectContestWinnerHandler crowns a contest entry directly, closing the
// remaining entries as not selected.
func SelectContestWinnerHandler(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().SelectContestWinner(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// SelectContestRunnerUpHandler marks an entry as runner-up.
func SelectContestRunnerUpHandler(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().SelectContestRunnerUp(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// ReopenContestJudging unwinds a finalized contest. Admin only.
func ReopenContestJudging(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var admin models.User
	if err := config.DB.First(&admin, "user_id = ?", middleware.CurrentUserID(c)).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if err := judgingService().ReopenJudging(projectID, &admin); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Judging reopened"})
}
