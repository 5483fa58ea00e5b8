package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pitchflow-api/config"
	"pitchflow-api/middleware"
	"pitchflow-api/models"
)

// portalPitch resolves the working pitch for the portal's project.
func portalPitch(c *gin.Context) (*models.Pitch, bool) {
	projectID := middleware.PortalProjectID(c)
	var pitch models.Pitch
	err := config.DB.Preload("Project").
		Where("project_id = ?", projectID).
		Order("pitch_id ASC").
		First(&pitch).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pitch found for this project"})
		return nil, false
	}
	return &pitch, true
}

// PortalGetProject returns the client's view: project, working pitch, current
// snapshot, and milestone schedule.
func PortalGetProject(c *gin.Context) {
	pitch, ok := portalPitch(c)
	if !ok {
		return
	}

	var snapshot *models.PitchSnapshot
	if pitch.CurrentSnapshotID != nil {
		var s models.PitchSnapshot
		if err := config.DB.First(&s, "snapshot_id = ?", *pitch.CurrentSnapshotID).Error; err == nil {
			snapshot = &s
		}
	}

	milestones, err := milestoneService().ListMilestones(pitch.PitchID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":    pitch.Project,
		"pitch":      pitch,
		"snapshot":   snapshot,
		"milestones": milestones,
	})
}

// PortalApprovePitch is the client accepting the current submission.
func PortalApprovePitch(c *gin.Context) {
	pitch, ok := portalPitch(c)
	if !ok {
		return
	}
	updated, err := workflowService().ClientApprovePitch(pitch.PitchID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": updated})
}

type PortalPayMilestoneRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// PortalPayMilestone settles a milestone from the client portal once the
// payment provider confirms the charge.
func PortalPayMilestone(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, ok := portalPitch(c)
	if !ok {
		return
	}
	var req PortalPayMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The token only scopes the project; make sure the milestone is on its
	// working pitch before acting.
	var count int64
	if err := config.DB.Model(&models.PitchMilestone{}).
		Where("milestone_id = ? AND pitch_id = ?", milestoneID, pitch.PitchID).
		Count(&count).Error; err != nil || count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Milestone not found for this project"})
		return
	}

	milestone, err := milestoneService().MarkMilestonePaid(milestoneID, pitch.Project.UserID, req.PaymentReference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": milestone})
}

// PortalRequestRevisions is the client sending the submission back.
func PortalRequestRevisions(c *gin.Context) {
	pitch, ok := portalPitch(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := workflowService().ClientRequestRevisions(pitch.PitchID, req.Feedback)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": updated})
}
