package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pitchflow-api/middleware"
)

// ListMilestones returns a pitch's payment schedule.
func ListMilestones(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	milestones, err := milestoneService().ListMilestones(pitchID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

type MilestoneRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// AddMilestone appends a manually managed milestone.
func AddMilestone(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req MilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	milestone, err := milestoneService().AddMilestone(pitchID, middleware.CurrentUserID(c),
		req.Name, req.Description, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"milestone": milestone})
}

// UpdateMilestone edits an unpaid milestone.
func UpdateMilestone(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req MilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := milestoneService().UpdateMilestone(milestoneID, middleware.CurrentUserID(c),
		req.Name, req.Description, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone updated"})
}

// DeleteMilestone removes an unpaid milestone.
func DeleteMilestone(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := milestoneService().DeleteMilestone(milestoneID, middleware.CurrentUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone deleted"})
}

// MarkMilestonePaid records a settled milestone payment. A MANUAL_ reference
// marks an off-platform settlement with no commission.
func MarkMilestonePaid(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	milestone, err := milestoneService().MarkMilestonePaid(milestoneID, middleware.CurrentUserID(c), req.PaymentReference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": milestone})
}
