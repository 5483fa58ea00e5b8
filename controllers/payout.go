package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pitchflow-api/config"
	"pitchflow-api/middleware"
	"pitchflow-api/models"
)

// ListMyPayouts returns the authenticated producer's payouts.
func ListMyPayouts(c *gin.Context) {
	payouts, err := payoutService().ListProducerPayouts(middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// ListAllPayouts returns every payout, optionally filtered with ?status=.
// Admin only.
func ListAllPayouts(c *gin.Context) {
	payouts, err := payoutService().ListPayouts(c.Query("status"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

type BypassHoldRequest struct {
	Reason string `json:"reason"`
}

// BypassPayoutHold releases a scheduled payout before its hold date. Admin
// only.
func BypassPayoutHold(c *gin.Context) {
	payoutID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req BypassHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var admin models.User
	if err := config.DB.First(&admin, "user_id = ?", middleware.CurrentUserID(c)).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	payout, err := payoutService().BypassHold(payoutID, &admin, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout": payout})
}

// CancelPayout withdraws a scheduled payout. Admin only.
func CancelPayout(c *gin.Context) {
	payoutID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req BypassHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := payoutService().CancelPayout(payoutID, req.Reason); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payout cancelled"})
}

// PayoutStatistics returns the admin dashboard aggregates.
func PayoutStatistics(c *gin.Context) {
	stats, err := payoutService().Statistics()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// ProcessDuePayouts releases every payout whose hold has expired. Admin
// trigger for the same sweep the payout-sweep binary runs on a schedule.
func ProcessDuePayouts(c *gin.Context) {
	released, err := payoutService().ProcessDuePayouts(time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}
