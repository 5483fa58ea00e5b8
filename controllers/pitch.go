package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pitchflow-api/config"
	"pitchflow-api/middleware"
	"pitchflow-api/models"
)

type CreatePitchRequest struct {
	ProjectID uint `json:"project_id" binding:"required"`
}

// CreatePitch opens a pitch against a project.
func CreatePitch(c *gin.Context) {
	var req CreatePitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().CreatePitch(req.ProjectID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pitch": pitch})
}

// GetPitch returns a pitch with its snapshots and event history.
func GetPitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var pitch models.Pitch
	err := config.DB.Preload("Project").Preload("Snapshots").
		First(&pitch, "pitch_id = ?", pitchID).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pitch not found"})
		return
	}

	var events []models.PitchEvent
	if err := config.DB.Where("pitch_id = ?", pitchID).
		Order("created_at ASC").Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch, "events": events})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// ApproveInitialPitch lets the owner accept a pending pitch.
func ApproveInitialPitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().ApproveInitialPitch(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// DenyInitialPitch rejects a pending pitch.
func DenyInitialPitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().DenyInitialPitch(pitchID, middleware.CurrentUserID(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

type SubmitPitchRequest struct {
	ResponseToFeedback string `json:"response_to_feedback"`
}

// SubmitPitchForReview snapshots the current deliverables for review.
func SubmitPitchForReview(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitPitchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().SubmitPitchForReview(pitchID, middleware.CurrentUserID(c), req.ResponseToFeedback)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// CancelPitchSubmission withdraws a pending submission.
func CancelPitchSubmission(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().CancelPitchSubmission(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// Owner review actions name the snapshot they looked at, so a review of a
// superseded submission is rejected instead of silently applying.
type ApprovePitchRequest struct {
	SnapshotID uint `json:"snapshot_id" binding:"required"`
}

type DenyPitchRequest struct {
	SnapshotID uint   `json:"snapshot_id" binding:"required"`
	Reason     string `json:"reason"`
}

type RevisionsRequest struct {
	SnapshotID uint   `json:"snapshot_id" binding:"required"`
	Feedback   string `json:"feedback" binding:"required"`
}

// ApproveSubmittedPitch accepts the reviewed submission.
func ApproveSubmittedPitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ApprovePitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().ApproveSubmittedPitch(pitchID, req.SnapshotID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// DenySubmittedPitch rejects the reviewed submission with a reason.
func DenySubmittedPitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req DenyPitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().DenySubmittedPitch(pitchID, req.SnapshotID, middleware.CurrentUserID(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// RequestPitchRevisions sends the submission back with feedback.
func RequestPitchRevisions(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RevisionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().RequestPitchRevisions(pitchID, req.SnapshotID, middleware.CurrentUserID(c), req.Feedback)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

type CompletePitchRequest struct {
	Feedback string `json:"feedback"`
	Rating   *int   `json:"rating"`
}

// CompletePitch finishes an approved pitch and the project with it.
func CompletePitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CompletePitchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().CompletePitch(pitchID, middleware.CurrentUserID(c), req.Feedback, req.Rating)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// ReturnPitchToReview reverts an approval.
func ReturnPitchToReview(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().ReturnPitchToReview(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// ReturnPitchToApproved reverts a completion.
func ReturnPitchToApproved(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pitch, err := workflowService().ReturnPitchToApproved(pitchID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

type PaymentRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// MarkPitchAsPaid records a completed whole-pitch payment.
func MarkPitchAsPaid(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().MarkPitchAsPaid(pitchID, req.PaymentReference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// MarkPitchPaymentFailed records a failed payment attempt.
func MarkPitchPaymentFailed(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pitch, err := workflowService().MarkPitchPaymentFailed(pitchID, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pitch": pitch})
}

// DeletePitch removes a pitch and repairs any contest placements.
func DeletePitch(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := workflowService().DeletePitch(pitchID, middleware.CurrentUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pitch deleted"})
}

type RegisterFileRequest struct {
	OriginalName string `json:"original_name" binding:"required"`
	StoredPath   string `json:"stored_path" binding:"required"`
	MimeType     string `json:"mime_type"`
	FileSize     int64  `json:"file_size"`
}

// RegisterPitchFile attaches a deliverable to a pitch. Accepts a multipart
// upload (field "file") stored to disk, or a JSON body registering a file
// that already lives in storage.
func RegisterPitchFile(c *gin.Context) {
	pitchID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if upload, err := c.FormFile("file"); err == nil {
		src, err := upload.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read upload"})
			return
		}
		defer src.Close()
		storedPath, size, err := fileStore().Put(upload.Filename, src)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		file, err := fileService().RegisterFile(pitchID, middleware.CurrentUserID(c),
			upload.Filename, storedPath, upload.Header.Get("Content-Type"), size)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"file": file})
		return
	}

	var req RegisterFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, err := fileService().RegisterFile(pitchID, middleware.CurrentUserID(c),
		req.OriginalName, req.StoredPath, req.MimeType, req.FileSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": file})
}

// DeletePitchFile soft-deletes a deliverable.
func DeletePitchFile(c *gin.Context) {
	fileID, ok := pathID(c, "fileId")
	if !ok {
		return
	}
	if err := fileService().DeleteFile(fileID, middleware.CurrentUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
