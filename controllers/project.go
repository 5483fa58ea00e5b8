package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pitchflow-api/config"
	"pitchflow-api/middleware"
	"pitchflow-api/models"
	"pitchflow-api/services"
)

type CreateProjectRequest struct {
	Title            string          `json:"title" binding:"required"`
	Description      string          `json:"description"`
	WorkflowType     string          `json:"workflow_type" binding:"required"`
	Budget           decimal.Decimal `json:"budget"`
	PrizeAmount      decimal.Decimal `json:"prize_amount"`
	ClientEmail      *string         `json:"client_email"`
	ClientName       *string         `json:"client_name"`
	TargetProducerID *uint           `json:"target_producer_id"`
	AutoAllowAccess  bool            `json:"auto_allow_access"`
}

// CreateProject creates a project and, for workflows that need one, its
// working pitch.
func CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.CreateProjectInput{
		Title:            req.Title,
		Description:      req.Description,
		WorkflowType:     req.WorkflowType,
		Budget:           req.Budget,
		PrizeAmount:      req.PrizeAmount,
		ClientEmail:      req.ClientEmail,
		ClientName:       req.ClientName,
		TargetProducerID: req.TargetProducerID,
		AutoAllowAccess:  req.AutoAllowAccess,
	}
	project, pitch, err := projectService().CreateProject(middleware.CurrentUserID(c), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := gin.H{"project": project}
	if pitch != nil {
		resp["pitch"] = pitch
	}
	c.JSON(http.StatusCreated, resp)
}

// GetProject returns a project with its pitches.
func GetProject(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := projectService().GetProject(projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	var pitches []models.Pitch
	if err := config.DB.Where("project_id = ?", projectID).Find(&pitches).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load pitches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "pitches": pitches})
}

// PublishProject opens the project for pitches.
func PublishProject(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := projectService().PublishProject(projectID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// CloseSubmissions ends a contest's entry period.
func CloseSubmissions(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := projectService().CloseSubmissions(projectID, middleware.CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// CancelProject abandons an unfinished project.
func CancelProject(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := projectService().CancelProject(projectID, middleware.CurrentUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project cancelled"})
}

type UpdateBudgetRequest struct {
	PitchID uint            `json:"pitch_id" binding:"required"`
	Budget  decimal.Decimal `json:"budget"`
}

// UpdateBudget changes the project budget and reconciles the milestone
// schedule of the working pitch.
func UpdateBudget(c *gin.Context) {
	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := milestoneService().SyncBudget(req.PitchID, middleware.CurrentUserID(c), req.Budget); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Budget updated"})
}

type UpdateRevisionPolicyRequest struct {
	PitchID                 uint            `json:"pitch_id" binding:"required"`
	IncludedRevisions       int             `json:"included_revisions"`
	AdditionalRevisionPrice decimal.Decimal `json:"additional_revision_price"`
}

// UpdateRevisionPolicy changes the included rounds and the price of extras.
func UpdateRevisionPolicy(c *gin.Context) {
	var req UpdateRevisionPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := milestoneService().UpdateRevisionPolicy(req.PitchID, middleware.CurrentUserID(c),
		req.IncludedRevisions, req.AdditionalRevisionPrice)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Revision policy updated"})
}

// GeneratePortalLink issues a time-limited client portal token for a client
// project. Only the owner can mint one.
func GeneratePortalLink(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := projectService().GetProject(projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !project.IsOwnedBy(middleware.CurrentUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the project owner can generate a portal link"})
		return
	}
	if !project.IsClientManagement() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Portal links are only available on client projects"})
		return
	}

	token, err := middleware.GeneratePortalToken(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate portal token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
