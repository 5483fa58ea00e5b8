package controllers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"pitchflow-api/config"
	"pitchflow-api/services"
)

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Anything unrecognized is a 500 with the detail kept out of the response.
func respondServiceError(c *gin.Context, err error) {
	var (
		notFound   *services.NotFoundError
		validation *services.ValidationError
		unauth     *services.UnauthorizedActionError
		transition *services.InvalidStatusTransitionError
		payment    *services.PaymentStateConflictError
		orphaned   *services.OrphanedReferenceError
	)
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Error()})
	case errors.As(err, &unauth):
		c.JSON(http.StatusForbidden, gin.H{"error": unauth.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case errors.As(err, &payment):
		c.JSON(http.StatusConflict, gin.H{"error": payment.Error()})
	case errors.As(err, &orphaned):
		c.JSON(http.StatusConflict, gin.H{"error": orphaned.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// pathID parses a numeric path parameter; a second return of false means the
// 400 response has already been written.
func pathID(c *gin.Context, name string) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id64), true
}

// Service wiring over the shared DB handle. Controllers stay thin; everything
// stateful lives in the services package.

func notifier() services.Notifier {
	return services.NewDBNotifier(config.DB)
}

func payoutService() *services.PayoutService {
	hold := services.NewPayoutHoldService(config.LoadPayoutHoldConfig())
	return services.NewPayoutService(config.DB, hold)
}

func milestoneService() *services.MilestoneService {
	return services.NewMilestoneService(config.DB, payoutService(), notifier())
}

func fileStore() services.FileStore {
	return services.NewLocalFileStore(os.Getenv("UPLOAD_PATH"))
}

func fileService() *services.PitchFileService {
	return services.NewPitchFileService(config.DB, fileStore())
}

func workflowService() *services.PitchWorkflowService {
	return services.NewPitchWorkflowService(config.DB, notifier(), milestoneService(), payoutService(), fileService(), services.ManualInvoicer{})
}

func judgingService() *services.ContestJudgingService {
	return services.NewContestJudgingService(config.DB, workflowService())
}

func projectService() *services.ProjectService {
	return services.NewProjectService(config.DB, notifier())
}
