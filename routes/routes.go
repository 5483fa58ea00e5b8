package routes

import (
	"pitchflow-api/controllers"
	"pitchflow-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/register", controllers.Register)
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "PitchFlow API is running",
				})
			})
		}

		// Client portal routes (portal token, no account)
		portal := v1.Group("/portal")
		portal.Use(middleware.ClientPortalMiddleware())
		{
			portal.GET("/project", controllers.PortalGetProject)
			portal.POST("/approve", controllers.PortalApprovePitch)
			portal.POST("/request-revisions", controllers.PortalRequestRevisions)
			portal.POST("/milestones/:id/pay", controllers.PortalPayMilestone)
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/profile", controllers.GetProfile)

			// Projects
			projects := protected.Group("/projects")
			{
				projects.POST("", controllers.CreateProject)
				projects.GET("/:id", controllers.GetProject)
				projects.POST("/:id/publish", controllers.PublishProject)
				projects.POST("/:id/close-submissions", controllers.CloseSubmissions)
				projects.POST("/:id/cancel", controllers.CancelProject)
				projects.POST("/:id/portal-link", controllers.GeneratePortalLink)
				projects.PUT("/budget", controllers.UpdateBudget)
				projects.PUT("/revision-policy", controllers.UpdateRevisionPolicy)

				// Contest judging
				projects.GET("/:id/contest-result", controllers.GetContestResult)
				projects.POST("/:id/placements", controllers.SetContestPlacement)
				projects.DELETE("/:id/placements", controllers.ClearContestPlacement)
				projects.POST("/:id/placements/cleanup", controllers.CleanupContestResult)
				projects.POST("/:id/finalize-judging", controllers.FinalizeContestJudging)
				projects.POST("/:id/reopen-judging", middleware.RequireAdmin(), controllers.ReopenContestJudging)
			}

			// Pitches
			pitches := protected.Group("/pitches")
			{
				pitches.POST("", controllers.CreatePitch)
				pitches.GET("/:id", controllers.GetPitch)
				pitches.DELETE("/:id", controllers.DeletePitch)

				pitches.POST("/:id/approve-initial", controllers.ApproveInitialPitch)
				pitches.POST("/:id/deny-initial", controllers.DenyInitialPitch)
				pitches.POST("/:id/submit", controllers.SubmitPitchForReview)
				pitches.POST("/:id/cancel-submission", controllers.CancelPitchSubmission)
				pitches.POST("/:id/approve", controllers.ApproveSubmittedPitch)
				pitches.POST("/:id/deny", controllers.DenySubmittedPitch)
				pitches.POST("/:id/request-revisions", controllers.RequestPitchRevisions)
				pitches.POST("/:id/complete", controllers.CompletePitch)
				pitches.POST("/:id/return-to-review", controllers.ReturnPitchToReview)
				pitches.POST("/:id/return-to-approved", controllers.ReturnPitchToApproved)

				pitches.POST("/:id/select-winner", controllers.SelectContestWinnerHandler)
				pitches.POST("/:id/select-runner-up", controllers.SelectContestRunnerUpHandler)

				pitches.POST("/:id/mark-paid", controllers.MarkPitchAsPaid)
				pitches.POST("/:id/mark-payment-failed", controllers.MarkPitchPaymentFailed)

				pitches.GET("/:id/milestones", controllers.ListMilestones)
				pitches.POST("/:id/milestones", controllers.AddMilestone)

				pitches.POST("/:id/files", controllers.RegisterPitchFile)
				pitches.DELETE("/:id/files/:fileId", controllers.DeletePitchFile)
			}

			// Milestones
			milestones := protected.Group("/milestones")
			{
				milestones.PUT("/:id", controllers.UpdateMilestone)
				milestones.DELETE("/:id", controllers.DeleteMilestone)
				milestones.POST("/:id/mark-paid", controllers.MarkMilestonePaid)
			}

			// Payouts
			payouts := protected.Group("/payouts")
			{
				payouts.GET("/mine", controllers.ListMyPayouts)
				payouts.GET("", middleware.RequireAdmin(), controllers.ListAllPayouts)
				payouts.POST("/:id/bypass-hold", middleware.RequireAdmin(), controllers.BypassPayoutHold)
				payouts.POST("/:id/cancel", middleware.RequireAdmin(), controllers.CancelPayout)
				payouts.GET("/statistics", middleware.RequireAdmin(), controllers.PayoutStatistics)
				payouts.POST("/process-due", middleware.RequireAdmin(), controllers.ProcessDuePayouts)
			}
		}
	}
}
