package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/middleware"
	"github.com/labelpizza/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(ctx context.Context, r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins...))

	// Event streams stay open, so only the regular routes get a deadline.
	timeout := middleware.RequestTimeout(svc.cfg.Server.RequestTimeoutDuration())

	r.GET("/health", svc.healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		// Auth routes (public)
		login := []gin.HandlerFunc{timeout}
		if svc.cfg.Server.LoginRateLimit > 0 {
			limiter := middleware.NewRateLimiter(ctx, svc.cfg.Server.LoginRateLimit, svc.cfg.Server.LoginBurst)
			login = append(login, limiter.Middleware())
		}
		login = append(login, svc.authHandler.Login)
		api.POST("/auth/login", login...)

		// SSE Events (public route with internal token validation)
		api.GET("/events/imports", svc.sseHandler.StreamImportEvents)

		protected := api.Group("")
		protected.Use(timeout, middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Projects
			ph := svc.projectHandler
			protected.GET("/projects", ph.Mine)
			protected.GET("/projects/:id", ph.GetByID)
			protected.GET("/projects/:id/videos", ph.Videos)
			protected.GET("/projects/:id/groups", ph.Groups)
			protected.GET("/projects/:id/members", ph.Members)
			protected.GET("/projects/:id/progress", ph.Progress)
			protected.GET("/projects/:id/overview", ph.Overview)

			// Answers and ground truth
			ah := svc.annotationHandler
			cell := protected.Group("/projects/:id/videos/:video_id/groups/:group_id")
			cell.GET("/answers", ah.GetAnswers)
			cell.GET("/ground-truth", ah.GetGroundTruth)
			cell.GET("/suggestions", ah.Suggestions)
			cell.GET("/feedback", ah.Feedback)
			cell.GET("/display", ah.Display)
			protected.DELETE("/projects/:id/videos/:video_id/questions/:question_id/override", ah.RevertOverride)
			protected.POST("/answers", ah.SubmitAnswers)
			protected.POST("/ground-truth", ah.SubmitGroundTruth)
			protected.POST("/reviews", ah.ReviewAnswer)
		}

		admin := api.Group("/admin")
		admin.Use(timeout, middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			ch := svc.catalogHandler
			admin.GET("/users", ch.ListUsers)
			admin.POST("/users", ch.CreateUser)
			admin.GET("/videos", ch.ListVideos)
			admin.POST("/videos", ch.CreateVideo)
			admin.GET("/questions", ch.ListQuestions)
			admin.POST("/questions", ch.CreateQuestion)
			admin.PUT("/questions/:id", ch.UpdateQuestion)
			admin.GET("/question-groups", ch.ListQuestionGroups)
			admin.POST("/question-groups", ch.CreateQuestionGroup)
			admin.GET("/schemas", ch.ListSchemas)
			admin.POST("/schemas", ch.CreateSchema)
			admin.POST("/archive", ch.SetArchived)
			admin.PUT("/displays", ch.SetDisplay)
			admin.DELETE("/displays/:id/:video_id/:question_id", ch.RemoveDisplay)

			ph := svc.projectHandler
			admin.GET("/projects", ph.List)
			admin.POST("/projects", ph.Create)
			admin.POST("/projects/:id/videos", ph.AddVideos)
			admin.POST("/projects/:id/roles", ph.AssignRole)
			admin.DELETE("/projects/:id/roles/:user_id/:role", ph.RemoveRole)

			dh := svc.dataHandler
			admin.POST("/export", dh.Export)
			admin.POST("/import/annotations", dh.ImportAnnotations)
			admin.POST("/import/reviews", dh.ImportReviews)
			admin.POST("/cascade/plan", dh.CascadePlan)
			admin.POST("/cascade/delete", dh.Cascade)

			admin.GET("/backups", svc.backupHandler.List)
			admin.POST("/backups", svc.backupHandler.Create)

			admin.GET("/system-logs", svc.systemLogHandler.List)
			admin.GET("/system-logs/modules", svc.systemLogHandler.GetModules)
			admin.POST("/system-logs/cleanup", svc.systemLogHandler.Cleanup)
		}
	}
}
