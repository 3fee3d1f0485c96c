package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/handlers"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	db := svc.db

	// Health check
	healthHandler := handlers.NewHealthHandler(db, svc.taskQueue, svc.sseHub)
	r.GET("/health", healthHandler.CheckHealth)

	metricsHandler := handlers.NewMetricsHandler(db, svc.taskQueue, svc.sseHub)
	r.GET("/metrics", metricsHandler.Metrics)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", svc.authLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.POST("/logout", svc.authHandler.Logout)
		}

		// SSE Events (EventSource passes the token as a query parameter)
		sseHandler := handlers.NewSSEHandler(svc.sseHub)
		api.GET("/events/timer", middleware.AuthRequiredAllowQuery(), sseHandler.StreamTimerEvents)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Account
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.PUT("/auth/profile", svc.authHandler.UpdateProfile)
			protected.PUT("/auth/password", svc.authHandler.ChangePassword)

			// Timer
			timerHandler := handlers.NewTimerHandler(db, svc.sseHub)
			protected.POST("/timer/start/:task_id", timerHandler.Start)
			protected.POST("/timer/stop", timerHandler.Stop)
			protected.GET("/timer/active", timerHandler.GetActive)

			// Tasks
			taskHandler := handlers.NewTaskHandler(db)
			protected.GET("/tasks", taskHandler.List)
			protected.POST("/tasks", taskHandler.Create)
			protected.POST("/tasks/bulk-delete", taskHandler.BulkDelete)
			protected.GET("/tasks/:id", taskHandler.GetByID)
			protected.PUT("/tasks/:id", taskHandler.Update)
			protected.DELETE("/tasks/:id", taskHandler.Delete)

			// Subtasks
			subtaskHandler := handlers.NewSubtaskHandler(db)
			protected.GET("/tasks/:id/subtasks", subtaskHandler.List)
			protected.POST("/tasks/:id/subtasks", subtaskHandler.Create)
			protected.PUT("/subtasks/:id", subtaskHandler.Update)
			protected.DELETE("/subtasks/:id", subtaskHandler.Delete)

			// Time entries
			timeEntryHandler := handlers.NewTimeEntryHandler(db)
			protected.GET("/tasks/:id/entries", timeEntryHandler.ListByTask)
			protected.POST("/tasks/:id/entries", timeEntryHandler.Create)
			protected.GET("/entries", timeEntryHandler.ListAll)
			protected.DELETE("/entries/:id", timeEntryHandler.Delete)

			// Projects
			projectHandler := handlers.NewProjectHandler(db)
			protected.GET("/projects", projectHandler.List)
			protected.POST("/projects", projectHandler.Create)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.PUT("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)

			// Dashboard
			dashboardHandler := handlers.NewDashboardHandler(db)
			protected.GET("/dashboard/summary", dashboardHandler.GetSummary)
		}

		// Admin routes (admin and superadmin), writes are audited
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog(svc.taskQueue))
		{
			userHandler := handlers.NewUserHandler(db)
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id/role", userHandler.UpdateRole)
			admin.PUT("/users/:id/password", userHandler.ResetPassword)
			admin.DELETE("/users/:id", userHandler.Delete)

			reportHandler := handlers.NewReportHandler(db)
			admin.GET("/admin/time-report", reportHandler.TimeReport)
			admin.GET("/admin/tasks", reportHandler.AllTasks)

			systemLogHandler := handlers.NewSystemLogHandler(db)
			admin.GET("/admin/system-logs", systemLogHandler.List)
			admin.GET("/admin/system-logs/modules", systemLogHandler.GetModules)
			admin.GET("/admin/system-logs/retention", systemLogHandler.GetRetentionDays)
			admin.PUT("/admin/system-logs/retention", systemLogHandler.SetRetentionDays)
			admin.POST("/admin/system-logs/cleanup", systemLogHandler.Cleanup)

			systemConfigHandler := handlers.NewSystemConfigHandler(db)
			admin.GET("/admin/settings", systemConfigHandler.List)
			admin.PUT("/admin/settings/:key", systemConfigHandler.Update)
		}
	}
}
