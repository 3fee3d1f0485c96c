package main

import (
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/internal/handlers"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/internal/utils"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db          *gorm.DB
	taskQueue   services.TaskQueue
	worker      *services.Worker
	logCleanup  *cron.Cron
	sseHub      *services.SSEHub
	authLimiter *middleware.RateLimiter
	authHandler *handlers.AuthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	// Auto migrate database
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(db, cfg.Log.RetentionDays); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	// Audit logs go through the task queue: Redis when enabled, inline otherwise
	systemLogSvc := services.NewSystemLogService(db)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(systemLogSvc.Record)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(systemLogSvc.Record)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start audit worker")
				worker = nil
			}
		}
	}

	// Start system log cleanup scheduler
	logCleanup, err := services.StartLogCleanupScheduler(db, cfg.Log.CleanupCron)
	if err != nil {
		logger.Warn().Err(err).Str("schedule", cfg.Log.CleanupCron).Msg("System log cleanup disabled")
	}

	// Create the configured superadmin account
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.AuthService().CreateSuperadminIfNotExists(&cfg.Superadmin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create superadmin user")
	}

	return &appServices{
		db:          db,
		taskQueue:   taskQueue,
		worker:      worker,
		logCleanup:  logCleanup,
		sseHub:      services.GetSSEHub(),
		authLimiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		authHandler: authHandler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.logCleanup != nil {
		<-s.logCleanup.Stop().Done()
	}
	if s.authLimiter != nil {
		s.authLimiter.Stop()
	}
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
