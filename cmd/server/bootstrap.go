package main

import (
	"context"

	"github.com/labelpizza/backend/internal/backup"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/handlers"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/internal/utils"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db        *gorm.DB
	cfg       *config.Config
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *backup.Scheduler
	cancel    context.CancelFunc

	healthHandler     *handlers.HealthHandler
	authHandler       *handlers.AuthHandler
	projectHandler    *handlers.ProjectHandler
	annotationHandler *handlers.AnnotationHandler
	catalogHandler    *handlers.CatalogHandler
	dataHandler       *handlers.DataHandler
	backupHandler     *handlers.BackupHandler
	systemLogHandler  *handlers.SystemLogHandler
	sseHandler        *handlers.SSEHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) (*appServices, error) {
	utils.SetJWTSecret(cfg.JWT.Secret)

	db, err := models.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	services.InitSystemLogger(db)
	services.StartLogCleanupScheduler(ctx, db, cfg.Log.RetentionDays)

	authService := services.NewAuthService(db, &cfg.JWT)
	if err := authService.CreateAdminIfNotExists(ctx, &cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	cache := services.NewProgressCache(cfg.Cache.ProgressTTLDuration())
	progress := services.NewProgressService(db, cache)
	projects := services.NewProjectService(db, cache)
	display := services.NewDisplayService(db)

	// Imports run on the Redis worker when enabled, inline otherwise.
	processor := services.NewImportProcessor(services.NewImportService(db, cache))
	taskQueue := services.InitTaskQueue(cfg, processor)
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processor)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start import worker")
			}
		}
	}

	backups := backup.NewService(db, cfg.Backup.Dir)
	scheduler := backup.NewScheduler(backups, db, cfg.Backup)
	if err := scheduler.Start(); err != nil {
		cancel()
		return nil, err
	}

	return &appServices{
		db:        db,
		cfg:       cfg,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,
		cancel:    cancel,

		healthHandler:  handlers.NewHealthHandler(db),
		authHandler:    handlers.NewAuthHandler(authService),
		projectHandler: handlers.NewProjectHandler(projects, progress),
		annotationHandler: handlers.NewAnnotationHandler(projects,
			services.NewAnnotatorService(db, cache),
			services.NewGroundTruthService(db, cache),
			services.NewReviewService(db, progress),
			display),
		catalogHandler:   handlers.NewCatalogHandler(services.NewCatalogService(db), display),
		dataHandler:      handlers.NewDataHandler(services.NewExportService(db), services.NewCascadeService(db, cache), taskQueue),
		backupHandler:    handlers.NewBackupHandler(backups, scheduler),
		systemLogHandler: handlers.NewSystemLogHandler(services.NewSystemLogService(db), cfg.Log.RetentionDays),
		sseHandler:       handlers.NewSSEHandler(services.GetImportHub()),
	}, nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.cancel()
	s.scheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
