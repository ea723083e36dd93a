package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	schedulerJob     = "scheduled_backup"
	schedulerScope   = "default"
	schedulerLockTTL = 30 * time.Minute
)

// AcquireLock claims the job lease for holder until ttl elapses.
// An expired lock held by anyone is taken over. It reports whether the lock
// was obtained.
func AcquireLock(ctx context.Context, db *gorm.DB, job, scope, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	acquired := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job = ? AND scope = ? AND expires_at <= ?", job, scope, now).
			Delete(&models.SchedulerLock{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SchedulerLock{
			Job:        job,
			Scope:      scope,
			Holder:     holder,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}

// ReleaseLock drops a lease held by holder.
func ReleaseLock(ctx context.Context, db *gorm.DB, job, scope, holder string) error {
	return db.WithContext(ctx).
		Where("job = ? AND scope = ? AND holder = ?", job, scope, holder).
		Delete(&models.SchedulerLock{}).Error
}

// Scheduler takes backups on a cron schedule and keeps the newest Keep files.
// Several server instances may share one database; the database lock makes
// sure only one of them runs each backup.
type Scheduler struct {
	svc      *Service
	db       *gorm.DB
	cfg      config.BackupConfig
	instance string

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(svc *Service, db *gorm.DB, cfg config.BackupConfig) *Scheduler {
	return &Scheduler{
		svc:      svc,
		db:       db,
		cfg:      cfg,
		instance: uuid.NewString(),
	}
}

// Start registers the cron job. An empty schedule leaves the scheduler idle.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		logger.Info().Msg("[BackupScheduler] No schedule configured, scheduled backups disabled")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Error().Err(err).Msg("[BackupScheduler] Scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.entryID = id
	logger.Info().Str("schedule", s.cfg.Schedule).Int("keep", s.cfg.Keep).Msg("[BackupScheduler] Started")
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	logger.Info().Msg("[BackupScheduler] Stopped")
}

// Next returns the next scheduled run, or the zero time when idle.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunOnce takes one backup and prunes old files. It returns a nil result
// when another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	ok, err := AcquireLock(ctx, s.db, schedulerJob, schedulerScope, s.instance, schedulerLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Info().Msg("[BackupScheduler] Another instance is running the backup, skipping")
		return nil, nil
	}
	defer func() {
		if err := ReleaseLock(context.Background(), s.db, schedulerJob, schedulerScope, s.instance); err != nil {
			logger.Warn().Err(err).Msg("[BackupScheduler] Failed to release lock")
		}
	}()

	result, err := s.svc.Backup(ctx, BackupOptions{Compress: s.cfg.Compress})
	if err != nil {
		return nil, err
	}
	if _, err := s.svc.Prune(s.cfg.Keep); err != nil {
		logger.Warn().Err(err).Msg("[BackupScheduler] Failed to prune backups")
	}
	return result, nil
}
