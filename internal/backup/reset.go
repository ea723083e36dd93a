package backup

import (
	"context"
	"fmt"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
)

// Reset modes.
const (
	ModeInit    = "init"    // migrate and seed, keeping existing data
	ModeReset   = "reset"   // back up, drop everything, migrate and seed
	ModeRestore = "restore" // back up, drop everything, migrate and restore a file
	ModeBackup  = "backup"  // back up only
)

// Modes lists the reset modes in the order the CLI documents them.
var Modes = []string{ModeInit, ModeReset, ModeRestore, ModeBackup}

// SeedFunc populates a freshly migrated database, typically with the admin
// account.
type SeedFunc func(ctx context.Context, db *gorm.DB) error

type ResetOptions struct {
	Mode string
	// Input is the backup to restore in ModeRestore.
	Input string
	// SkipBackup disables the safety backup taken before destructive modes.
	SkipBackup bool
	Compress   bool
	Seed       SeedFunc
}

type ResetResult struct {
	Mode     string  `json:"mode"`
	Backup   *Result `json:"backup,omitempty"`
	Restored *Result `json:"restored,omitempty"`
}

// Reset runs one of the reset modes while holding the backup lock.
func (s *Service) Reset(ctx context.Context, opts ResetOptions) (*ResetResult, error) {
	switch opts.Mode {
	case ModeInit, ModeReset, ModeRestore, ModeBackup:
	default:
		return nil, fmt.Errorf("unknown reset mode %q (use one of %v)", opts.Mode, Modes)
	}
	if opts.Mode == ModeRestore && opts.Input == "" {
		return nil, fmt.Errorf("mode %s needs a backup file", ModeRestore)
	}

	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(fl)

	res := &ResetResult{Mode: opts.Mode}
	logger.Info().Str("mode", opts.Mode).Msg("[Reset] Starting")

	if opts.Mode == ModeRestore {
		// Fail before anything is dropped.
		if _, err := ReadDump(s.resolveInput(opts.Input)); err != nil {
			return nil, err
		}
	}

	if opts.Mode == ModeBackup || (opts.Mode != ModeInit && !opts.SkipBackup) {
		backup, err := s.backup(ctx, BackupOptions{Compress: opts.Compress})
		if err != nil {
			return nil, fmt.Errorf("safety backup: %w", err)
		}
		res.Backup = backup
	}
	if opts.Mode == ModeBackup {
		return res, nil
	}

	if opts.Mode == ModeReset || opts.Mode == ModeRestore {
		if err := models.DropAll(s.db); err != nil {
			return nil, err
		}
		logger.Info().Msg("[Reset] Dropped all tables")
	}
	if err := models.AutoMigrate(s.db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if opts.Mode == ModeRestore {
		restored, err := s.restore(ctx, opts.Input)
		if err != nil {
			return nil, err
		}
		res.Restored = restored
	} else if opts.Seed != nil {
		if err := opts.Seed(ctx, s.db); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	logger.Info().Str("mode", opts.Mode).Msg("[Reset] Complete")
	return res, nil
}
