package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/labelpizza/backend/internal/backup"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/pkg/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type commandContext struct {
	configFlag  *string
	dbURLName   *string
	backupDir   *string
	force       *bool
	logLevel    *string
	interactive func() bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error
}

func newCommandContext(configFlag, dbURLName, backupDir, logLevel *string, force *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		dbURLName:   dbURLName,
		backupDir:   backupDir,
		force:       force,
		logLevel:    logLevel,
		interactive: isInteractive,
	}
}

// isInteractive reports whether prompts can be answered. Tests replace it.
var isInteractive = stdinIsTerminal

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.Log.Level
		if *c.logLevel != "" {
			level = *c.logLevel
		}
		logger.Init(level)
		if dir := strings.TrimSpace(*c.backupDir); dir != "" {
			cfg.Backup.Dir = dir
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// database opens and migrates the database named by --database-url-name.
// An unset DBURL falls back to the config file; any other unset name is an
// error.
func (c *commandContext) database() (*gorm.DB, error) {
	c.dbOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.dbErr = err
			return
		}
		name := strings.TrimSpace(*c.dbURLName)
		if name == config.EnvDatabaseURL && os.Getenv(name) == "" {
			name = ""
		}
		dbCfg, err := cfg.DatabaseFromEnv(name)
		if err != nil {
			c.dbErr = err
			return
		}
		db, err := models.InitDB(&dbCfg)
		if err != nil {
			c.dbErr = err
			return
		}
		if err := models.AutoMigrate(db); err != nil {
			c.dbErr = fmt.Errorf("migrate: %w", err)
			return
		}
		services.InitSystemLogger(db)
		c.db = db
	})
	return c.db, c.dbErr
}

func (c *commandContext) close() {
	if c.db == nil {
		return
	}
	services.InitSystemLogger(nil)
	if sqlDB, err := c.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (c *commandContext) backups() (*backup.Service, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return backup.NewService(db, c.config.Backup.Dir), nil
}

// confirm asks the operator to type word before a destructive step. --force
// skips the prompt; without a terminal and without --force it refuses.
func (c *commandContext) confirm(cmd *cobra.Command, word, action string) error {
	if *c.force {
		return nil
	}
	if !c.interactive() {
		return fmt.Errorf("refusing to %s without a terminal; pass --force to proceed", action)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "This will %s.\nType %s to continue: ", action, word)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(answer) != word {
		return fmt.Errorf("aborted: confirmation did not match %s", word)
	}
	return nil
}

// audit records an operator action in system_logs.
func audit(action, message string, extra interface{}) {
	services.LogInfo("cli", action, message, nil, "", os.Getenv("USER"), extra)
}
