package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// connectRetryDelay is the fixed pause between connection attempts.
var connectRetryDelay = 2 * time.Second

// All returns every persisted model in parent-first declaration order.
// Migration, backup and deletion ordering all iterate this list.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Video{},
		&Question{},
		&QuestionGroup{},
		&QuestionGroupQuestion{},
		&Schema{},
		&SchemaQuestionGroup{},
		&Project{},
		&ProjectVideo{},
		&ProjectUserRole{},
		&AnnotatorAnswer{},
		&ReviewerGroundTruth{},
		&AnswerReview{},
		&ProjectVideoQuestionDisplay{},
		&SystemLog{},
		&SchedulerLock{},
	}
}

// Dialector builds the gorm dialector for the configured driver.
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// InitDB opens the database, retrying up to ConnectRetries times, and applies
// the pool limits from cfg.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var db *gorm.DB
	for i := 1; i <= attempts; i++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			err = ping(db)
		}
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", i).Int("max", attempts).Msg("[Database] Connection failed")
		if i < attempts {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// SQLite serialises writers; a single connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.PoolSize > 0 {
			sqlDB.SetMaxIdleConns(cfg.PoolSize)
			sqlDB.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
		}
		if cfg.PoolRecycle > 0 {
			sqlDB.SetConnMaxLifetime(cfg.PoolRecycleDuration())
		}
	}

	logger.Info().Str("driver", cfg.Driver).Msg("[Database] Connected")
	return db, nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}

// DropAll drops every table, children first.
func DropAll(db *gorm.DB) error {
	order, err := DeletionOrder(db)
	if err != nil {
		return err
	}
	for _, table := range order {
		if err := db.Migrator().DropTable(table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// IsSQLite reports whether db talks to SQLite, which has no row locks
// and no sequences.
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
