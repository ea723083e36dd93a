// Package testutil opens throwaway databases and seeds the fixtures shared by
// the service, handler and backup tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// UseContainers as the value of TEST_DBURL starts a disposable Postgres.
const UseContainers = "testcontainers"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func init() {
	logger.Init("error")
}

// NewTestDB returns a migrated database private to t. By default this is an
// in-memory SQLite database; TEST_DBURL selects a real server instead, and
// the value "testcontainers" starts one.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := config.DefaultConfig().Database
	cfg.ConnectRetries = 1
	cfg.LogLevel = "silent"

	switch url := os.Getenv(config.EnvTestDatabaseURL); url {
	case "":
		cfg.Driver = "sqlite"
		cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", unsafeName.ReplaceAllString(t.Name(), "_"))
	case UseContainers:
		cfg.Driver = "postgres"
		cfg.DSN = startPostgres(t)
	default:
		cfg.ApplyURL(url)
	}

	db, err := models.InitDB(&cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if cfg.Driver != "sqlite" {
		if err := models.DropAll(db); err != nil {
			t.Fatalf("Failed to reset test database: %v", err)
		}
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if cfg.Driver != "sqlite" {
			_ = models.DropAll(db)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("labelpizza_test"),
		postgres.WithUsername("labelpizza_test"),
		postgres.WithPassword("labelpizza_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return dsn
}
