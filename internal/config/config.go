package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables understood by Load.
const (
	EnvDatabaseURL     = "DBURL"
	EnvTestDatabaseURL = "TEST_DBURL"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis"`
	Backup   BackupConfig   `yaml:"backup"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	Mode           string `yaml:"mode"`            // debug, release, test
	RequestTimeout int    `yaml:"request_timeout"` // seconds, 0 disables
	// CORSOrigins lists allowed front-end origins; empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`
	// LoginRateLimit is the per-IP login attempts per second; 0 disables.
	LoginRateLimit float64 `yaml:"login_rate_limit"`
	LoginBurst     int     `yaml:"login_burst"`
}

// DatabaseConfig mirrors the pool knobs of the hosted Postgres deployment:
// at most PoolSize idle and PoolSize+MaxOverflow open connections.
type DatabaseConfig struct {
	Driver         string `yaml:"driver"` // sqlite, mysql, postgres
	DSN            string `yaml:"dsn"`
	PoolSize       int    `yaml:"pool_size"`
	MaxOverflow    int    `yaml:"max_overflow"`
	PoolTimeout    int    `yaml:"pool_timeout"` // seconds to wait for a connection
	PoolRecycle    int    `yaml:"pool_recycle"` // seconds before a connection is recycled
	ConnectRetries int    `yaml:"connect_retries"`
	LogLevel       string `yaml:"log_level"` // silent, error, warn, info
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// AdminConfig seeds the first admin account on an empty database.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// RedisConfig for optional async import queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BackupConfig struct {
	Dir      string `yaml:"dir"`
	Schedule string `yaml:"schedule"` // cron expression, empty disables scheduled backups
	Keep     int    `yaml:"keep"`     // number of scheduled backups to retain
	Compress bool   `yaml:"compress"`
}

type CacheConfig struct {
	ProgressTTL int `yaml:"progress_ttl"` // seconds
}

type LogConfig struct {
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retention_days"` // system log retention, 0 keeps everything
}

// Load reads the YAML config at configPath (default config.yaml), falling back
// to defaults when the file does not exist, then applies environment overrides.
// A .env file in the working directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			Mode:           "debug",
			RequestTimeout: 30,
			LoginRateLimit: 1,
			LoginBurst:     5,
		},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "labelpizza.db",
			PoolSize:       5,
			MaxOverflow:    10,
			PoolTimeout:    30,
			PoolRecycle:    1800,
			ConnectRetries: 3,
			LogLevel:       "warn",
		},
		JWT: JWTConfig{
			Secret:     "labelpizza-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Admin: AdminConfig{
			Username: "admin",
			Email:    "admin@labelpizza.local",
			Password: "admin123",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Backup: BackupConfig{
			Dir:  "backups",
			Keep: 7,
		},
		Cache: CacheConfig{
			ProgressTTL: 60,
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 30,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if url := os.Getenv(EnvDatabaseURL); url != "" {
		c.Database.ApplyURL(url)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		c.Admin.Password = password
	}
	if dir := os.Getenv("BACKUP_DIR"); dir != "" {
		c.Backup.Dir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// ApplyURL sets driver and DSN from a database URL. The driver is inferred
// from the scheme; anything without a known scheme is treated as a SQLite path.
func (d *DatabaseConfig) ApplyURL(url string) {
	driver, dsn := ParseDatabaseURL(url)
	d.Driver = driver
	d.DSN = dsn
}

// ParseDatabaseURL maps a connection URL onto a gorm driver name and DSN.
//
//	postgres://u:p@host/db      -> postgres, unchanged
//	postgresql+psycopg2://...   -> postgres, driver suffix stripped
//	mysql://u:p@tcp(host)/db    -> mysql, scheme stripped
//	sqlite:///path/to.db        -> sqlite, path
func ParseDatabaseURL(url string) (driver, dsn string) {
	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return "sqlite", url
	}
	base, _, _ := strings.Cut(scheme, "+")
	switch strings.ToLower(base) {
	case "postgres", "postgresql":
		return "postgres", "postgres://" + rest
	case "mysql":
		return "mysql", rest
	case "sqlite", "sqlite3", "file":
		if rest == "" || rest == "/:memory:" {
			return "sqlite", ":memory:"
		}
		return "sqlite", strings.TrimPrefix(rest, "/")
	default:
		return base, url
	}
}

// DatabaseFromEnv returns a copy of the database config pointed at the URL
// stored in the named environment variable. The CLI uses this for
// --database-url-name.
func (c *Config) DatabaseFromEnv(name string) (DatabaseConfig, error) {
	db := c.Database
	if name == "" {
		return db, nil
	}
	url := os.Getenv(name)
	if url == "" {
		return db, fmt.Errorf("environment variable %s is not set", name)
	}
	db.ApplyURL(url)
	return db, nil
}

func (d DatabaseConfig) PoolTimeoutDuration() time.Duration {
	return time.Duration(d.PoolTimeout) * time.Second
}

func (d DatabaseConfig) PoolRecycleDuration() time.Duration {
	return time.Duration(d.PoolRecycle) * time.Second
}

func (c CacheConfig) ProgressTTLDuration() time.Duration {
	return time.Duration(c.ProgressTTL) * time.Second
}

func (s ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
