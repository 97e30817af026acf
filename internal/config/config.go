package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Pool
		Lending
		Scan
		Audit
		Tasks
		RabbitMQ
		Log
	}

	HTTP struct {
		Port int32 `validate:"gte=0,lte=65535"`
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int `validate:"gte=0"`
	}
	Database struct {
		Driver   string `validate:"oneof=sqlite postgres"`
		Path     string // SQLite file path
		DSN      string // Postgres connection string
		LogLevel string `validate:"oneof=silent error warn info"`
	}
	Pool struct {
		Size               int           `validate:"gte=1"`
		AcquireTimeout     time.Duration `validate:"gt=0"`
		HealthCheckTimeout time.Duration `validate:"gt=0"`
	}
	Lending struct {
		MaxBorrow        int           `validate:"gte=1"`
		BorrowPeriodDays int           `validate:"gte=1"`
		ReservationTTL   time.Duration `validate:"gt=0"`
	}
	Scan struct {
		Enabled         bool
		OverdueSchedule string // Cron format: "*/15 * * * *" = every 15 minutes
		ExpiredSchedule string // Cron format: "*/5 * * * *" = every 5 minutes
		AuditSchedule   string // Cron format: "0 3 * * *" = daily at 03:00
	}
	Audit struct {
		RetentionDays int `validate:"gte=1"` // Days to keep audit events (default: 90)
	}
	Tasks struct {
		Enabled           bool
		DBPath            string
		Workers           int `validate:"gte=1"`
		MaxRetries        int `validate:"gte=1"`
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	RabbitMQ struct {
		URL      string // Empty disables notifications
		Exchange string
	}
	Log struct {
		Level  string `validate:"oneof=trace debug info warn error"`
		Format string `validate:"oneof=console json"`
	}
)

// BorrowPeriod returns the loan length as a duration.
func (l Lending) BorrowPeriod() time.Duration {
	return time.Duration(l.BorrowPeriodDays) * 24 * time.Hour
}

// loadDotEnv reads a .env file from the working directory when one exists.
// Values already present in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func NewConfig() *Config {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	// Database defaults
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_log_level", "warn")

	// Session pool defaults
	v.SetDefault("pool_size", 10)
	v.SetDefault("pool_acquire_timeout", "2s")
	v.SetDefault("pool_health_check_timeout", "1s")

	// Lending policy defaults
	v.SetDefault("lending_max_borrow", 5)
	v.SetDefault("lending_borrow_period_days", 14)
	v.SetDefault("lending_reservation_ttl", "72h")

	// Background scan defaults
	v.SetDefault("scan_enabled", true)
	v.SetDefault("scan_overdue_schedule", "*/15 * * * *")
	v.SetDefault("scan_expired_schedule", "*/5 * * * *")
	v.SetDefault("audit_cleanup_schedule", "0 3 * * *")
	v.SetDefault("audit_retention_days", 90)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_db_path", DefaultTasksDatabasePath)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "30s")
	v.SetDefault("task_timeout", "1m")
	v.SetDefault("task_release_after", "5m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Notifications
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("rabbitmq_exchange", "library.lending")

	// Logging
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:   v.GetString("DATABASE_DRIVER"),
			Path:     v.GetString("DATABASE_PATH"),
			DSN:      v.GetString("DATABASE_DSN"),
			LogLevel: v.GetString("DATABASE_LOG_LEVEL"),
		},
		Pool: Pool{
			Size:               v.GetInt("POOL_SIZE"),
			AcquireTimeout:     v.GetDuration("POOL_ACQUIRE_TIMEOUT"),
			HealthCheckTimeout: v.GetDuration("POOL_HEALTH_CHECK_TIMEOUT"),
		},
		Lending: Lending{
			MaxBorrow:        v.GetInt("LENDING_MAX_BORROW"),
			BorrowPeriodDays: v.GetInt("LENDING_BORROW_PERIOD_DAYS"),
			ReservationTTL:   v.GetDuration("LENDING_RESERVATION_TTL"),
		},
		Scan: Scan{
			Enabled:         v.GetBool("SCAN_ENABLED"),
			OverdueSchedule: v.GetString("SCAN_OVERDUE_SCHEDULE"),
			ExpiredSchedule: v.GetString("SCAN_EXPIRED_SCHEDULE"),
			AuditSchedule:   v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			DBPath:            v.GetString("TASKS_DB_PATH"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		RabbitMQ: RabbitMQ{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

// Validate checks field constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return errors.New("invalid configuration: DATABASE_DSN is required for the postgres driver")
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return errors.New("invalid configuration: DATABASE_PATH is required for the sqlite driver")
	}
	return nil
}
