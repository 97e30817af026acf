package tasks

import (
	"time"

	"github.com/mrlokans/lending/internal/config"
)

// Config holds configuration for the task queue system.
type Config struct {
	// DBPath is the dedicated SQLite file backlite keeps its queue in.
	DBPath string

	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// MaxRetries is the maximum attempts for a queue-processing task. Default: 3
	MaxRetries int

	// RetryDelay is the backoff between attempts of a failed task. Default: 30s
	RetryDelay time.Duration

	// TaskTimeout bounds a single task execution. Default: 1m
	TaskTimeout time.Duration

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 5m
	ReleaseAfter time.Duration

	// CleanupInterval is how often to clean up completed tasks. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long to keep completed tasks. Default: 24h
	RetentionDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:            config.DefaultTasksDatabasePath,
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        30 * time.Second,
		TaskTimeout:       1 * time.Minute,
		ReleaseAfter:      5 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

// FromAppConfig converts the application task settings, keeping defaults for
// anything left unset.
func FromAppConfig(c config.Tasks) Config {
	cfg := DefaultConfig()
	if c.DBPath != "" {
		cfg.DBPath = c.DBPath
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.RetryDelay > 0 {
		cfg.RetryDelay = c.RetryDelay
	}
	if c.TaskTimeout > 0 {
		cfg.TaskTimeout = c.TaskTimeout
	}
	if c.ReleaseAfter > 0 {
		cfg.ReleaseAfter = c.ReleaseAfter
	}
	if c.CleanupInterval > 0 {
		cfg.CleanupInterval = c.CleanupInterval
	}
	if c.RetentionDuration > 0 {
		cfg.RetentionDuration = c.RetentionDuration
	}
	return cfg
}
