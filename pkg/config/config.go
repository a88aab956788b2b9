// Package config loads process configuration from environment variables.
// Field tags follow caarlos0/env conventions; Load additionally runs
// go-playground/validator struct validation so a misconfigured deployment
// fails fast at startup (a Config error, per spec §7) rather than failing
// confusingly later.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the umbrella configuration object passed to the Service
// Manager and on to every collaborator it spawns.
type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Adapters  AdaptersConfig
	Shutdown  ShutdownConfig
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost" validate:"required"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"coursesync" validate:"required"`
	Password        string        `env:"DB_PASSWORD"`
	Name            string        `env:"DB_NAME" envDefault:"coursesync" validate:"required"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// HTTPConfig holds the minimal admin HTTP surface settings (A6).
type HTTPConfig struct {
	Port       string `env:"HTTP_PORT" envDefault:"8080"`
	PublicHost string `env:"PUBLIC_ORIGIN" envDefault:"http://localhost:8080"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" envDefault:"pretty" validate:"oneof=pretty json"`
}

// QueueConfig controls the job queue and worker pool (C7/C9).
type QueueConfig struct {
	WorkerCount        int           `env:"QUEUE_WORKER_COUNT" envDefault:"5"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	PollIntervalJitter time.Duration `env:"QUEUE_POLL_JITTER" envDefault:"500ms"`
	JobTimeout         time.Duration `env:"QUEUE_JOB_TIMEOUT" envDefault:"5m"`
	ShutdownGrace      time.Duration `env:"QUEUE_SHUTDOWN_GRACE" envDefault:"5s"`
	DefaultMaxRetries  int           `env:"QUEUE_DEFAULT_MAX_RETRIES" envDefault:"5"`
	SlowJobThreshold   time.Duration `env:"QUEUE_SLOW_JOB_THRESHOLD" envDefault:"30s"`
}

// SchedulerConfig controls the adaptive scheduler (C8).
type SchedulerConfig struct {
	CycleInterval      time.Duration `env:"SCHEDULER_CYCLE_INTERVAL" envDefault:"60s"`
	CycleGrace         time.Duration `env:"SCHEDULER_CYCLE_GRACE" envDefault:"5s"`
	TermSyncInterval   time.Duration `env:"SCHEDULER_TERM_SYNC_INTERVAL" envDefault:"8h"`
	RmpSyncInterval    time.Duration `env:"SCHEDULER_RMP_SYNC_INTERVAL" envDefault:"24h"`
	RefScrapeInterval  time.Duration `env:"SCHEDULER_REF_SCRAPE_INTERVAL" envDefault:"6h"`
	BluebookInterval   time.Duration `env:"SCHEDULER_BLUEBOOK_INTERVAL" envDefault:"720h"` // 30d
	ArchivedInterval   time.Duration `env:"SCHEDULER_ARCHIVED_INTERVAL" envDefault:"48h"`
	EmptyFetchesPause  int           `env:"SCHEDULER_EMPTY_FETCHES_PAUSE" envDefault:"6"`
}

// AdaptersConfig holds source-adapter base URLs and pacing.
type AdaptersConfig struct {
	ERPBaseURL       string        `env:"ERP_BASE_URL"`
	ERPPageSize      int           `env:"ERP_PAGE_SIZE" envDefault:"500"`
	ERPSessionPool   int           `env:"ERP_SESSION_POOL_SIZE" envDefault:"4"`
	RatingBaseURL    string        `env:"RATING_SITE_BASE_URL"`
	RatingSchoolID   string        `env:"RATING_SITE_SCHOOL_ID"`
	EvalBaseURL      string        `env:"EVAL_SITE_BASE_URL"`
	RequestsPerSecond float64      `env:"ADAPTER_RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst   int           `env:"ADAPTER_RATE_LIMIT_BURST" envDefault:"10"`
	HTTPTimeout      time.Duration `env:"ADAPTER_HTTP_TIMEOUT" envDefault:"30s"`
}

// ShutdownConfig controls graceful-shutdown timing. Timeout is aliased from
// RAILWAY_DEPLOYMENT_DRAINING_SECONDS per spec §6, falling back to
// SHUTDOWN_TIMEOUT_SECONDS when unset.
type ShutdownConfig struct {
	TimeoutSeconds int `env:"RAILWAY_DEPLOYMENT_DRAINING_SECONDS" envDefault:"0"`
	FallbackSeconds int `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`
}

// Timeout returns the effective shutdown grace period.
func (s ShutdownConfig) Timeout() time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return time.Duration(s.FallbackSeconds) * time.Second
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if err := v.Struct(cfg.Log); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}

	return cfg, nil
}
