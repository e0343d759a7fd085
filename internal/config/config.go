// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Snapshot backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	SnapshotBackend string // "sqlite", "json" or "none"
	DBPath          string
	SnapshotPath    string
	PersistWorkers  int
	RestoreOnStart  bool

	StateTTL             time.Duration
	StateSweepInterval   time.Duration
	SessionSweepInterval time.Duration

	LimitsFile string
	Limits     domain.Limits

	RendererAddr  string // empty = local placeholder renderer
	RenderTimeout time.Duration

	DiscordToken  string
	DiscordPrefix string

	RateLimit RateLimitConfig
}

// RateLimitConfig bounds requests per identity on the HTTP API.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables. Field ranges come
// from LIMITS_FILE when it is set.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		SnapshotBackend:      strings.ToLower(getEnv("SNAPSHOT_BACKEND", BackendSQLite)),
		DBPath:               getEnv("DB_PATH", "./data/cards.db"),
		SnapshotPath:         getEnv("SNAPSHOT_PATH", "./data/card_states.json"),
		PersistWorkers:       getEnvInt("PERSIST_WORKERS", 4),
		RestoreOnStart:       getEnvBool("RESTORE_ON_START", true),
		StateTTL:             time.Duration(getEnvInt("STATE_TTL_HOURS", 24)) * time.Hour,
		StateSweepInterval:   getEnvDuration("STATE_SWEEP_INTERVAL", 5*time.Minute),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Second),
		LimitsFile:           getEnv("LIMITS_FILE", ""),
		Limits:               domain.DefaultLimits(),
		RendererAddr:         getEnv("RENDERER_ADDR", ""),
		RenderTimeout:        getEnvDuration("RENDER_TIMEOUT", 15*time.Second),
		DiscordToken:         getEnv("DISCORD_TOKEN", ""),
		DiscordPrefix:        getEnv("DISCORD_PREFIX", "/pjsk"),
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if cfg.LimitsFile != "" {
		tuning, err := LoadLimits(cfg.LimitsFile)
		if err != nil {
			return nil, fmt.Errorf("load limits: %w", err)
		}
		cfg.Limits = tuning.Limits
		if _, ok := os.LookupEnv("STATE_TTL_HOURS"); !ok && tuning.StateTTL > 0 {
			cfg.StateTTL = tuning.StateTTL
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.SnapshotBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case BackendJSON:
		if c.SnapshotPath == "" {
			return fmt.Errorf("SNAPSHOT_PATH cannot be empty")
		}
	case BackendNone:
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of sqlite, json, none (got %q)", c.SnapshotBackend)
	}
	if c.PersistWorkers <= 0 {
		return fmt.Errorf("PERSIST_WORKERS must be > 0")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("STATE_TTL_HOURS must be > 0")
	}
	if c.StateSweepInterval <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be > 0")
	}
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_TIMEOUT must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
