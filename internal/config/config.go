// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port       string
	DBPath     string
	SessionDir string

	// Telegram MTProto application credentials, shared by all users.
	TelegramAPIID   int
	TelegramAPIHash string

	// Google Calendar is optional; calendar features are disabled when
	// either field is empty.
	GoogleServiceAccountFile string
	GoogleCalendarID         string
	CalendarTimezone         string

	// CodeRequestInterval is the minimum gap between login-code requests
	// for a single user before the local limiter reports a wait.
	CodeRequestInterval time.Duration

	Timeout TimeoutConfig
	Log     LogConfig
}

// TimeoutConfig bounds calls to third-party services so a stuck call cannot
// pin a worker.
type TimeoutConfig struct {
	Connect     time.Duration
	Handshake   time.Duration
	Downstream  time.Duration
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// LogConfig controls the optional rotating file sink.
type LogConfig struct {
	Dir        string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		DBPath:                   getEnv("DB_PATH", "./data/meetwatch.db"),
		SessionDir:               getEnv("SESSION_DIR", "./data/sessions"),
		TelegramAPIID:            getEnvInt("TELEGRAM_API_ID", 0),
		TelegramAPIHash:          getEnv("TELEGRAM_API_HASH", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleCalendarID:         getEnv("GOOGLE_CALENDAR_ID", ""),
		CalendarTimezone:         getEnv("CALENDAR_TIMEZONE", "Asia/Tehran"),
		CodeRequestInterval:      getEnvDuration("CODE_REQUEST_INTERVAL", 30*time.Second),
		Timeout: TimeoutConfig{
			Connect:     getEnvDuration("CONNECT_TIMEOUT", 15*time.Second),
			Handshake:   getEnvDuration("HANDSHAKE_TIMEOUT", 30*time.Second),
			Downstream:  getEnvDuration("DOWNSTREAM_TIMEOUT", 10*time.Second),
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Dir:        getEnv("LOG_DIR", ""),
			Level:      getEnv("LOG_LEVEL", "info"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 10),
		},
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionDir == "" {
		return fmt.Errorf("SESSION_DIR cannot be empty")
	}
	if c.TelegramAPIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID must be set")
	}
	if c.TelegramAPIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH cannot be empty")
	}
	if c.CodeRequestInterval <= 0 {
		return fmt.Errorf("CODE_REQUEST_INTERVAL must be > 0")
	}
	return nil
}

// CalendarEnabled returns true when calendar credentials are configured.
func (c *Config) CalendarEnabled() bool {
	return c.GoogleServiceAccountFile != "" && c.GoogleCalendarID != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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
