// Package config reads rollcall settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/rollcall/go/internal/dbconfig"
	"github.com/mcdev12/rollcall/go/internal/remote"
	"github.com/mcdev12/rollcall/go/internal/wheel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Remote drivers
const (
	DriverNATS     = "nats"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Remote holds the options of the shared realtime store. Unset options keep
// a "your-*" placeholder so a missing value is easy to spot.
type Remote struct {
	APIKey            string
	AuthDomain        string
	DatabaseURL       string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
}

var placeholders = map[string]string{
	"REMOTE_API_KEY":             "your-api-key",
	"REMOTE_AUTH_DOMAIN":         "your-auth-domain",
	"REMOTE_DATABASE_URL":        "your-database-url",
	"REMOTE_PROJECT_ID":          "your-project-id",
	"REMOTE_STORAGE_BUCKET":      "your-storage-bucket",
	"REMOTE_MESSAGING_SENDER_ID": "your-messaging-sender-id",
	"REMOTE_APP_ID":              "your-app-id",
}

// IsPlaceholder reports whether v is empty or a "your-*" placeholder
func IsPlaceholder(v string) bool {
	return v == "" || strings.HasPrefix(v, "your-")
}

// Configured reports whether the options needed to reach the store are set
func (r Remote) Configured() bool {
	return !IsPlaceholder(r.DatabaseURL) && !IsPlaceholder(r.ProjectID)
}

// Optional returns v, or "" when v is still a placeholder
func Optional(v string) string {
	if IsPlaceholder(v) {
		return ""
	}
	return v
}

// Config is the rollcall server configuration
type Config struct {
	Port         string
	LogLevel     zerolog.Level
	Driver       string
	Remote       Remote
	SyncDebounce time.Duration
	Wheel        wheel.Config
	SeedFile     string
	Database     dbconfig.Config
}

// Load reads .env if present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables
func FromEnv() (*Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	debounce, err := getEnvAsDuration("SYNC_DEBOUNCE", remote.DefaultDebounce)
	if err != nil {
		return nil, err
	}
	spinDuration, err := getEnvAsDuration("SPIN_DURATION", wheel.DefaultDuration)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,
		Driver:   strings.ToLower(getEnv("REMOTE_DRIVER", DriverNATS)),
		Remote: Remote{
			APIKey:            getRemote("REMOTE_API_KEY"),
			AuthDomain:        getRemote("REMOTE_AUTH_DOMAIN"),
			DatabaseURL:       getRemote("REMOTE_DATABASE_URL"),
			ProjectID:         getRemote("REMOTE_PROJECT_ID"),
			StorageBucket:     getRemote("REMOTE_STORAGE_BUCKET"),
			MessagingSenderID: getRemote("REMOTE_MESSAGING_SENDER_ID"),
			AppID:             getRemote("REMOTE_APP_ID"),
		},
		SyncDebounce: debounce,
		Wheel: wheel.Config{
			Duration: spinDuration,
			MinTurns: getEnvAsInt("SPIN_MIN_TURNS", wheel.DefaultMinTurns),
			MaxTurns: getEnvAsInt("SPIN_MAX_TURNS", wheel.DefaultMaxTurns),
		},
		SeedFile: os.Getenv("SEED_FILE"),
		Database: dbconfig.NewConfigFromEnv(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverNATS, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown REMOTE_DRIVER %q", c.Driver)
	}
	if c.SyncDebounce < 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must not be negative")
	}
	if err := c.Wheel.Validate(); err != nil {
		return fmt.Errorf("invalid wheel settings: %w", err)
	}
	return nil
}

func getRemote(key string) string {
	return getEnv(key, placeholders[key])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-numeric value")
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain milliseconds
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
