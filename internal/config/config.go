package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	BaseURL   string `validate:"required,url"`
	LogLevel  string `validate:"required"`
	LogFormat string `validate:"required,oneof=json pretty"`

	// HTTPTimeout bounds every API round-trip.
	HTTPTimeout time.Duration `validate:"required"`

	// JournalPath is the local sqlite journal used for rapid-refresh detection
	// and the telemetry spool. Empty disables the journal.
	JournalPath string

	// EventMinInterval is the default per-type telemetry rate limit.
	// RapidRefreshInterval applies to rapid_refresh only and also defines the
	// restart window that counts as a rapid refresh.
	EventMinInterval     time.Duration `validate:"required"`
	RapidRefreshInterval time.Duration `validate:"required"`

	// EventQueueCap bounds the pending telemetry buffer. When full, the oldest
	// event is dropped first.
	EventQueueCap int `validate:"min=1"`
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		BaseURL:              getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "pretty"),
		HTTPTimeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_SECS", 15)) * time.Second,
		JournalPath:          getEnv("JOURNAL_PATH", defaultJournalPath()),
		EventMinInterval:     time.Duration(getEnvInt("EVENT_MIN_INTERVAL_MS", 5000)) * time.Millisecond,
		RapidRefreshInterval: time.Duration(getEnvInt("RAPID_REFRESH_INTERVAL_MS", 15000)) * time.Millisecond,
		EventQueueCap:        getEnvInt("EVENT_QUEUE_CAP", 256),
	}
}

func defaultJournalPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "exstem-client.db"
	}
	return dir + string(os.PathSeparator) + "exstem-client.db"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
