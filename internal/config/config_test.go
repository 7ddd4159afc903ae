package config_test

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/validator"
)

func TestDefaultsPassValidation(t *testing.T) {
	cfg := config.Load()
	if problems := validator.Check(cfg); problems != nil {
		t.Fatalf("default config must validate, got %v", problems)
	}
	if cfg.EventMinInterval != 5*time.Second {
		t.Errorf("EventMinInterval = %v, want 5s", cfg.EventMinInterval)
	}
	if cfg.RapidRefreshInterval != 15*time.Second {
		t.Errorf("RapidRefreshInterval = %v, want 15s", cfg.RapidRefreshInterval)
	}
	if cfg.EventQueueCap != 256 {
		t.Errorf("EventQueueCap = %d, want 256", cfg.EventQueueCap)
	}
}

func TestInvalidValuesFailValidation(t *testing.T) {
	t.Setenv("BASE_URL", "not a url")
	t.Setenv("LOG_FORMAT", "xml")

	cfg := config.Load()
	problems := validator.Check(cfg)
	if problems == nil {
		t.Fatal("invalid BASE_URL and LOG_FORMAT must be rejected")
	}
	if _, ok := problems["BaseURL"]; !ok {
		t.Errorf("BaseURL problem missing: %v", problems)
	}
	if _, ok := problems["LogFormat"]; !ok {
		t.Errorf("LogFormat problem missing: %v", problems)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EVENT_MIN_INTERVAL_MS", "2000")
	t.Setenv("EVENT_QUEUE_CAP", "32")

	cfg := config.Load()
	if cfg.EventMinInterval != 2*time.Second {
		t.Errorf("EventMinInterval = %v, want 2s", cfg.EventMinInterval)
	}
	if cfg.EventQueueCap != 32 {
		t.Errorf("EventQueueCap = %d, want 32", cfg.EventQueueCap)
	}
}
