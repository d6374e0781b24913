package config

import (
	"errors"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Sync.MinInterval != 15 || cfg.Sync.MaxInterval != 1440 {
			t.Errorf("unexpected sync bounds %d-%d", cfg.Sync.MinInterval, cfg.Sync.MaxInterval)
		}
		if !cfg.IsProduction() {
			t.Error("expected production by default")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("RATE_LIMIT_RPS", "2.5")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 9090 || !cfg.IsDevelopment() || cfg.RateLimiting.RPS != 2.5 {
			t.Errorf("overrides not applied: %+v", cfg)
		}
	})

	t.Run("rejects malformed numbers", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")

		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects inverted sync bounds", func(t *testing.T) {
		t.Setenv("MIN_SYNC_INTERVAL", "120")
		t.Setenv("MAX_SYNC_INTERVAL", "60")

		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
