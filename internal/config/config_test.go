//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies business defaults", func(t *testing.T) {
		p := writeConfig(t, "backend:\n  base_url: https://api.example.test\n")
		cfg, err := LoadConfig(p, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.OTP.TTL != 150*time.Second {
			t.Errorf("expected 150s OTP ttl, got %s", cfg.OTP.TTL)
		}
		if cfg.OTP.AuthTTL != 5*time.Minute {
			t.Errorf("expected 5m authorization ttl, got %s", cfg.OTP.AuthTTL)
		}
		if cfg.Payment.GraceDelay != 5*time.Second || cfg.Payment.PollInterval != 10*time.Second {
			t.Errorf("unexpected poll timing: grace=%s interval=%s", cfg.Payment.GraceDelay, cfg.Payment.PollInterval)
		}
		if cfg.Payment.MaxAttempts != 21 || cfg.Payment.Timeout != 210*time.Second {
			t.Errorf("unexpected poll budget: attempts=%d timeout=%s", cfg.Payment.MaxAttempts, cfg.Payment.Timeout)
		}
		if cfg.Payment.RequireOTP == nil || !*cfg.Payment.RequireOTP {
			t.Error("expected require_otp to default to true")
		}
		if len(cfg.Payment.Plans) != 3 {
			t.Errorf("expected default plan catalog, got %d plans", len(cfg.Payment.Plans))
		}
		if cfg.Subscription.RefreshInterval != 5*time.Minute {
			t.Errorf("expected 5m refresh interval, got %s", cfg.Subscription.RefreshInterval)
		}
		if cfg.Backend.Routes.TransactionStatus != "/api/paychangu/transaction/{id}" {
			t.Errorf("unexpected status route %q", cfg.Backend.Routes.TransactionStatus)
		}
	})

	t.Run("yaml durations and env overrides", func(t *testing.T) {
		p := writeConfig(t, `
backend:
  base_url: https://api.example.test
  token: from-file
payment:
  poll_interval: 3s
  require_otp: false
`)
		t.Setenv("NEXTCHAPTER_TOKEN", "from-env")
		cfg, err := LoadConfig(p, true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Backend.Token != "from-env" {
			t.Errorf("expected env to override token, got %q", cfg.Backend.Token)
		}
		if cfg.Payment.PollInterval != 3*time.Second {
			t.Errorf("expected 3s interval, got %s", cfg.Payment.PollInterval)
		}
		if *cfg.Payment.RequireOTP {
			t.Error("expected require_otp false")
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev runtime flag")
		}
	})

	t.Run("requires backend url", func(t *testing.T) {
		p := writeConfig(t, "log:\n  level: debug\n")
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for missing backend.base_url")
		}
	})

	t.Run("rejects invalid plans", func(t *testing.T) {
		p := writeConfig(t, `
backend:
  base_url: https://api.example.test
payment:
  plans:
    - id: daily
      name: Daily
      tier: free
      duration_days: 1
      amount: 2500
      currency: MWK
`)
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for a plan granting the free tier")
		}
	})
}
