package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("COMMERCE_BASE_URL", "https://backend.example")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("unexpected app env %q", cfg.AppEnv)
	}
	if cfg.DefaultCurrency != "EUR" {
		t.Fatalf("unexpected default currency %q", cfg.DefaultCurrency)
	}
	if len(cfg.Currencies) != 3 {
		t.Fatalf("unexpected currencies %v", cfg.Currencies)
	}
	if cfg.ConfirmationPath != "confirmation" {
		t.Fatalf("unexpected confirmation path %q", cfg.ConfirmationPath)
	}
	if cfg.OutboundTimeout != 10*time.Second {
		t.Fatalf("unexpected outbound timeout %v", cfg.OutboundTimeout)
	}
	if cfg.AttemptTTL != 15*time.Minute {
		t.Fatalf("unexpected attempt ttl %v", cfg.AttemptTTL)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr())
	}
}

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("COMMERCE_BASE_URL", "https://backend.example")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without REDIS_URL")
	}
}

func TestLoadRequiresCommerceURL(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("COMMERCE_BASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without COMMERCE_BASE_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WALLET_CURRENCIES", "EUR, CHF")
	t.Setenv("BREAKER_FAILURE_RATE", "0.25")
	t.Setenv("RATE_LIMIT_MAX", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr())
	}
	if len(cfg.Currencies) != 2 || cfg.Currencies[1] != "CHF" {
		t.Fatalf("unexpected currencies %v", cfg.Currencies)
	}
	if cfg.BreakerFailureRate != 0.25 {
		t.Fatalf("unexpected failure rate %v", cfg.BreakerFailureRate)
	}
	if cfg.RateLimitMax != 5 {
		t.Fatalf("unexpected rate limit %d", cfg.RateLimitMax)
	}
}
