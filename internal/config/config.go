package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds gateway configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	StoreName        string
	DefaultCurrency  string
	Currencies       []string
	ConfirmationPath string

	CommerceBaseURL string
	CommerceAPIKey  string

	PayPalBaseURL    string
	PayPalClientID   string
	PayPalSecret     string
	PayPalMerchantID string

	ApplePayScriptURL  string
	GooglePayScriptURL string
	GooglePayEnv       string

	OutboundTimeout    time.Duration
	BreakerMinRequests int
	BreakerFailureRate float64
	BreakerOpenFor     time.Duration

	SessionTTL      time.Duration
	CartTTL         time.Duration
	NotificationTTL time.Duration
	IdempotencyTTL  time.Duration
	AttemptTTL      time.Duration
	ShippingCacheTTL time.Duration

	RateLimitMax    int64
	RateLimitWindow time.Duration

	ConfirmationQueue string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StoreName:        valueOrDefault(k.String("STORE_NAME"), "storefront"),
		DefaultCurrency:  valueOrDefault(k.String("DEFAULT_CURRENCY"), "EUR"),
		Currencies:       splitAndTrim(valueOrDefault(k.String("WALLET_CURRENCIES"), "EUR,USD,GBP")),
		ConfirmationPath: valueOrDefault(k.String("CONFIRMATION_PATH"), "confirmation"),

		CommerceBaseURL: k.String("COMMERCE_BASE_URL"),
		CommerceAPIKey:  k.String("COMMERCE_API_KEY"),

		PayPalBaseURL:    valueOrDefault(k.String("PAYPAL_BASE_URL"), "https://api-m.sandbox.paypal.com"),
		PayPalClientID:   k.String("PAYPAL_CLIENT_ID"),
		PayPalSecret:     k.String("PAYPAL_SECRET"),
		PayPalMerchantID: k.String("PAYPAL_MERCHANT_ID"),

		ApplePayScriptURL:  valueOrDefault(k.String("APPLE_PAY_SCRIPT_URL"), "https://applepay.cdn-apple.com/jsapi/v1/apple-pay-sdk.js"),
		GooglePayScriptURL: valueOrDefault(k.String("GOOGLE_PAY_SCRIPT_URL"), "https://pay.google.com/gp/p/js/pay.js"),
		GooglePayEnv:       valueOrDefault(k.String("GOOGLE_PAY_ENV"), "TEST"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		BreakerMinRequests: intOrDefault(k, "BREAKER_MIN_REQUESTS", 10),
		BreakerFailureRate: floatOrDefault(k, "BREAKER_FAILURE_RATE", 0.5),
		BreakerOpenFor:     parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		SessionTTL:       parseDuration(k.String("SESSION_TTL"), "24h"),
		CartTTL:          parseDuration(k.String("CART_TTL"), "168h"),
		NotificationTTL:  parseDuration(k.String("NOTIFICATION_TTL"), "1h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		AttemptTTL:       parseDuration(k.String("ATTEMPT_TTL"), "15m"),
		ShippingCacheTTL: parseDuration(k.String("SHIPPING_CACHE_TTL"), "5m"),

		RateLimitMax:    int64(intOrDefault(k, "RATE_LIMIT_MAX", 30)),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),

		ConfirmationQueue: valueOrDefault(k.String("CONFIRMATION_QUEUE"), "default"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CommerceBaseURL == "" {
		return nil, errors.New("COMMERCE_BASE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func floatOrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
