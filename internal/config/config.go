package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Port        int

	// WebhookSecret keys the HMAC signature of outbound webhooks. Never log it.
	WebhookSecret    string
	DefaultCurrency  string
	DefaultEmitAfter time.Duration
	CheckoutBaseURL  string
	SnowflakeNode    int64

	OTLPEndpoint string

	RateLimit RateLimitConfig
}

type RateLimitConfig struct {
	Enabled            bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	InvoiceCreateRate  float64
	InvoiceCreateBurst int
}

const (
	DefaultWebhookSecret   = "dev_secret"
	DefaultCurrency        = "BRL"
	DefaultEmitAfterMillis = 5000
	DefaultCheckoutBaseURL = "https://checkout.local/invoice"
	DefaultPort            = 8080
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewDispatchConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:          getenv("APP_SERVICE", "fakeacquirer"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      getenv("ENVIRONMENT", "development"),
		Port:             getenvInt("PORT", DefaultPort),
		WebhookSecret:    getenv("ACQ_WEBHOOK_SECRET", DefaultWebhookSecret),
		DefaultCurrency:  strings.TrimSpace(getenv("ACQ_DEFAULT_CURRENCY", DefaultCurrency)),
		DefaultEmitAfter: time.Duration(getenvInt64("ACQ_DEFAULT_EMIT_AFTER_MS", DefaultEmitAfterMillis)) * time.Millisecond,
		CheckoutBaseURL:  strings.TrimRight(strings.TrimSpace(getenv("ACQ_CHECKOUT_BASE_URL", DefaultCheckoutBaseURL)), "/"),
		SnowflakeNode:    getenvInt64("ACQ_SNOWFLAKE_NODE", 1),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:      strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:            getenvInt("RATE_LIMIT_REDIS_DB", 0),
			InvoiceCreateRate:  getenvFloat("RATE_LIMIT_INVOICE_CREATE_RATE", 50),
			InvoiceCreateBurst: getenvInt("RATE_LIMIT_INVOICE_CREATE_BURST", 100),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
