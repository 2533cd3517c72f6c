package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Checkout  CheckoutConfig
	Processor ProcessorConfig
	RateLimit RateLimitConfig
}

// CheckoutConfig carries checkout-flow policy knobs.
type CheckoutConfig struct {
	Currency         string
	AbandonAfterHrs  int
	SweepIntervalMin int
}

// ProcessorConfig configures the payment processor client.
type ProcessorConfig struct {
	Provider      string
	APIBase       string
	SecretKey     string
	WebhookSecret string
}

// RateLimitConfig configures the redis-backed request limits on
// the public checkout and webhook endpoints.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookRate  float64
	WebhookBurst int
	SaveRate     float64
	SaveBurst    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "checkout"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Checkout: CheckoutConfig{
			Currency:         strings.ToUpper(getenv("CHECKOUT_CURRENCY", "USD")),
			AbandonAfterHrs:  getenvInt("CHECKOUT_ABANDON_AFTER_HOURS", 48),
			SweepIntervalMin: getenvInt("CHECKOUT_SWEEP_INTERVAL_MINUTES", 30),
		},
		Processor: ProcessorConfig{
			Provider:      strings.ToLower(getenv("PROCESSOR_PROVIDER", "stripe")),
			APIBase:       getenv("PROCESSOR_API_BASE", "https://api.stripe.com"),
			SecretKey:     strings.TrimSpace(getenv("PROCESSOR_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("PROCESSOR_WEBHOOK_SECRET", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			WebhookRate:   getenvFloat("RATE_LIMIT_WEBHOOK_RATE", 20),
			WebhookBurst:  getenvInt("RATE_LIMIT_WEBHOOK_BURST", 40),
			SaveRate:      getenvFloat("RATE_LIMIT_SAVE_RATE", 5),
			SaveBurst:     getenvInt("RATE_LIMIT_SAVE_BURST", 10),
		},
	}

	return cfg
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
