// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default except secrets, which
// fail closed when absent.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr     string
	LogLevel string

	// Webhook authentication. An empty secret means signature verification
	// rejects every payload (fail closed).
	WebhookSecret string

	// Provider is the outbound KYC provider API.
	Provider Provider

	// Verification policy knobs.
	HighValueThresholdCents int64
	InProgressMaxAge        time.Duration
	SweepInterval           time.Duration

	// Internal API authentication.
	JWTSigningKey string
	APIKeyHashes  []string

	PostgresDSN string
	Redis       Redis
	Kafka       Kafka
}

// Provider configures the outbound session-creation API.
type Provider struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	RedirectURL string
	Timeout     time.Duration
}

// Redis configures the optional Redis session store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit trail publisher.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envOr("VERIFY_ADDR", ":8080"),
		LogLevel:      envOr("VERIFY_LOG_LEVEL", "info"),
		WebhookSecret: os.Getenv("VERIFY_WEBHOOK_SECRET"),
		Provider: Provider{
			BaseURL:     envOr("VERIFY_PROVIDER_BASE_URL", "https://verification.didit.me"),
			APIKey:      os.Getenv("VERIFY_PROVIDER_API_KEY"),
			CallbackURL: envOr("VERIFY_CALLBACK_URL", "http://localhost:8080/verification/webhook"),
			RedirectURL: envOr("VERIFY_REDIRECT_URL", "http://localhost:3000/verification/complete"),
			Timeout:     envDuration("VERIFY_PROVIDER_TIMEOUT", 15*time.Second),
		},
		HighValueThresholdCents: envInt64("VERIFY_HIGH_VALUE_THRESHOLD_CENTS", 5_000_000),
		InProgressMaxAge:        envDuration("VERIFY_IN_PROGRESS_MAX_AGE", 7*24*time.Hour),
		SweepInterval:           envDuration("VERIFY_SWEEP_INTERVAL", time.Hour),
		JWTSigningKey:           os.Getenv("VERIFY_JWT_SIGNING_KEY"),
		APIKeyHashes:            envList("VERIFY_API_KEY_HASHES"),
		PostgresDSN:             os.Getenv("VERIFY_POSTGRES_DSN"),
		Redis: Redis{
			URL:          os.Getenv("VERIFY_REDIS_URL"),
			PoolSize:     envInt("VERIFY_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VERIFY_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("VERIFY_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VERIFY_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VERIFY_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("VERIFY_KAFKA_BROKERS"),
			AuditTopic: envOr("VERIFY_KAFKA_AUDIT_TOPIC", "veriflow.audit"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
