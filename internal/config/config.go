package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// RetryInterval is how often the scheduler kicks off a retry run.
	RetryInterval time.Duration
	// RunLockTTL bounds how long a crashed run can hold the retry lock.
	RunLockTTL time.Duration

	// BackoffBase and BackoffCap parameterize the retry delay curve.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MailProvider selects the transport: "smtp" or "http".
	MailProvider string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ProviderURL    string
	ProviderAPIKey string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		RetryInterval: getEnvDuration("RETRY_INTERVAL", 5*time.Minute),
		RunLockTTL:    getEnvDuration("RUN_LOCK_TTL", 15*time.Minute),
		BackoffBase:   getEnvDuration("BACKOFF_BASE", time.Second),
		BackoffCap:    getEnvDuration("BACKOFF_CAP", time.Minute),
		MailProvider:  getEnv("MAIL_PROVIDER", "smtp"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@everkeep.example"),

		ProviderURL:    getEnv("PROVIDER_URL", ""),
		ProviderAPIKey: getEnv("PROVIDER_API_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	switch cfg.MailProvider {
	case "smtp":
	case "http":
		if cfg.ProviderURL == "" {
			return nil, fmt.Errorf("PROVIDER_URL is required when MAIL_PROVIDER=http")
		}
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.MailProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
