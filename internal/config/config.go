package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	HTTPAddr    string
	StoreDriver string
	DatabaseURL string
	RedisURL    string

	AsynqConcurrency int
	AsynqQueues      string

	IdentitySecret string

	FCMProjectID       string
	FCMCredentialsFile string

	PushEndpoint string
	PushAPIKey   string

	BlobDir     string
	BlobBaseURL string

	PresenceTTL time.Duration

	LogLevel  string
	LogFormat string
}

// UsesFCM reports whether push goes straight to Firebase Cloud Messaging.
func (c *Config) UsesFCM() bool { return c.FCMProjectID != "" || c.FCMCredentialsFile != "" }

// Load reads configuration from environment variables. Callers load .env first.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DB_URL")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		AsynqQueues:        strings.TrimSpace(os.Getenv("ASYNQ_QUEUES")),
		FCMProjectID:       strings.TrimSpace(os.Getenv("FCM_PROJECT_ID")),
		FCMCredentialsFile: strings.TrimSpace(os.Getenv("FCM_CREDENTIALS_FILE")),
		PushEndpoint:       strings.TrimSpace(os.Getenv("PUSH_ENDPOINT")),
		PushAPIKey:         os.Getenv("PUSH_API_KEY"),
		BlobDir:            getEnv("BLOB_DIR", "./data/blobs"),
		BlobBaseURL:        strings.TrimRight(getEnv("BLOB_BASE_URL", "http://localhost:8080/blobs"), "/"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DB_URL environment variable is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	cfg.IdentitySecret = os.Getenv("IDENTITY_JWT_SECRET")
	if cfg.IdentitySecret == "" {
		return nil, fmt.Errorf("IDENTITY_JWT_SECRET environment variable is required")
	}

	cfg.AsynqConcurrency = 10
	if v := strings.TrimSpace(os.Getenv("ASYNQ_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ASYNQ_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.AsynqConcurrency = n
	}

	cfg.PresenceTTL = 2 * time.Minute
	if v := strings.TrimSpace(os.Getenv("PRESENCE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("PRESENCE_TTL must be a positive duration, got %q", v)
		}
		cfg.PresenceTTL = d
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// UsesRedis reports whether cache, queue and pub/sub run on Redis rather than in-process.
func (c *Config) UsesRedis() bool { return c.RedisURL != "" }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}
