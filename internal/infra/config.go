package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	RedisURL    string

	ModelCatalogPath string

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	PollInterval      time.Duration
	JobTimeout        time.Duration
	PollMaxRetries    int
	PollRetryBackoff  time.Duration
	ReconcileSchedule string
	StalePendingAfter time.Duration

	StorageDriver     string
	StoragePath       string
	StorageBaseURL    string
	StorageSigningKey string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	DeliveryURLTTL    time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	DefaultLocale      string
}

// Development reports whether the service runs in local development mode.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisURL:    os.Getenv("REDIS_URL"),

		ModelCatalogPath: os.Getenv("MODEL_CATALOG_PATH"),

		ProviderBaseURL: strings.TrimRight(os.Getenv("PROVIDER_BASE_URL"), "/"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		ProviderTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)),

		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)),
		JobTimeout:        time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 600)),
		PollMaxRetries:    getEnvInt("POLL_MAX_RETRIES", 5),
		PollRetryBackoff:  time.Millisecond * time.Duration(getEnvInt("POLL_RETRY_BACKOFF_MS", 1000)),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1m"),
		StalePendingAfter: time.Second * time.Duration(getEnvInt("STALE_PENDING_SECONDS", 300)),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageLocal)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		StorageSigningKey: os.Getenv("STORAGE_SIGNING_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		DeliveryURLTTL:    time.Second * time.Duration(getEnvInt("DELIVERY_URL_TTL_SECONDS", 3600)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
	}

	if cfg.DatabaseURL == "" && !cfg.Development() {
		return nil, errors.New("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	switch cfg.StorageDriver {
	case StorageLocal:
		if cfg.StorageSigningKey == "" {
			if !cfg.Development() {
				return nil, errors.New("STORAGE_SIGNING_KEY is required for the local storage driver")
			}
			cfg.StorageSigningKey = cfg.JWTSecret
		}
	case StorageS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required for the s3 storage driver")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
