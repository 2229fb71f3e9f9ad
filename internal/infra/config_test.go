package infra

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_SIGNING_KEY", "0123456789abcdef0123")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.PollInterval != 3*time.Second || cfg.JobTimeout != 10*time.Minute {
		t.Fatalf("poll defaults mismatch: interval=%s timeout=%s", cfg.PollInterval, cfg.JobTimeout)
	}
	if cfg.PollMaxRetries != 5 || cfg.PollRetryBackoff != time.Second {
		t.Fatalf("retry defaults mismatch: retries=%d backoff=%s", cfg.PollMaxRetries, cfg.PollRetryBackoff)
	}
	if cfg.ReconcileSchedule != "@every 1m" {
		t.Fatalf("ReconcileSchedule = %q", cfg.ReconcileSchedule)
	}
	if cfg.DeliveryURLTTL != time.Hour {
		t.Fatalf("DeliveryURLTTL = %s", cfg.DeliveryURLTTL)
	}
	if cfg.StorageDriver != StorageLocal {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigHonorsExplicitStorageBaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/static/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://cdn.example.com/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigSplitsCORSOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:3000 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://app.example.com", "http://localhost:3000"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRequirements(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		ok   bool
	}{
		{"database required in production", map[string]string{"DATABASE_URL": ""}, false},
		{"database optional in development", map[string]string{"DATABASE_URL": "", "APP_ENV": "development"}, true},
		{"jwt secret required", map[string]string{"JWT_SECRET": ""}, false},
		{"signing key required in production", map[string]string{"STORAGE_SIGNING_KEY": ""}, false},
		{"s3 needs a bucket", map[string]string{"STORAGE_DRIVER": "s3", "S3_BUCKET": ""}, false},
		{"s3 with bucket", map[string]string{"STORAGE_DRIVER": "S3", "S3_BUCKET": "media"}, true},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "ftp"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("S3_BUCKET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if tc.ok && err != nil {
				t.Fatalf("LoadConfig returned error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("LoadConfig succeeded, want error")
			}
		})
	}
}

func TestLoadConfigDevelopmentSigningKeyFallback(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_SIGNING_KEY", "")
	t.Setenv("JWT_SECRET", "development-secret-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageSigningKey != "development-secret-key" {
		t.Fatalf("StorageSigningKey = %q", cfg.StorageSigningKey)
	}
}
