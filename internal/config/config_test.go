package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.RateLimit.RequestsPerWindow != 60 {
		t.Errorf("RequestsPerWindow = %d, want 60", cfg.RateLimit.RequestsPerWindow)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("Window = %v, want 1m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.FailPolicy != FailOpen {
		t.Errorf("FailPolicy = %q, want %q", cfg.RateLimit.FailPolicy, FailOpen)
	}
	if cfg.Jobs.RunningGrace != 10*time.Minute {
		t.Errorf("RunningGrace = %v, want 10m", cfg.Jobs.RunningGrace)
	}
	if cfg.Results.Store != "memory" {
		t.Errorf("Results.Store = %q, want memory", cfg.Results.Store)
	}
}

func TestLoad_RejectsUnknownFailPolicy(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway_test")
	t.Setenv("RATE_LIMIT_FAIL_POLICY", "sometimes")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown fail policy")
	}
}

func TestLoad_S3StoreRequiresBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway_test")
	t.Setenv("RESULTS_STORE", "s3")
	t.Setenv("RESULTS_S3_BUCKET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when s3 store has no bucket")
	}
}
