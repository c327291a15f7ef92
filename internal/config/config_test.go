package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q", cfg.GinMode)
	}
	if cfg.UpstreamBaseURL != "http://localhost:4000" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	if cfg.DashboardPath != "/manage/dashboard" {
		t.Errorf("DashboardPath = %q", cfg.DashboardPath)
	}
	if cfg.Locale != "vi" {
		t.Errorf("Locale = %q", cfg.Locale)
	}
	if cfg.AttemptTTL != 24*time.Hour {
		t.Errorf("AttemptTTL = %v", cfg.AttemptTTL)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
}

func TestLoad_Normalization(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("UPSTREAM_BASE_URL", "http://backend:4000/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want release", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q, want /api/v2", cfg.APIBasePath)
	}
	if cfg.UpstreamBaseURL != "http://backend:4000" {
		t.Errorf("UpstreamBaseURL = %q, want trailing slash stripped", cfg.UpstreamBaseURL)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string][2]string{
		"bad log level":   {"LOG_LEVEL", "verbose"},
		"zero timeout":    {"READ_TIMEOUT", "0s"},
		"bad sampler":     {"OTEL_TRACES_SAMPLER_ARG", "2.0"},
		"zero burst":      {"RATE_BURST", "0"},
		"bad dashboard":   {"DASHBOARD_PATH", "dashboard"},
		"zero attempt ttl": {"ATTEMPT_TTL", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("splitCSV = %v", got)
	}
	if splitCSV("") != nil {
		t.Fatal("splitCSV(\"\") should be nil")
	}
}
