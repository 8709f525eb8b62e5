package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.UpcomingDays != 7 {
		t.Errorf("UpcomingDays = %d", cfg.UpcomingDays)
	}
	if cfg.TokenCacheSkew != 30*time.Second {
		t.Errorf("TokenCacheSkew = %v", cfg.TokenCacheSkew)
	}
	if cfg.Model.MaxToolRounds != 3 {
		t.Errorf("MaxToolRounds = %d", cfg.Model.MaxToolRounds)
	}
	if cfg.Google.TokenURL == "" || cfg.Google.CalendarURL == "" {
		t.Errorf("google defaults = %+v", cfg.Google)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CANVAS_BASE_URL", "https://canvas.example.edu/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MODEL_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warning normalized", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want unknown coerced to release", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.Canvas.BaseURL != "https://canvas.example.edu" {
		t.Errorf("Canvas.BaseURL = %q, want trailing slash stripped", cfg.Canvas.BaseURL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Model.Timeout != 90*time.Second {
		t.Errorf("Model.Timeout = %v", cfg.Model.Timeout)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"zero upcoming days", "UPCOMING_DAYS", "0"},
		{"zero tool rounds", "MODEL_MAX_TOOL_ROUNDS", "0"},
		{"zero rate burst", "RATE_BURST", "0"},
		{"sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"api", "/api"},
		{"/api/v1/", "/api/v1"},
	}
	for _, tc := range cases {
		if got := normalizeBasePath(tc.in); got != tc.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
