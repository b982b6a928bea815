package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SilenceWindow != 2*time.Second {
		t.Fatalf("SilenceWindow = %v, want 2s", cfg.SilenceWindow)
	}
	if cfg.RecorderTimeSlice != 250*time.Millisecond {
		t.Fatalf("RecorderTimeSlice = %v, want 250ms", cfg.RecorderTimeSlice)
	}
	if len(cfg.ProtectedPrefixes) != 2 || cfg.ProtectedPrefixes[0] != "/dashboard" {
		t.Fatalf("ProtectedPrefixes = %v, want [/dashboard /discussion-room]", cfg.ProtectedPrefixes)
	}
	if len(cfg.AuthTokens) != 0 {
		t.Fatalf("AuthTokens = %v, want empty", cfg.AuthTokens)
	}
}

func TestLoadParsesAuthTokens(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_AUTH_TOKENS", "abc=alice, def=bob")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthTokens["abc"] != "alice" || cfg.AuthTokens["def"] != "bob" {
		t.Fatalf("AuthTokens = %v", cfg.AuthTokens)
	}
}

func TestLoadRejectsMalformedAuthTokens(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_AUTH_TOKENS", "abc")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for token without user")
	}
}

func TestLoadRejectsTimeSliceLongerThanSilenceWindow(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CAPTURE_SILENCE_WINDOW", "200ms")
	t.Setenv("CAPTURE_TIME_SLICE", "250ms")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when time slice exceeds silence window")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_PAGE_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_AUTH_TOKENS",
		"APP_AUTH_PROTECTED_PREFIXES",
		"APP_SIGN_IN_PATH",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LOG_FILE",
		"LOG_MAX_SIZE_MB",
		"DATABASE_URL",
		"ROOM_CACHE_SIZE",
		"CATALOG_FILE",
		"CAPTURE_SILENCE_WINDOW",
		"CAPTURE_TIME_SLICE",
		"CAPTURE_SAMPLE_RATE",
		"CAPTURE_MIC_REQUEST_TIMEOUT",
		"RECORDINGS_DIR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
