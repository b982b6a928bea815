package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the coaching room service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	PageInactivityTimeout time.Duration
	MetricsNamespace      string

	AllowAnyOrigin bool

	LogLevel     string
	LogFormat    string
	LogFile      string
	LogMaxSizeMB int

	DatabaseURL   string
	RoomCacheSize int

	CatalogFile string

	// AuthTokens maps session token to user id.
	AuthTokens        map[string]string
	ProtectedPrefixes []string
	SignInPath        string

	SilenceWindow      time.Duration
	RecorderTimeSlice  time.Duration
	RecorderSampleRate int
	MicRequestTimeout  time.Duration
	RecordingsDir      string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "coachroom"),
		AllowAnyOrigin:        false,
		LogLevel:              envOrDefault("LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("LOG_FORMAT", "text"),
		LogFile:               stringsTrimSpace("LOG_FILE"),
		LogMaxSizeMB:          50,
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		RoomCacheSize:         512,
		CatalogFile:           stringsTrimSpace("CATALOG_FILE"),
		ProtectedPrefixes:     splitList(envOrDefault("APP_AUTH_PROTECTED_PREFIXES", "/dashboard,/discussion-room")),
		SignInPath:            envOrDefault("APP_SIGN_IN_PATH", "/handler/sign-in"),
		ShutdownTimeout:       15 * time.Second,
		PageInactivityTimeout: 2 * time.Minute,
		// Silence window and slice size match what the room page was tuned for.
		SilenceWindow:      2000 * time.Millisecond,
		RecorderTimeSlice:  250 * time.Millisecond,
		RecorderSampleRate: 16000,
		MicRequestTimeout:  30 * time.Second,
		RecordingsDir:      stringsTrimSpace("RECORDINGS_DIR"),
	}
	var err error
	cfg.AuthTokens, err = parseAuthTokens(stringsTrimSpace("APP_AUTH_TOKENS"))
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PageInactivityTimeout, err = durationFromEnv("APP_PAGE_INACTIVITY_TIMEOUT", cfg.PageInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceWindow, err = durationFromEnv("CAPTURE_SILENCE_WINDOW", cfg.SilenceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RecorderTimeSlice, err = durationFromEnv("CAPTURE_TIME_SLICE", cfg.RecorderTimeSlice)
	if err != nil {
		return Config{}, err
	}
	cfg.MicRequestTimeout, err = durationFromEnv("CAPTURE_MIC_REQUEST_TIMEOUT", cfg.MicRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecorderSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.RecorderSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.RoomCacheSize, err = intFromEnv("ROOM_CACHE_SIZE", cfg.RoomCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.LogMaxSizeMB, err = intFromEnv("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.PageInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_PAGE_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SilenceWindow <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SILENCE_WINDOW must be positive")
	}
	if cfg.RecorderTimeSlice <= 0 || cfg.RecorderTimeSlice >= cfg.SilenceWindow {
		return Config{}, fmt.Errorf("CAPTURE_TIME_SLICE must be positive and shorter than CAPTURE_SILENCE_WINDOW")
	}
	if cfg.RecorderSampleRate <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.RoomCacheSize <= 0 {
		return Config{}, fmt.Errorf("ROOM_CACHE_SIZE must be positive")
	}
	if !strings.HasPrefix(cfg.SignInPath, "/") {
		return Config{}, fmt.Errorf("APP_SIGN_IN_PATH must start with /")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, strings.TrimRight(part, "/"))
	}
	return out
}

// parseAuthTokens reads "token=user,token2=user2".
func parseAuthTokens(v string) (map[string]string, error) {
	out := make(map[string]string)
	if v == "" {
		return out, nil
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		token = strings.TrimSpace(token)
		user = strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("APP_AUTH_TOKENS parse error: expected token=user, got %q", pair)
		}
		out[token] = user
	}
	return out, nil
}
