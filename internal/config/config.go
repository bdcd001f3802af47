// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as the bot token, database path, logging, job schedules, delivery
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-coffee-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Telegram
	BotToken     string  // BOT_TOKEN (required)
	AdminUserIDs []int64 // ADMIN_USER_IDS, CSV; empty allows anyone (initial setup)

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath       string // SQLite path
	DirectoryURL string // optional community profile directory linked in match DMs

	// Schedules (standard 5-field cron specs)
	MatchCron      string // day 1 of the period
	FollowUpCron   string // day 7, after matches have had a week to happen
	InactivityCron string // day 1, shortly after matching

	// Follow-up / pruning policy
	FollowUpGrace       time.Duration // silence longer than this counts as "no"
	InactivityThreshold int           // consecutive misses before removal

	// Outbound delivery
	DeliveryRPS         float64 // shared limiter tokens per second
	DeliveryBurst       int     // limiter bucket size (>= 1)
	DeliveryMaxAttempts int     // attempts per recipient before transient failure

	// Ops HTTP surface
	OpsAddr  string // listen address, e.g. ":8090"
	OpsToken string // bearer token guarding force triggers; empty disables them

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Telegram
		BotToken:     getenv("BOT_TOKEN", ""),
		AdminUserIDs: splitIDs(getenv("ADMIN_USER_IDS", "")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:       getenv("DB_PATH", "coffee.db"),
		DirectoryURL: getenv("PROFILE_DIRECTORY_URL", ""),

		// Schedules: matching on the 1st at 10:00, follow-up on the 7th,
		// inactivity check half an hour after matching.
		MatchCron:      getenv("MATCH_CRON", "0 10 1 * *"),
		FollowUpCron:   getenv("FOLLOWUP_CRON", "0 10 7 * *"),
		InactivityCron: getenv("INACTIVITY_CRON", "30 10 1 * *"),

		// Policy
		FollowUpGrace:       getdur("FOLLOWUP_GRACE", 7*24*time.Hour),
		InactivityThreshold: getint("INACTIVITY_THRESHOLD", 3),

		// Delivery
		DeliveryRPS:         getfloat("DELIVERY_RPS", 1.0),
		DeliveryBurst:       getint("DELIVERY_BURST", 1),
		DeliveryMaxAttempts: getint("DELIVERY_MAX_ATTEMPTS", 3),

		// Ops
		OpsAddr:  getenv("OPS_ADDR", ":8090"),
		OpsToken: getenv("OPS_TOKEN", ""),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-coffee-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	if strings.TrimSpace(cfg.BotToken) == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.FollowUpGrace <= 0 {
		return cfg, errors.New("FOLLOWUP_GRACE must be > 0")
	}
	if cfg.InactivityThreshold < 1 {
		return cfg, errors.New("INACTIVITY_THRESHOLD must be >= 1")
	}
	if cfg.DeliveryRPS <= 0 {
		return cfg, errors.New("DELIVERY_RPS must be > 0")
	}
	if cfg.DeliveryBurst < 1 {
		return cfg, errors.New("DELIVERY_BURST must be >= 1")
	}
	if cfg.DeliveryMaxAttempts < 1 {
		return cfg, errors.New("DELIVERY_MAX_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(cfg.OpsAddr) == "" {
		return cfg, errors.New("OPS_ADDR must not be empty")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splitIDs parses a CSV of numeric ids, skipping blanks and garbage.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		if id, err := strconv.ParseInt(t, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
