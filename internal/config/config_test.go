package config

import (
	"strings"
	"testing"
	"time"
)

// setBaseEnv provides the minimum viable environment.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123456:test-token")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "123456:test-token" {
		t.Fatalf("BotToken = %q", cfg.BotToken)
	}
	if cfg.DBPath != "coffee.db" || cfg.LogLevel != "info" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.MatchCron != "0 10 1 * *" || cfg.FollowUpCron != "0 10 7 * *" || cfg.InactivityCron != "30 10 1 * *" {
		t.Fatalf("cron defaults: %+v", cfg)
	}
	if cfg.FollowUpGrace != 7*24*time.Hour || cfg.InactivityThreshold != 3 {
		t.Fatalf("policy defaults: %+v", cfg)
	}
	if cfg.DeliveryRPS != 1.0 || cfg.DeliveryBurst != 1 || cfg.DeliveryMaxAttempts != 3 {
		t.Fatalf("delivery defaults: %+v", cfg)
	}
	if cfg.OpsAddr != ":8090" || cfg.OpsToken != "" {
		t.Fatalf("ops defaults: %+v", cfg)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel defaults: %+v", cfg.OTEL)
	}
	if len(cfg.AdminUserIDs) != 0 {
		t.Fatalf("AdminUserIDs = %v, want empty", cfg.AdminUserIDs)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BOT_TOKEN") {
		t.Fatalf("err = %v, want BOT_TOKEN error", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_PATH", "/data/bot.db")
	t.Setenv("LOG_LEVEL", "WARNING") // alias, mixed case
	t.Setenv("ADMIN_USER_IDS", " 123, 456 ,,garbage, 789 ")
	t.Setenv("FOLLOWUP_GRACE", "72h")
	t.Setenv("INACTIVITY_THRESHOLD", "5")
	t.Setenv("DELIVERY_RPS", "2.5")
	t.Setenv("OPS_TOKEN", "sekrit")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/data/bot.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if len(cfg.AdminUserIDs) != 3 || cfg.AdminUserIDs[0] != 123 || cfg.AdminUserIDs[2] != 789 {
		t.Fatalf("AdminUserIDs = %v", cfg.AdminUserIDs)
	}
	if cfg.FollowUpGrace != 72*time.Hour || cfg.InactivityThreshold != 5 || cfg.DeliveryRPS != 2.5 {
		t.Fatalf("overrides: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		key, val, wantSub string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"FOLLOWUP_GRACE", "-1h", "FOLLOWUP_GRACE"},
		{"INACTIVITY_THRESHOLD", "0", "INACTIVITY_THRESHOLD"},
		{"DELIVERY_RPS", "-1", "DELIVERY_RPS"},
		{"DELIVERY_BURST", "0", "DELIVERY_BURST"},
		{"DELIVERY_MAX_ATTEMPTS", "0", "DELIVERY_MAX_ATTEMPTS"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantSub)
			}
		})
	}
}

func TestLoad_BadNumbersFallBackToDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INACTIVITY_THRESHOLD", "three")
	t.Setenv("FOLLOWUP_GRACE", "soon")
	t.Setenv("DELIVERY_RPS", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InactivityThreshold != 3 || cfg.FollowUpGrace != 7*24*time.Hour || cfg.DeliveryRPS != 1.0 {
		t.Fatalf("unparseable values should fall back to defaults: %+v", cfg)
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = MustLoad()
}
