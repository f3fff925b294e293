package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := cfg.Reminder
	if r.DefaultMinutes != 1440 {
		t.Errorf("DefaultMinutes = %d, want 1440", r.DefaultMinutes)
	}
	if r.OverdueGraceMinutes != 0 {
		t.Errorf("OverdueGraceMinutes = %d, want 0", r.OverdueGraceMinutes)
	}
	if r.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", r.PollInterval)
	}
	if r.BatchSize != 50 || r.MaxAttempts != 5 {
		t.Errorf("BatchSize/MaxAttempts = %d/%d, want 50/5", r.BatchSize, r.MaxAttempts)
	}
	if r.BaseBackoff != time.Minute {
		t.Errorf("BaseBackoff = %v, want 1m", r.BaseBackoff)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("DatabaseDriver = %q, want postgres", cfg.DatabaseDriver)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled without SMTP_HOST")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("REMINDER_MINUTES", "30")
	t.Setenv("OVERDUE_GRACE_MINUTES", "15")
	t.Setenv("JOB_POLL_INTERVAL_MS", "5000")
	t.Setenv("JOB_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("SMTP_HOST", "smtp.test")
	t.Setenv("SMTP_FROM", "noreply@test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("DatabaseDriver = %q, want sqlite", cfg.DatabaseDriver)
	}
	if cfg.Reminder.DefaultMinutes != 30 || cfg.Reminder.OverdueGraceMinutes != 15 {
		t.Errorf("minutes = %d/%d", cfg.Reminder.DefaultMinutes, cfg.Reminder.OverdueGraceMinutes)
	}
	if cfg.Reminder.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.Reminder.PollInterval)
	}
	if cfg.Reminder.MaxAttempts != 5 {
		t.Errorf("MaxAttempts fallback = %d, want 5", cfg.Reminder.MaxAttempts)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.SMTP.Enabled() {
		t.Error("SMTP should be enabled")
	}
}

func TestLoadPanicsWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing DATABASE_URL")
		}
	}()
	_, _ = Load()
}
