package config

import (
	"strings"
	"testing"
)

func setFullEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "7")
	t.Setenv("ADMIN_USERNAME", "boss")
	t.Setenv("APP_ID", "12345")
	t.Setenv("APP_HASH", "deadbeef")
	t.Setenv("DB_PATH", "")
	t.Setenv("ADDR", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestLoadDefaults(t *testing.T) {
	setFullEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminID != 7 {
		t.Errorf("AdminID: want 7, got %d", cfg.AdminID)
	}
	if cfg.AppID != 12345 {
		t.Errorf("AppID: want 12345, got %d", cfg.AppID)
	}
	if cfg.DBPath != "promocast.db" {
		t.Errorf("DBPath default: got %q", cfg.DBPath)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr default: got %q", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default: got %q", cfg.LogLevel)
	}
}

func TestLoadReportsAllMissing(t *testing.T) {
	setFullEnv(t)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("APP_ID", "")
	t.Setenv("APP_HASH", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing vars")
	}
	for _, name := range []string{"BOT_TOKEN", "APP_ID", "APP_HASH"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
}

func TestLoadRejectsNonNumericAdminID(t *testing.T) {
	setFullEnv(t)
	t.Setenv("ADMIN_ID", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric ADMIN_ID")
	}
}
