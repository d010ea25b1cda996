// Package config loads application configuration from the environment
// (optionally seeded from a .env file) and validates that everything the
// bot cannot run without is actually present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the bot process.
type Config struct {
	BotToken      string // BOT_TOKEN - Telegram Bot API token
	AdminID       int64  // ADMIN_ID - Telegram user id of the admin
	AdminUsername string // ADMIN_USERNAME - admin handle shown in contact prompts
	AppID         int32  // APP_ID - fallback MTProto api_id before per-user credentials exist
	AppHash       string // APP_HASH - fallback MTProto api_hash

	DBPath   string // DB_PATH - sqlite file, default promocast.db
	Addr     string // ADDR - ops HTTP listen address, default :8080
	LogLevel string // LOG_LEVEL - zerolog level name, default info
}

// Load reads .env (if present), then the environment, and validates the
// result. Every missing required variable is reported in one error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AppHash:       os.Getenv("APP_HASH"),
		DBPath:        getenv("DB_PATH", "promocast.db"),
		Addr:          getenv("ADDR", ":8080"),
		LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if cfg.AdminUsername == "" {
		missing = append(missing, "ADMIN_USERNAME")
	}
	if cfg.AppHash == "" {
		missing = append(missing, "APP_HASH")
	}

	if raw := os.Getenv("ADMIN_ID"); raw == "" {
		missing = append(missing, "ADMIN_ID")
	} else {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("config: ADMIN_ID must be an integer, got %q", raw)
		}
		cfg.AdminID = id
	}

	if raw := os.Getenv("APP_ID"); raw == "" {
		missing = append(missing, "APP_ID")
	} else {
		id, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("config: APP_ID must be an integer, got %q", raw)
		}
		cfg.AppID = int32(id)
	}

	if len(missing) > 0 {
		return cfg, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
