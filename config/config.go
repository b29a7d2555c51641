// Package config reads server settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/shop-ledger/ledger"
)

// Backend names accepted by LEDGER_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

type Config struct {
	Port             int
	Backend          string
	DBPath           string
	TimeZone         string
	AllowedOrigins   []string
	RolloverSchedule string
	LoginPassword    string
	AdminPassword    string
}

// Load reads an optional .env file, then the environment, with defaults.
// Precedence: explicit env var > .env file > default.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.Port = getInt("PORT", 8080)
	cfg.Backend = strings.ToLower(getEnv("LEDGER_BACKEND", BackendSQLite))
	cfg.DBPath = getEnv("LEDGER_DB", "shop-ledger.db")
	cfg.TimeZone = getEnv("LEDGER_TZ", "")
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGIN", "http://localhost:5173,http://localhost:8080"))
	cfg.RolloverSchedule = getEnv("ROLLOVER_SCHEDULE", "@every 1m")
	cfg.LoginPassword = getEnv("DEFAULT_LOGIN_PASSWORD", "1234")
	cfg.AdminPassword = getEnv("DEFAULT_ADMIN_PASSWORD", "admin")
	return cfg
}

// Location is the shop's calendar time zone. An unknown zone falls back to
// the machine's local zone.
func (c Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Printf("[Config] WARN: unknown LEDGER_TZ %q, using local time: %v", c.TimeZone, err)
		return time.Local
	}
	return loc
}

// Defaults are the credentials given to a fresh or migrated document.
func (c Config) Defaults() ledger.Defaults {
	return ledger.Defaults{LoginPassword: c.LoginPassword, AdminPassword: c.AdminPassword}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("[Config] invalid integer for %s: %s", key, v)
			return def
		}
		return n
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
