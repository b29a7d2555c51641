package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LEDGER_BACKEND", "LEDGER_DB", "LEDGER_TZ", "ALLOWED_ORIGIN",
		"ROLLOVER_SCHEDULE", "DEFAULT_LOGIN_PASSWORD", "DEFAULT_ADMIN_PASSWORD"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "shop-ledger.db", cfg.DBPath)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, "@every 1m", cfg.RolloverSchedule)
	assert.Equal(t, "1234", cfg.Defaults().LoginPassword)
	assert.Equal(t, "admin", cfg.Defaults().AdminPassword)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_BACKEND", "Pebble")
	t.Setenv("LEDGER_DB", "/var/lib/shop")
	t.Setenv("LEDGER_TZ", "UTC")
	t.Setenv("ALLOWED_ORIGIN", " app://shell , ,http://localhost:3000")
	t.Setenv("DEFAULT_ADMIN_PASSWORD", "s3cret")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendPebble, cfg.Backend, "backend name is case-insensitive")
	assert.Equal(t, "/var/lib/shop", cfg.DBPath)
	assert.Equal(t, []string{"app://shell", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, "s3cret", cfg.Defaults().AdminPassword)
}

func TestLoad_BadPortFallsBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	assert.Equal(t, 8080, Load().Port)
}

func TestLocation_UnknownZone(t *testing.T) {
	cfg := Config{TimeZone: "Mars/Olympus_Mons"}
	assert.Equal(t, time.Local, cfg.Location())
}
