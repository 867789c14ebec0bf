package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
postgres:
  dsn: "host=db user=wallet dbname=ledger"
paystack:
  secret_key: "sk_file"
  webhook_secret: "whsec_file"
currency:
  code: "NGN"
  minor_unit_scale: 100
sweep:
  interval: 30m
  max_pending_age: 48h
`)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk_file", cfg.Paystack.SecretKey)
	assert.Equal(t, int64(100), cfg.Currency.MinorUnitScale)
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.Sweep.Interval))
	assert.Equal(t, 48*time.Hour, time.Duration(cfg.Sweep.MaxPendingAge))
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
postgres:
  dsn: "host=db user=wallet dbname=ledger"
`)

	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("PAYSTACK_WEBHOOK_SECRET", "whsec_env")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Contains(t, cfg.Postgres.DSN, "password=s3cret")
	assert.Equal(t, "whsec_env", cfg.Paystack.WebhookSecret)
	assert.Equal(t, int64(100), cfg.Currency.MinorUnitScale)
	assert.Equal(t, time.Hour, time.Duration(cfg.Sweep.Interval))
	assert.Equal(t, 24*time.Hour, time.Duration(cfg.Sweep.MaxPendingAge))
}
