package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roulette.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:8080", cfg.GetServerAddress())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server {
  port      = 9090
  log_level = "debug"
}

table {
  admin              = "house"
  minimum_bet_amount = 5
  round_period       = "1m"
  reserve_floor      = 2500
}

store {
  driver = "sqlite3"
  dsn    = "roulette.db"
}

oracle {
  seed = 42
}

auth {
  tokens = {
    "s3cret" = "alice"
  }
}

kafka {
  brokers = ["localhost:9092"]
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Address, "defaults fill gaps")
	assert.Equal(t, "house", cfg.Table.Admin)
	assert.Equal(t, uint64(5), cfg.Table.MinimumBetAmount)
	assert.Equal(t, uint64(2500), cfg.Table.ReserveFloor)

	period, err := cfg.RoundPeriod()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, period)

	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, int64(42), cfg.Oracle.Seed)
	assert.Equal(t, "oracle", cfg.Oracle.Identity)
	assert.Equal(t, 2*time.Second, cfg.OracleDelay())
	assert.Equal(t, map[string]string{"s3cret": "alice"}, cfg.Auth.Tokens)
	assert.Equal(t, "roulette-events", cfg.Kafka.Topic)
	assert.Nil(t, cfg.Redis)
	assert.Equal(t, time.Second, cfg.KeeperInterval())
}

func TestLoadConfigRejectsBadHCL(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, `server { port = `))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `server { port = "high" }`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite3" }},
		{"bad period", func(c *Config) { c.Table.RoundPeriod = "soon" }},
		{"zero period", func(c *Config) { c.Table.RoundPeriod = "0s" }},
		{"zero minimum", func(c *Config) { c.Table.MinimumBetAmount = 0 }},
		{"negative delay", func(c *Config) { c.Oracle.Delay = "-1s" }},
		{"oracle is admin", func(c *Config) { c.Oracle.Identity = c.Table.Admin }},
		{"empty token", func(c *Config) { c.Auth.Tokens = map[string]string{"": "alice"} }},
		{"kafka without brokers", func(c *Config) { c.Kafka = &KafkaSettings{Topic: "t"} }},
		{"redis without address", func(c *Config) { c.Redis = &RedisSettings{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ROULETTE_PORT":          "7000",
		"ROULETTE_STORE_DRIVER":  "postgres",
		"ROULETTE_STORE_DSN":     "postgres://localhost/roulette",
		"ROULETTE_ORACLE_SEED":   "9",
		"ROULETTE_KAFKA_BROKERS": "a:9092,b:9092",
		"ROULETTE_REDIS_ADDR":    "localhost:6379",
	}
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int64(9), cfg.Oracle.Seed)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "roulette:events", cfg.Redis.Channel)

	bad := DefaultConfig()
	assert.Error(t, bad.ApplyEnv(func(k string) string {
		if k == "ROULETTE_PORT" {
			return "eighty"
		}
		return ""
	}))
}
