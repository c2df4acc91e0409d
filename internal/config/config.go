// Package config loads the roulette server configuration from HCL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Table   *TableSettings   `hcl:"table,block"`
	Store   *StoreSettings   `hcl:"store,block"`
	Oracle  *OracleSettings  `hcl:"oracle,block"`
	Keeper  *KeeperSettings  `hcl:"keeper,block"`
	Auth    *AuthSettings    `hcl:"auth,block"`
	Metrics *MetricsSettings `hcl:"metrics,block"`
	Kafka   *KafkaSettings   `hcl:"kafka,block"`
	Redis   *RedisSettings   `hcl:"redis,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// TableSettings seeds InitializeTable when the server starts against an
// empty store.
type TableSettings struct {
	AutoInitialize   bool   `hcl:"auto_initialize,optional"`
	Admin            string `hcl:"admin,optional"`
	MinimumBetAmount uint64 `hcl:"minimum_bet_amount,optional"`
	RoundPeriod      string `hcl:"round_period,optional"`
	ReserveFloor     uint64 `hcl:"reserve_floor,optional"`
}

// StoreSettings selects the ledger backend.
type StoreSettings struct {
	Driver string `hcl:"driver,optional"`
	DSN    string `hcl:"dsn,optional"`
}

type OracleSettings struct {
	Identity string `hcl:"identity,optional"`
	Delay    string `hcl:"delay,optional"`
	Seed     int64  `hcl:"seed,optional"`
}

type KeeperSettings struct {
	Enabled       bool   `hcl:"enabled,optional"`
	Identity      string `hcl:"identity,optional"`
	Interval      string `hcl:"interval,optional"`
	ResubmitAfter string `hcl:"resubmit_after,optional"`
}

// AuthSettings maps bearer tokens to identities. When URL is set tokens are
// checked against that service instead.
type AuthSettings struct {
	Tokens      map[string]string `hcl:"tokens,optional"`
	URL         string            `hcl:"url,optional"`
	AdminSecret string            `hcl:"admin_secret,optional"`
}

type MetricsSettings struct {
	Enabled bool   `hcl:"enabled,optional"`
	Path    string `hcl:"path,optional"`
}

type KafkaSettings struct {
	Brokers []string `hcl:"brokers,optional"`
	Topic   string   `hcl:"topic,optional"`
}

type RedisSettings struct {
	Address  string `hcl:"address,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	Channel  string `hcl:"channel,optional"`
}

// DefaultConfig returns the configuration used when no file exists: an
// in-memory store, a local oracle and the keeper enabled.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Table: &TableSettings{
			AutoInitialize:   true,
			Admin:            "admin",
			MinimumBetAmount: 10,
			RoundPeriod:      "30s",
			ReserveFloor:     1000,
		},
		Store: &StoreSettings{
			Driver: "memory",
		},
		Oracle: &OracleSettings{
			Identity: "oracle",
			Delay:    "2s",
		},
		Keeper: &KeeperSettings{
			Enabled:       true,
			Identity:      "keeper",
			Interval:      "1s",
			ResubmitAfter: "30s",
		},
		Auth: &AuthSettings{},
		Metrics: &MetricsSettings{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Server == nil {
		c.Server = d.Server
	}
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = d.Server.LogLevel
	}

	if c.Table == nil {
		c.Table = d.Table
	}
	if c.Table.Admin == "" {
		c.Table.Admin = d.Table.Admin
	}
	if c.Table.MinimumBetAmount == 0 {
		c.Table.MinimumBetAmount = d.Table.MinimumBetAmount
	}
	if c.Table.RoundPeriod == "" {
		c.Table.RoundPeriod = d.Table.RoundPeriod
	}

	if c.Store == nil {
		c.Store = d.Store
	}
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}

	if c.Oracle == nil {
		c.Oracle = d.Oracle
	}
	if c.Oracle.Identity == "" {
		c.Oracle.Identity = d.Oracle.Identity
	}
	if c.Oracle.Delay == "" {
		c.Oracle.Delay = d.Oracle.Delay
	}

	if c.Keeper == nil {
		c.Keeper = d.Keeper
	}
	if c.Keeper.Identity == "" {
		c.Keeper.Identity = d.Keeper.Identity
	}
	if c.Keeper.Interval == "" {
		c.Keeper.Interval = d.Keeper.Interval
	}
	if c.Keeper.ResubmitAfter == "" {
		c.Keeper.ResubmitAfter = d.Keeper.ResubmitAfter
	}

	if c.Auth == nil {
		c.Auth = d.Auth
	}
	if c.Metrics == nil {
		c.Metrics = d.Metrics
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
	if c.Kafka != nil && c.Kafka.Topic == "" {
		c.Kafka.Topic = "roulette-events"
	}
	if c.Redis != nil && c.Redis.Channel == "" {
		c.Redis.Channel = "roulette:events"
	}
}

// ApplyEnv overrides settings from ROULETTE_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ROULETTE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv("ROULETTE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ROULETTE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("ROULETTE_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("ROULETTE_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := getenv("ROULETTE_ORACLE_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ROULETTE_ORACLE_SEED: %w", err)
		}
		c.Oracle.Seed = seed
	}
	if v := getenv("ROULETTE_KAFKA_BROKERS"); v != "" {
		if c.Kafka == nil {
			c.Kafka = &KafkaSettings{Topic: "roulette-events"}
		}
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("ROULETTE_REDIS_ADDR"); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisSettings{Channel: "roulette:events"}
		}
		c.Redis.Address = v
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store: %s driver needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}

	period, err := c.RoundPeriod()
	if err != nil {
		return err
	}
	if period <= 0 {
		return fmt.Errorf("table: round_period must be positive")
	}
	if c.Table.MinimumBetAmount == 0 {
		return fmt.Errorf("table: minimum_bet_amount must be positive")
	}

	for name, value := range map[string]string{
		"oracle.delay":          c.Oracle.Delay,
		"keeper.interval":       c.Keeper.Interval,
		"keeper.resubmit_after": c.Keeper.ResubmitAfter,
	} {
		if _, err := parseDuration(name, value); err != nil {
			return err
		}
	}

	if c.Oracle.Identity == c.Table.Admin {
		return fmt.Errorf("oracle identity must differ from the table admin")
	}
	for token, identity := range c.Auth.Tokens {
		if token == "" || identity == "" {
			return fmt.Errorf("auth: tokens and identities must be non-empty")
		}
	}
	if c.Kafka != nil && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	if c.Redis != nil && c.Redis.Address == "" {
		return fmt.Errorf("redis: address is required")
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) RoundPeriod() (time.Duration, error) {
	return parseDuration("table.round_period", c.Table.RoundPeriod)
}

func (c *Config) OracleDelay() time.Duration {
	d, _ := parseDuration("oracle.delay", c.Oracle.Delay)
	return d
}

func (c *Config) KeeperInterval() time.Duration {
	d, _ := parseDuration("keeper.interval", c.Keeper.Interval)
	return d
}

func (c *Config) KeeperResubmitAfter() time.Duration {
	d, _ := parseDuration("keeper.resubmit_after", c.Keeper.ResubmitAfter)
	return d
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return d, nil
}
