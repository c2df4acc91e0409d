package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/joho/godotenv"
	"github.com/lox/roulette/internal/auth"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/config"
	"github.com/lox/roulette/internal/keeper"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/metrics"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/server"
	"github.com/lox/roulette/internal/table"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs the table server with its oracle, keeper and event sinks.
type ServeCmd struct {
	Config   string `short:"c" default:"roulette.hcl" help:"Path to HCL configuration file"`
	EnvFile  string `default:".env" help:"Environment file loaded before configuration"`
	Port     int    `short:"p" help:"Port to listen on (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Seed     *int64 `help:"Deterministic oracle seed (overrides config)"`
}

func (c *ServeCmd) Run() error {
	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", c.EnvFile, err)
	}

	cfg, err := config.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Seed != nil {
		cfg.Oracle.Seed = *c.Seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Server.LogLevel)
	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	dsn := cfg.Store.DSN
	if cfg.Store.Driver == "sqlite3" {
		dsn = ledger.SQLiteDSN(dsn)
	}
	store, err := ledger.Open(ctx, cfg.Store.Driver, dsn)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	clock := quartz.NewReal()
	local := oracle.NewLocal(oracle.LocalConfig{
		Identity: ledger.Identity(cfg.Oracle.Identity),
		Delay:    cfg.OracleDelay(),
		Seed:     cfg.Oracle.Seed,
		Clock:    clock,
		Logger:   logger,
	})
	defer local.Stop()

	engine := table.NewEngine(store, local.Identity(),
		table.WithClock(clock),
		table.WithLogger(logger),
		table.WithRequester(local),
	)
	local.Bind(engine)

	if cfg.Table.AutoInitialize {
		if err := initializeTable(ctx, engine, cfg, logger); err != nil {
			return err
		}
	}

	reserved, err := reservedIdentities(ctx, engine, cfg)
	if err != nil {
		return err
	}
	opts := []server.Option{
		server.WithValidator(newValidator(cfg.Auth, reserved, logger)),
		server.WithLocalOracle(),
	}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		engine.EventBus().Subscribe(m)
		opts = append(opts, server.WithMetrics(m, cfg.Metrics.Path))
	}
	srv := server.NewServer(engine, logger, opts...)
	srv.Subscribe()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka != nil {
		w := broadcast.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sink := broadcast.NewSink("kafka", broadcast.NewKafkaPublisher(w), 0, logger)
		engine.EventBus().Subscribe(sink)
		g.Go(func() error { return sink.Run(gctx) })
		logger.Info("Publishing events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.Redis != nil {
		rdb, err := broadcast.ConnectRedis(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		sink := broadcast.NewSink("redis", broadcast.NewRedisPublisher(rdb, cfg.Redis.Channel), 0, logger)
		engine.EventBus().Subscribe(sink)
		g.Go(func() error { return sink.Run(gctx) })
		logger.Info("Publishing events to Redis", "address", cfg.Redis.Address, "channel", cfg.Redis.Channel)
	}

	if cfg.Keeper.Enabled {
		k := keeper.New(engine, keeper.Config{
			Identity:      ledger.Identity(cfg.Keeper.Identity),
			Interval:      cfg.KeeperInterval(),
			ResubmitAfter: cfg.KeeperResubmitAfter(),
		}, clock, logger)
		g.Go(func() error { return k.Run(gctx) })
	}

	ln, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GetServerAddress(), err)
	}
	g.Go(func() error { return srv.Serve(gctx, ln) })

	logger.Info("Roulette server running",
		"address", cfg.GetServerAddress(),
		"store", cfg.Store.Driver,
		"oracle", cfg.Oracle.Identity,
		"keeper", cfg.Keeper.Enabled)

	return g.Wait()
}

// initializeTable creates the table from config unless the store already
// holds one.
func initializeTable(ctx context.Context, engine *table.Engine, cfg *config.Config, logger *log.Logger) error {
	period, err := cfg.RoundPeriod()
	if err != nil {
		return err
	}
	t, err := engine.InitializeTable(ctx, ledger.Identity(cfg.Table.Admin), cfg.Table.MinimumBetAmount, period, cfg.Table.ReserveFloor)
	switch {
	case errors.Is(err, table.ErrTableAlreadyInitialized):
		logger.Info("Table already initialized, keeping stored settings")
		return nil
	case err != nil:
		return fmt.Errorf("initialize table: %w", err)
	}
	logger.Info("Table initialized",
		"admin", t.Admin,
		"minimum_bet", t.MinimumBetAmount,
		"round_period", t.RoundPeriod,
		"reserve_floor", t.ReserveFloor)
	return nil
}

// reservedIdentities lists the identities that sign privileged operations:
// the oracle and the table admin, both as configured and as stored.
func reservedIdentities(ctx context.Context, engine *table.Engine, cfg *config.Config) ([]string, error) {
	reserved := []string{string(engine.OracleIdentity()), cfg.Table.Admin}
	t, err := engine.Table(ctx)
	switch {
	case errors.Is(err, table.ErrTableNotInitialized):
	case err != nil:
		return nil, fmt.Errorf("load table: %w", err)
	default:
		reserved = append(reserved, string(t.Admin))
	}
	return reserved, nil
}

func newValidator(cfg *config.AuthSettings, reserved []string, logger *log.Logger) auth.Validator {
	switch {
	case cfg.URL != "":
		logger.Info("Validating tokens against auth service", "url", cfg.URL)
		return auth.NewHTTPValidator(cfg.URL, cfg.AdminSecret)
	case len(cfg.Tokens) > 0:
		logger.Info("Validating tokens against static table", "tokens", len(cfg.Tokens))
		return auth.NewStaticValidator(cfg.Tokens)
	default:
		logger.Warn("No auth configured, tokens are accepted as identities", "reserved", reserved)
		return auth.NewNoopValidator(reserved...)
	}
}
