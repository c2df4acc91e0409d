// Package keeper cranks the table forward: it spins rounds whose betting
// window has closed and re-sends randomness requests the oracle has not
// answered in time.
package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/randutil"
	"github.com/lox/roulette/internal/table"
)

// Engine is the part of table.Engine the keeper drives.
type Engine interface {
	ActiveRound(ctx context.Context) (*table.Table, *table.Round, error)
	SpinRound(ctx context.Context, caller ledger.Identity, seed oracle.Seed) (oracle.Request, error)
	PendingRequest(ctx context.Context, round uint64) (*table.SpinRequest, error)
	ResendRequest(ctx context.Context, round uint64) error
}

// Config controls how often the keeper looks at the table.
type Config struct {
	Identity      ledger.Identity
	Interval      time.Duration
	ResubmitAfter time.Duration
}

// Keeper periodically checks the active round and moves it along.
type Keeper struct {
	engine Engine
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger

	lastSent map[uint64]time.Time
}

// New creates a keeper. Run starts it.
func New(engine Engine, cfg Config, clock quartz.Clock, logger *log.Logger) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ResubmitAfter <= 0 {
		cfg.ResubmitAfter = 30 * time.Second
	}
	return &Keeper{
		engine:   engine,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.WithPrefix("keeper"),
		lastSent: make(map[uint64]time.Time),
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and never stop
// the loop.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := k.clock.NewTicker(k.cfg.Interval, "keeper", "tick")
	defer ticker.Stop()

	k.logger.Info("Keeper started", "interval", k.cfg.Interval, "resubmit_after", k.cfg.ResubmitAfter)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Keeper stopped")
			return nil
		case <-ticker.C:
			if err := k.Tick(ctx); err != nil {
				k.logger.Error("Keeper tick failed", "error", err)
			}
		}
	}
}

// Tick performs one check of the active round.
func (k *Keeper) Tick(ctx context.Context) error {
	t, round, err := k.engine.ActiveRound(ctx)
	if errors.Is(err, table.ErrTableNotInitialized) {
		k.logger.Debug("Table not initialized yet")
		return nil
	}
	if err != nil {
		return err
	}

	now := k.clock.Now()
	switch round.Phase() {
	case table.PhaseOpen:
		if now.Before(t.NextRoundDeadline) {
			return nil
		}
		req, err := k.engine.SpinRound(ctx, k.cfg.Identity, randutil.Seed32(round.RoundNumber))
		if errors.Is(err, table.ErrRoundAlreadySpun) || errors.Is(err, table.ErrRoundNotReadyToSpin) {
			// Someone else got there first.
			return nil
		}
		if req.Round != 0 {
			k.lastSent[req.Round] = now
		}
		return err

	case table.PhaseSpun:
		return k.resend(ctx, round.RoundNumber, now)
	}
	return nil
}

func (k *Keeper) resend(ctx context.Context, n uint64, now time.Time) error {
	req, err := k.engine.PendingRequest(ctx, n)
	if err != nil {
		return err
	}
	if req.Consumed {
		return nil
	}

	last := req.RequestedAt
	if sent, ok := k.lastSent[n]; ok && sent.After(last) {
		last = sent
	}
	if now.Sub(last) < k.cfg.ResubmitAfter {
		return nil
	}

	k.lastSent[n] = now
	for round := range k.lastSent {
		if round < n {
			delete(k.lastSent, round)
		}
	}
	return k.engine.ResendRequest(ctx, n)
}
