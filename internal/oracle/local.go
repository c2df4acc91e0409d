package oracle

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/randutil"
)

// ErrNotBound is returned when a request arrives before Bind.
var ErrNotBound = errors.New("oracle: no resolver bound")

// LocalConfig configures an in-process oracle.
type LocalConfig struct {
	Identity ledger.Identity
	// Delay between receiving a request and answering it.
	Delay time.Duration
	// Seed makes the oracle's secret, and so every outcome, reproducible.
	// Zero draws a random secret.
	Seed   int64
	Clock  quartz.Clock
	Logger *log.Logger
}

// Local answers requests in-process after a fixed delay. The randomness is
// SHA-256(secret || caller seed || request id), so an observer who does not
// know the secret cannot predict outcomes from the seeds alone.
type Local struct {
	identity ledger.Identity
	delay    time.Duration
	secret   [32]byte
	clock    quartz.Clock
	logger   *log.Logger

	mu        sync.Mutex
	resolver  Resolver
	pending   map[uuid.UUID]*quartz.Timer
	delivered map[uuid.UUID]bool
	wg        sync.WaitGroup
}

// NewLocal creates a local oracle. Call Bind before sending requests.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Local{
		identity:  cfg.Identity,
		delay:     cfg.Delay,
		secret:    randutil.Secret(cfg.Seed),
		clock:     cfg.Clock,
		logger:    cfg.Logger.WithPrefix("oracle"),
		pending:   make(map[uuid.UUID]*quartz.Timer),
		delivered: make(map[uuid.UUID]bool),
	}
}

// Identity is the signer the oracle answers as.
func (o *Local) Identity() ledger.Identity { return o.identity }

// Bind sets the resolver answers are delivered to.
func (o *Local) Bind(r Resolver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolver = r
}

// Randomness returns the entropy the oracle will answer req with.
func (o *Local) Randomness(req Request) Seed {
	h := sha256.New()
	h.Write(o.secret[:])
	h.Write(req.CallerSeed[:])
	h.Write(req.ID[:])
	var out Seed
	copy(out[:], h.Sum(nil))
	return out
}

// RequestRandomness schedules an answer. Requests already scheduled or
// answered are ignored.
func (o *Local) RequestRandomness(_ context.Context, req Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resolver == nil {
		return ErrNotBound
	}
	if req.Resolver != "" && req.Resolver != o.identity {
		o.logger.Warn("Request names another resolver", "round", req.Round, "resolver", req.Resolver)
		return nil
	}
	if o.delivered[req.ID] {
		return nil
	}
	if _, ok := o.pending[req.ID]; ok {
		return nil
	}

	o.logger.Debug("Randomness requested", "round", req.Round, "request_id", req.ID, "delay", o.delay)
	o.wg.Add(1)
	o.pending[req.ID] = o.clock.AfterFunc(o.delay, func() {
		defer o.wg.Done()
		o.deliver(req)
	}, "oracle", "deliver")
	return nil
}

func (o *Local) deliver(req Request) {
	o.mu.Lock()
	resolver := o.resolver
	o.mu.Unlock()

	err := resolver.AdvanceRound(context.Background(), o.identity, req.Round, o.Randomness(req))

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, req.ID)
	if err != nil {
		// Left undelivered so a re-sent request is scheduled again.
		o.logger.Error("Failed to advance round", "round", req.Round, "request_id", req.ID, "error", err)
		return
	}
	o.delivered[req.ID] = true
	o.logger.Info("Round advanced", "round", req.Round, "request_id", req.ID)
}

// Pending reports how many answers are scheduled but not yet delivered.
func (o *Local) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Stop cancels scheduled answers and waits for in-flight deliveries.
func (o *Local) Stop() {
	o.mu.Lock()
	for id, timer := range o.pending {
		if timer.Stop() {
			o.wg.Done()
		}
		delete(o.pending, id)
	}
	o.mu.Unlock()
	o.wg.Wait()
}
