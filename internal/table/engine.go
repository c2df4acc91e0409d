package table

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
)

// Engine applies table operations to a ledger store. Each operation is one
// Store.Update: it fully applies or leaves the store untouched. Events are
// published only after the update commits, and in commit order: commitMu is
// held from the start of the update until its events are published.
type Engine struct {
	commitMu  sync.Mutex
	store     ledger.Store
	oracleID  ledger.Identity
	requester oracle.Requester
	clock     quartz.Clock
	logger    *log.Logger
	bus       EventBus
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for deadlines and timestamps.
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEventBus sets the bus events are published on.
func WithEventBus(bus EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithRequester sets where spin requests are sent after commit.
func WithRequester(r oracle.Requester) Option {
	return func(e *Engine) { e.requester = r }
}

// NewEngine creates an engine over store. oracleID is the only identity
// allowed to resolve rounds.
func NewEngine(store ledger.Store, oracleID ledger.Identity, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		oracleID:  oracleID,
		requester: oracle.NopRequester{},
		clock:     quartz.NewReal(),
		logger:    log.Default(),
		bus:       NewEventBus(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithPrefix("engine")
	return e
}

// EventBus returns the bus the engine publishes on.
func (e *Engine) EventBus() EventBus { return e.bus }

// OracleIdentity returns the identity allowed to call AdvanceRound.
func (e *Engine) OracleIdentity() ledger.Identity { return e.oracleID }

func (e *Engine) publish(events ...Event) {
	for _, ev := range events {
		e.bus.Publish(ev)
	}
}

func loadTable(tx ledger.Tx) (*Table, error) {
	var t Table
	if err := tx.Get(ledger.TableKey(), &t); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrTableNotInitialized
		}
		return nil, err
	}
	return &t, nil
}

func loadVault(tx ledger.Tx) (*Vault, error) {
	var v Vault
	if err := tx.Get(ledger.VaultKey(), &v); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrTableNotInitialized
		}
		return nil, err
	}
	return &v, nil
}

// loadRound returns round n or notFound when it does not exist.
func loadRound(tx ledger.Tx, n uint64, notFound *Error) (*Round, error) {
	var r Round
	if err := tx.Get(ledger.RoundKey(n), &r); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fail(notFound, "round %d does not exist", n)
		}
		return nil, err
	}
	return &r, nil
}

func requireAdmin(t *Table, signer ledger.Identity) error {
	if signer != t.Admin {
		return fail(ErrUnauthorizedAdmin, "%q is not the admin", signer)
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fail(ErrMathOverflow, "%d + %d", a, b)
	}
	return sum, nil
}

// transfer maps ledger failures onto engine errors.
func transfer(tx ledger.Tx, fromKey ledger.Key, from ledger.Balances, toKey ledger.Key, to ledger.Balances, amount uint64, short *Error) error {
	err := ledger.Transfer(tx, fromKey, from, toKey, to, amount)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", short, err)
	case errors.Is(err, ledger.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrMathOverflow, err)
	default:
		return err
	}
}

// InitializeTable creates the table, the first round and a vault holding the
// reserve floor. It can succeed only once per store.
func (e *Engine) InitializeTable(ctx context.Context, admin ledger.Identity, minimumBetAmount uint64, roundPeriod time.Duration, reserveFloor uint64) (*Table, error) {
	if !admin.Valid() {
		return nil, ErrInvalidAdmin
	}
	if minimumBetAmount == 0 {
		return nil, ErrInvalidMinimumBetAmount
	}
	if roundPeriod <= 0 {
		return nil, ErrInvalidRoundPeriod
	}

	now := e.clock.Now()
	t := &Table{
		Admin:              admin,
		MinimumBetAmount:   minimumBetAmount,
		RoundPeriod:        roundPeriod,
		CurrentRoundNumber: 1,
		NextRoundDeadline:  now.Add(roundPeriod),
		ReserveFloor:       reserveFloor,
		CreatedAt:          now,
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		if err := tx.Create(ledger.TableKey(), t); err != nil {
			if errors.Is(err, ledger.ErrExists) {
				return ErrTableAlreadyInitialized
			}
			return err
		}
		if err := tx.Create(ledger.RoundKey(1), &Round{RoundNumber: 1, OpenedAt: now}); err != nil {
			return err
		}
		return tx.Create(ledger.VaultKey(), &Vault{Balance: reserveFloor})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Table initialized", "admin", admin, "minimum_bet", minimumBetAmount, "round_period", roundPeriod, "reserve_floor", reserveFloor)
	e.publish(TableInitializedEvent{
		Admin:            admin,
		MinimumBetAmount: minimumBetAmount,
		RoundPeriod:      roundPeriod,
		ReserveFloor:     reserveFloor,
		At:               now,
	})
	return t, nil
}

// TableUpdate names the fields UpdateTable should change.
type TableUpdate struct {
	MinimumBetAmount Optional[uint64]          `json:"minimum_bet_amount"`
	RoundPeriod      Optional[time.Duration]   `json:"round_period"`
	NewAdmin         Optional[ledger.Identity] `json:"new_admin"`
}

// UpdateTable applies the supplied fields. A new round period takes effect
// from the next resolved round.
func (e *Engine) UpdateTable(ctx context.Context, signer ledger.Identity, update TableUpdate) (*Table, error) {
	minBet, setMinBet := update.MinimumBetAmount.Get()
	if setMinBet && minBet == 0 {
		return nil, ErrInvalidMinimumBetAmount
	}
	period, setPeriod := update.RoundPeriod.Get()
	if setPeriod && period <= 0 {
		return nil, ErrInvalidRoundPeriod
	}
	admin, setAdmin := update.NewAdmin.Get()
	if setAdmin && !admin.Valid() {
		return nil, ErrInvalidAdmin
	}

	var t *Table
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		var err error
		if t, err = loadTable(tx); err != nil {
			return err
		}
		if err := requireAdmin(t, signer); err != nil {
			return err
		}
		if setMinBet {
			t.MinimumBetAmount = minBet
		}
		if setPeriod {
			t.RoundPeriod = period
		}
		if setAdmin {
			t.Admin = admin
		}
		return tx.Put(ledger.TableKey(), t)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Table updated", "admin", t.Admin, "minimum_bet", t.MinimumBetAmount, "round_period", t.RoundPeriod)
	e.publish(TableUpdatedEvent{
		Admin:            t.Admin,
		MinimumBetAmount: t.MinimumBetAmount,
		RoundPeriod:      t.RoundPeriod,
		At:               e.clock.Now(),
	})
	return t, nil
}

// FundAccount credits an account out of thin air. It is the development
// faucet; only the admin may call it.
func (e *Engine) FundAccount(ctx context.Context, signer, to ledger.Identity, amount uint64) (*ledger.Account, error) {
	if !to.Valid() {
		return nil, fail(ErrInvalidPlayer, "account identity is empty")
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var acct *ledger.Account
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(t, signer); err != nil {
			return err
		}
		if acct, err = ledger.LoadAccount(tx, to); err != nil {
			return err
		}
		if err := acct.Credit(amount); err != nil {
			return fmt.Errorf("%w: %w", ErrMathOverflow, err)
		}
		return tx.Put(ledger.AccountKey(to), acct)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Account funded", "account", to, "amount", amount, "balance", acct.Balance)
	e.publish(AccountFundedEvent{Account: to, Amount: amount, Balance: acct.Balance, At: e.clock.Now()})
	return acct, nil
}

// FundVault adds house bankroll to the vault. Only the admin may call it.
func (e *Engine) FundVault(ctx context.Context, signer ledger.Identity, amount uint64) (*Vault, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var vault *Vault
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(t, signer); err != nil {
			return err
		}
		if vault, err = loadVault(tx); err != nil {
			return err
		}
		if err := vault.Credit(amount); err != nil {
			return fmt.Errorf("%w: %w", ErrMathOverflow, err)
		}
		return tx.Put(ledger.VaultKey(), vault)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Vault funded", "amount", amount, "balance", vault.Balance)
	e.publish(AccountFundedEvent{Account: "vault", Amount: amount, Balance: vault.Balance, At: e.clock.Now()})
	return vault, nil
}
