package table

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin  ledger.Identity = "admin"
	testOracle ledger.Identity = "oracle"
	testPeriod                 = 30 * time.Second
	testFloor                  = 1_000
)

type recordedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordedEvents) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordedEvents) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

type recordingRequester struct {
	mu       sync.Mutex
	requests []oracle.Request
	err      error
}

func (r *recordingRequester) RequestRandomness(_ context.Context, req oracle.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.err
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	engine    *Engine
	store     ledger.Store
	clock     *quartz.Mock
	events    *recordedEvents
	requester *recordingRequester
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		store:     ledger.NewMemoryStore(),
		clock:     quartz.NewMock(t),
		events:    &recordedEvents{},
		requester: &recordingRequester{},
	}
	bus := NewEventBus()
	bus.Subscribe(h.events)
	h.engine = NewEngine(h.store, testOracle,
		WithClock(h.clock),
		WithLogger(quietLogger()),
		WithEventBus(bus),
		WithRequester(h.requester),
	)
	return h
}

// newTable returns a harness with an initialized table: minimum bet 10,
// 30 second rounds and a vault seeded with the reserve floor.
func newTable(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	_, err := h.engine.InitializeTable(h.ctx, testAdmin, 10, testPeriod, testFloor)
	require.NoError(t, err)
	return h
}

func (h *harness) fund(player ledger.Identity, amount uint64) {
	h.t.Helper()
	_, err := h.engine.FundAccount(h.ctx, testAdmin, player, amount)
	require.NoError(h.t, err)
}

func (h *harness) fundVault(amount uint64) {
	h.t.Helper()
	_, err := h.engine.FundVault(h.ctx, testAdmin, amount)
	require.NoError(h.t, err)
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d).MustWait(h.ctx)
}

// resolve spins the active round after its deadline and answers it with
// randomness that lands on pocket.
func (h *harness) resolve(pocket uint8) uint64 {
	h.t.Helper()
	tbl, err := h.engine.Table(h.ctx)
	require.NoError(h.t, err)
	if wait := tbl.NextRoundDeadline.Sub(h.clock.Now()); wait > 0 {
		h.advance(wait)
	}
	req, err := h.engine.SpinRound(h.ctx, "cranker", oracle.Seed{})
	require.NoError(h.t, err)
	require.NoError(h.t, h.engine.AdvanceRound(h.ctx, testOracle, req.Round, randomnessFor(pocket)))
	return req.Round
}

// randomnessFor returns oracle output that maps onto pocket.
func randomnessFor(pocket uint8) oracle.Seed {
	var s oracle.Seed
	s[31] = pocket
	return s
}

func (h *harness) balance(id ledger.Identity) uint64 {
	h.t.Helper()
	acct, err := h.engine.Account(h.ctx, id)
	require.NoError(h.t, err)
	return acct.Balance
}

func (h *harness) vaultBalance() uint64 {
	h.t.Helper()
	v, err := h.engine.Vault(h.ctx)
	require.NoError(h.t, err)
	return v.Balance
}

func ptr[T any](v T) *T { return &v }
