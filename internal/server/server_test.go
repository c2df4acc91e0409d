package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/roulette/internal/auth"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/metrics"
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin  ledger.Identity = "admin"
	testOracle ledger.Identity = "oracle"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type testEnv struct {
	engine  *table.Engine
	clock   *quartz.Mock
	metrics *metrics.Metrics
	http    *httptest.Server
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	clock := quartz.NewMock(t)
	engine := table.NewEngine(ledger.NewMemoryStore(), testOracle,
		table.WithClock(clock),
		table.WithLogger(testLogger()),
	)
	m := metrics.New()
	engine.EventBus().Subscribe(m)

	srv := NewServer(engine, testLogger(), append([]Option{WithMetrics(m, "/metrics")}, opts...)...)
	srv.Subscribe()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})
	return &testEnv{engine: engine, clock: clock, metrics: m, http: ts}
}

func (e *testEnv) initialize(t *testing.T) {
	t.Helper()
	_, err := e.engine.InitializeTable(context.Background(), testAdmin, 10, 30*time.Second, 1000)
	require.NoError(t, err)
}

type wsTestClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (e *testEnv) dial(t *testing.T) *wsTestClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsTestClient{t: t, conn: conn}
}

func (c *wsTestClient) read() *Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return &msg
}

// request sends one message and returns the response to it, skipping any
// events that arrive first.
func (c *wsTestClient) request(messageType MessageType, data any) *Message {
	c.t.Helper()
	c.seq++
	msg, err := NewMessage(messageType, data)
	require.NoError(c.t, err)
	msg.RequestID = fmt.Sprintf("req-%d", c.seq)
	require.NoError(c.t, c.conn.WriteJSON(msg))

	for {
		resp := c.read()
		if resp.RequestID == msg.RequestID {
			return resp
		}
	}
}

func (c *wsTestClient) auth(token string) {
	c.t.Helper()
	resp := c.request(MessageTypeAuth, AuthData{Token: token})
	require.Equal(c.t, MessageTypeAuthResponse, resp.Type, string(resp.Data))
}

func (c *wsTestClient) result(messageType MessageType, data any, v any) {
	c.t.Helper()
	resp := c.request(messageType, data)
	require.Equal(c.t, MessageTypeResult, resp.Type, string(resp.Data))
	if v != nil {
		require.NoError(c.t, json.Unmarshal(resp.Data, v))
	}
}

func (c *wsTestClient) failure(messageType MessageType, data any) ErrorData {
	c.t.Helper()
	resp := c.request(messageType, data)
	require.Equal(c.t, MessageTypeError, resp.Type, string(resp.Data))
	var e ErrorData
	require.NoError(c.t, json.Unmarshal(resp.Data, &e))
	return e
}

func (c *wsTestClient) nextEvent() broadcast.Envelope {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.Type != MessageTypeEvent {
			continue
		}
		var env broadcast.Envelope
		require.NoError(c.t, json.Unmarshal(msg.Data, &env))
		return env
	}
}

func TestServerHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWaitForHealthy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, WaitForHealthy(ctx, env.http.URL+"/"))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := WaitForHealthy(ctx, down.URL)
	assert.ErrorContains(t, err, "503")
}

func TestRequiresAuthentication(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.initialize(t)

	c := env.dial(t)
	e := c.failure(MessageTypePlaceBet, PlaceBetData{BetType: wheel.Red(), Amount: 10})
	assert.Equal(t, CodeNotAuthenticated, e.Code)

	var tbl table.Table
	c.result(MessageTypeGetTable, nil, &tbl)
	assert.Equal(t, testAdmin, tbl.Admin, "reads need no identity")
}

func TestStaticTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithValidator(auth.NewStaticValidator(map[string]string{"s3cret": "alice"})))

	c := env.dial(t)
	e := c.failure(MessageTypeAuth, AuthData{Token: "guess"})
	assert.Equal(t, CodeInvalidToken, e.Code)

	resp := c.request(MessageTypeAuth, AuthData{Token: "s3cret"})
	require.Equal(t, MessageTypeAuthResponse, resp.Type)
	var data AuthResponseData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.Success)
	assert.Equal(t, "alice", data.Identity)
}

func TestDevAuthReservesPrivilegedIdentities(t *testing.T) {
	t.Parallel()

	t.Run("default validator", func(t *testing.T) {
		env := newTestEnv(t)
		c := env.dial(t)
		e := c.failure(MessageTypeAuth, AuthData{Token: string(testOracle)})
		assert.Equal(t, CodeInvalidToken, e.Code)
		c.auth("alice")
	})

	t.Run("admin and oracle reserved", func(t *testing.T) {
		env := newTestEnv(t, WithValidator(auth.NewNoopValidator(string(testOracle), string(testAdmin))))
		c := env.dial(t)
		for _, token := range []ledger.Identity{testOracle, testAdmin} {
			e := c.failure(MessageTypeAuth, AuthData{Token: string(token)})
			assert.Equal(t, CodeInvalidToken, e.Code, token)
		}
	})
}

func TestLocalOracleRefusesClientOutcomes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t,
		WithLocalOracle(),
		WithValidator(auth.NewStaticValidator(map[string]string{
			"oracle-token": string(testOracle),
			"alice":        "alice",
		})),
	)
	env.initialize(t)
	ctx := context.Background()
	_, err := env.engine.FundAccount(ctx, testAdmin, "alice", 100)
	require.NoError(t, err)

	alice := env.dial(t)
	alice.auth("alice")
	alice.result(MessageTypePlaceBet, PlaceBetData{BetType: wheel.StraightUp(7), Amount: 100}, nil)
	env.clock.Advance(30 * time.Second).MustWait(ctx)
	alice.result(MessageTypeSpinRound, SpinRoundData{}, nil)

	oracleConn := env.dial(t)
	oracleConn.auth("oracle-token")
	var chosen AdvanceRoundData
	chosen.RoundNumber = 1
	chosen.Randomness[31] = 7
	e := oracleConn.failure(MessageTypeAdvanceRound, chosen)
	assert.Equal(t, table.ErrUnauthorizedOracle.Code, e.Code)
	assert.Equal(t, "authorization", e.Kind)

	round, err := env.engine.Round(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, table.PhaseSpun, round.Phase())
}

func TestMalformedRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	c := env.dial(t)
	c.auth("alice")

	e := c.failure("shuffle_deck", nil)
	assert.Equal(t, CodeUnknownMessageType, e.Code)

	e = c.failure(MessageTypePlaceBet, map[string]any{"amount": "lots"})
	assert.Equal(t, CodeInvalidMessage, e.Code)
}

func TestWebSocketRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithValidator(auth.NewStaticValidator(map[string]string{
		string(testAdmin):  string(testAdmin),
		string(testOracle): string(testOracle),
		"alice":            "alice",
	})))
	ctx := context.Background()

	admin := env.dial(t)
	admin.auth(string(testAdmin))

	var tbl table.Table
	admin.result(MessageTypeInitializeTable, InitializeTableData{
		MinimumBetAmount: 10,
		RoundPeriod:      30 * time.Second,
		ReserveFloor:     1000,
	}, &tbl)
	assert.Equal(t, uint64(1), tbl.CurrentRoundNumber)

	var acct ledger.Account
	admin.result(MessageTypeFundAccount, FundAccountData{Account: "alice", Amount: 500}, &acct)
	assert.Equal(t, uint64(500), acct.Balance)
	admin.result(MessageTypeFundVault, FundVaultData{Amount: 10_000}, nil)

	watcher := env.dial(t)
	watcher.result(MessageTypeSubscribe, nil, nil)

	alice := env.dial(t)
	alice.auth("alice")

	var bet BetInfo
	alice.result(MessageTypePlaceBet, PlaceBetData{BetType: wheel.Split(5, 6), Amount: 100}, &bet)
	assert.Equal(t, ledger.BetKey(ledger.RoundKey(1), "alice"), bet.Key)
	assert.Equal(t, uint64(1), bet.RoundNumber)

	ev := watcher.nextEvent()
	assert.Equal(t, table.EventTypeBetPlaced, ev.Type)

	e := alice.failure(MessageTypePlaceBet, PlaceBetData{BetType: wheel.Red(), Amount: 100})
	assert.Equal(t, table.ErrBetAlreadyPlaced.Code, e.Code)
	assert.Equal(t, "state", e.Kind)

	e = alice.failure(MessageTypeSpinRound, SpinRoundData{})
	assert.Equal(t, table.ErrRoundNotReadyToSpin.Code, e.Code)

	env.clock.Advance(30 * time.Second).MustWait(ctx)
	alice.result(MessageTypeSpinRound, SpinRoundData{}, nil)
	assert.Equal(t, table.EventTypeRoundSpun, watcher.nextEvent().Type)

	e = alice.failure(MessageTypeAdvanceRound, AdvanceRoundData{RoundNumber: 1})
	assert.Equal(t, table.ErrUnauthorizedOracle.Code, e.Code)
	assert.Equal(t, "authorization", e.Kind)

	oracleConn := env.dial(t)
	oracleConn.auth(string(testOracle))
	var randomness AdvanceRoundData
	randomness.RoundNumber = 1
	randomness.Randomness[31] = 6
	oracleConn.result(MessageTypeAdvanceRound, randomness, nil)
	assert.Equal(t, table.EventTypeRoundAdvanced, watcher.nextEvent().Type)

	var round RoundInfo
	alice.result(MessageTypeGetRound, GetRoundData{RoundNumber: 1}, &round)
	assert.Equal(t, table.PhaseResolved, round.Phase)
	pocket, ok := round.Outcome.Pocket()
	require.True(t, ok)
	assert.Equal(t, wheel.Pocket(6), pocket)

	var payouts []table.Payout
	alice.result(MessageTypeClaimWinnings, ClaimWinningsData{Targets: []table.ClaimTarget{{Round: 1}}}, &payouts)
	require.Len(t, payouts, 1)
	assert.Equal(t, uint64(1800), payouts[0].Amount)

	e = alice.failure(MessageTypeClaimWinnings, ClaimWinningsData{Targets: []table.ClaimTarget{{Round: 1}}})
	assert.Equal(t, table.ErrWinningsAlreadyClaimed.Code, e.Code)

	alice.result(MessageTypeGetAccount, GetAccountData{}, &acct)
	assert.Equal(t, uint64(500-100+1800), acct.Balance)

	var bets []BetInfo
	alice.result(MessageTypeListBets, ListBetsData{Player: "alice"}, &bets)
	require.Len(t, bets, 1)
	assert.True(t, bets[0].IsClaimed)

	var withdrawn WithdrawnData
	admin.result(MessageTypeWithdrawVault, WithdrawVaultData{Amount: table.Some[uint64](100)}, &withdrawn)
	assert.Equal(t, uint64(100), withdrawn.Amount)

	e = alice.failure(MessageTypeWithdrawVault, WithdrawVaultData{})
	assert.Equal(t, table.ErrUnauthorizedAdmin.Code, e.Code)
}

func TestRESTAPI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	get := func(path string, v any) int {
		t.Helper()
		resp, err := http.Get(env.http.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	var e ErrorData
	require.Equal(t, http.StatusNotFound, get("/api/table", &e))
	assert.Equal(t, table.ErrTableNotInitialized.Code, e.Code)

	env.initialize(t)
	_, err := env.engine.FundAccount(ctx, testAdmin, "alice", 100)
	require.NoError(t, err)
	_, err = env.engine.PlaceBet(ctx, "alice", wheel.Dozen(2), 40)
	require.NoError(t, err)

	var tbl table.Table
	require.Equal(t, http.StatusOK, get("/api/table", &tbl))
	assert.Equal(t, uint64(10), tbl.MinimumBetAmount)

	var vault table.Vault
	require.Equal(t, http.StatusOK, get("/api/vault", &vault))
	assert.Equal(t, uint64(1040), vault.Balance)

	var round RoundInfo
	require.Equal(t, http.StatusOK, get("/api/rounds/1", &round))
	assert.Equal(t, table.PhaseOpen, round.Phase)
	assert.Equal(t, uint64(40), round.PoolAmount)

	require.Equal(t, http.StatusNotFound, get("/api/rounds/2", &e))
	assert.Equal(t, table.ErrInvalidRound.Code, e.Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/rounds/first", nil))

	var rounds []RoundInfo
	require.Equal(t, http.StatusOK, get("/api/rounds?spun=false", &rounds))
	assert.Len(t, rounds, 1)
	assert.Equal(t, http.StatusBadRequest, get("/api/rounds?spun=maybe", nil))

	var bets []BetInfo
	require.Equal(t, http.StatusOK, get("/api/bets?player=alice&round=1", &bets))
	require.Len(t, bets, 1)

	var bet BetInfo
	require.Equal(t, http.StatusOK, get("/api/bets/"+bets[0].Key.String(), &bet))
	assert.True(t, bet.BetType.Equal(wheel.Dozen(2)))
	assert.Equal(t, http.StatusBadRequest, get("/api/bets/round/nope", nil))

	var acct ledger.Account
	require.Equal(t, http.StatusOK, get("/api/accounts/alice", &acct))
	assert.Equal(t, uint64(60), acct.Balance)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `roulette_bets_placed_total{kind="dozen"} 1`)
}
