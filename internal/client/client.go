// Package client talks to a roulette server over its WebSocket protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/server" // Reuse message types
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/wheel"
)

// ErrDisconnected is returned for requests made after the connection drops.
var ErrDisconnected = errors.New("client: disconnected")

// ProtocolError is a server rejection that is not an engine error, such as
// a missing auth message.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// EventHandler is a function that handles incoming events
type EventHandler func(broadcast.Envelope)

// Client is a WebSocket client for the roulette server. Requests may be made
// from any goroutine.
type Client struct {
	serverURL      string
	conn           *websocket.Conn
	send           chan *server.Message
	logger         *log.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	requestTimeout time.Duration
	mu             sync.RWMutex
	pending        map[string]chan *server.Message
	identity       string
	closeOnce      sync.Once

	eventHandlers []EventHandler
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, requestTimeout time.Duration, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return &Client{
		serverURL:      serverURL,
		send:           make(chan *server.Message, 256),
		logger:         logger.WithPrefix("client"),
		ctx:            ctx,
		cancel:         cancel,
		requestTimeout: requestTimeout,
		pending:        make(map[string]chan *server.Message),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the connection has dropped.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// AddEventHandler registers a handler for table events. Handlers run on the
// read goroutine and must not block.
func (c *Client) AddEventHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers = append(c.eventHandlers, handler)
}

// Identity returns the identity the server accepted, empty before Auth.
func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() { _ = c.Disconnect() }()

	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)
		if msg.Type == server.MessageTypeEvent {
			c.dispatchEvent(&msg)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- &msg
		} else {
			c.logger.Debug("Dropping unsolicited message", "type", msg.Type)
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				_ = c.Disconnect()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Disconnect()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) dispatchEvent(msg *server.Message) {
	var env broadcast.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		c.logger.Warn("Malformed event", "error", err)
		return
	}

	c.mu.RLock()
	handlers := c.eventHandlers
	c.mu.RUnlock()
	for _, handler := range handlers {
		handler(env)
	}
}

// call sends a request and decodes the result into out, which may be nil.
func (c *Client) call(ctx context.Context, messageType server.MessageType, data any, out any) error {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return err
	}
	msg.RequestID = uuid.NewString()

	ch := make(chan *server.Message, 1)
	c.mu.Lock()
	c.pending[msg.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	select {
	case c.send <- msg:
	case <-c.ctx.Done():
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}

	var resp *server.Message
	select {
	case resp = <-ch:
	case <-c.ctx.Done():
		return ErrDisconnected
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", messageType, ctx.Err())
	}

	if resp.Type == server.MessageTypeError {
		return decodeError(resp.Data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s result: %w", messageType, err)
	}
	return nil
}

// decodeError rebuilds engine errors so callers can match them with
// errors.Is against the table sentinels.
func decodeError(data json.RawMessage) error {
	var e server.ErrorData
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("malformed error response: %w", err)
	}
	if sentinel, ok := table.ErrorByCode(e.Code); ok {
		if e.Message == sentinel.Error() {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, e.Message)
	}
	return &ProtocolError{Code: e.Code, Message: e.Message}
}

// Auth presents token and records the identity the server assigns.
func (c *Client) Auth(ctx context.Context, token string) (string, error) {
	var resp server.AuthResponseData
	if err := c.call(ctx, server.MessageTypeAuth, server.AuthData{Token: token}, &resp); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.identity = resp.Identity
	c.mu.Unlock()
	return resp.Identity, nil
}

// Subscribe asks the server to stream table events to this client.
func (c *Client) Subscribe(ctx context.Context) error {
	return c.call(ctx, server.MessageTypeSubscribe, struct{}{}, nil)
}

func (c *Client) InitializeTable(ctx context.Context, minimumBetAmount uint64, roundPeriod time.Duration, reserveFloor uint64) (*table.Table, error) {
	var t table.Table
	err := c.call(ctx, server.MessageTypeInitializeTable, server.InitializeTableData{
		MinimumBetAmount: minimumBetAmount,
		RoundPeriod:      roundPeriod,
		ReserveFloor:     reserveFloor,
	}, &t)
	return &t, err
}

func (c *Client) UpdateTable(ctx context.Context, update table.TableUpdate) (*table.Table, error) {
	var t table.Table
	err := c.call(ctx, server.MessageTypeUpdateTable, update, &t)
	return &t, err
}

func (c *Client) PlaceBet(ctx context.Context, betType wheel.BetType, amount uint64) (*server.BetInfo, error) {
	var bet server.BetInfo
	err := c.call(ctx, server.MessageTypePlaceBet, server.PlaceBetData{BetType: betType, Amount: amount}, &bet)
	return &bet, err
}

func (c *Client) SpinRound(ctx context.Context, seed oracle.Seed) (*oracle.Request, error) {
	var req oracle.Request
	err := c.call(ctx, server.MessageTypeSpinRound, server.SpinRoundData{Seed: seed}, &req)
	return &req, err
}

// AdvanceRound answers a spin request. Only the oracle identity succeeds.
func (c *Client) AdvanceRound(ctx context.Context, roundNumber uint64, randomness oracle.Seed) error {
	return c.call(ctx, server.MessageTypeAdvanceRound, server.AdvanceRoundData{
		RoundNumber: roundNumber,
		Randomness:  randomness,
	}, nil)
}

func (c *Client) ClaimWinnings(ctx context.Context, targets ...table.ClaimTarget) ([]table.Payout, error) {
	var payouts []table.Payout
	err := c.call(ctx, server.MessageTypeClaimWinnings, server.ClaimWinningsData{Targets: targets}, &payouts)
	return payouts, err
}

func (c *Client) WithdrawVault(ctx context.Context, amount table.Optional[uint64]) (uint64, error) {
	var resp server.WithdrawnData
	err := c.call(ctx, server.MessageTypeWithdrawVault, server.WithdrawVaultData{Amount: amount}, &resp)
	return resp.Amount, err
}

func (c *Client) FundAccount(ctx context.Context, account ledger.Identity, amount uint64) (*ledger.Account, error) {
	var acct ledger.Account
	err := c.call(ctx, server.MessageTypeFundAccount, server.FundAccountData{Account: account, Amount: amount}, &acct)
	return &acct, err
}

func (c *Client) FundVault(ctx context.Context, amount uint64) (*table.Vault, error) {
	var v table.Vault
	err := c.call(ctx, server.MessageTypeFundVault, server.FundVaultData{Amount: amount}, &v)
	return &v, err
}

func (c *Client) Table(ctx context.Context) (*table.Table, error) {
	var t table.Table
	err := c.call(ctx, server.MessageTypeGetTable, struct{}{}, &t)
	return &t, err
}

func (c *Client) Vault(ctx context.Context) (*table.Vault, error) {
	var v table.Vault
	err := c.call(ctx, server.MessageTypeGetVault, struct{}{}, &v)
	return &v, err
}

func (c *Client) Round(ctx context.Context, n uint64) (*server.RoundInfo, error) {
	var r server.RoundInfo
	err := c.call(ctx, server.MessageTypeGetRound, server.GetRoundData{RoundNumber: n}, &r)
	return &r, err
}

func (c *Client) Rounds(ctx context.Context, filter server.ListRoundsData) ([]server.RoundInfo, error) {
	var rounds []server.RoundInfo
	err := c.call(ctx, server.MessageTypeListRounds, filter, &rounds)
	return rounds, err
}

func (c *Client) Bets(ctx context.Context, filter server.ListBetsData) ([]server.BetInfo, error) {
	var bets []server.BetInfo
	err := c.call(ctx, server.MessageTypeListBets, filter, &bets)
	return bets, err
}

func (c *Client) Bet(ctx context.Context, key ledger.Key) (*server.BetInfo, error) {
	var bet server.BetInfo
	err := c.call(ctx, server.MessageTypeGetBet, server.GetBetData{Bet: key}, &bet)
	return &bet, err
}

// Account returns the balance of account, or of the caller when empty.
func (c *Client) Account(ctx context.Context, account ledger.Identity) (*ledger.Account, error) {
	var acct ledger.Account
	err := c.call(ctx, server.MessageTypeGetAccount, server.GetAccountData{Account: account}, &acct)
	return &acct, err
}
