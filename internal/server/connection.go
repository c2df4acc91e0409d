package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/roulette/internal/ledger"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn       *websocket.Conn
	send       chan *Message
	identity   ledger.Identity
	name       string
	subscribed bool
	logger     *log.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	closeOnce  sync.Once
	server     *Server
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
		server: server,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client. A client that stops reading
// is disconnected once its buffer fills.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "identity", c.Identity())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetIdentity records who authenticated on this connection.
func (c *Connection) SetIdentity(id ledger.Identity, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
	c.name = name
}

// Identity returns the authenticated identity, empty before auth.
func (c *Connection) Identity() ledger.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SetSubscribed turns event delivery on for this connection.
func (c *Connection) SetSubscribed(subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = subscribed
}

// Subscribed reports whether the connection receives table events.
func (c *Connection) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = errors.New("connection closed")
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.server.handleMessage(c.ctx, c, &msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// reply answers the request req with a message of the given type.
func (c *Connection) reply(req *Message, messageType MessageType, data any) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

// replyError answers the request req with an error message.
func (c *Connection) replyError(req *Message, data ErrorData) {
	c.reply(req, MessageTypeError, data)
}

func decode[T any](c *Connection, req *Message) (T, bool) {
	var data T
	if len(req.Data) == 0 {
		return data, true
	}
	if err := json.Unmarshal(req.Data, &data); err != nil {
		c.replyError(req, ErrorData{
			Code:    CodeInvalidMessage,
			Message: "failed to parse " + req.Type.String() + " data: " + err.Error(),
		})
		return data, false
	}
	return data, true
}
