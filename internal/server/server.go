package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/lox/roulette/internal/auth"
	"github.com/lox/roulette/internal/broadcast"
	"github.com/lox/roulette/internal/metrics"
	"github.com/lox/roulette/internal/table"
)

// Server exposes a table engine over WebSocket and a read-only REST API.
type Server struct {
	engine      *table.Engine
	validator   auth.Validator
	metrics     *metrics.Metrics
	metricsPath string
	localOracle bool
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	logger      *log.Logger
	mu          sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

// WithValidator sets how auth tokens are checked. The default treats the
// token as the identity, except that nobody may claim the oracle's.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithMetrics serves m at path and counts requests into it.
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithLocalOracle marks the oracle as running in-process. Outcomes are then
// only ever delivered by it, and advance_round from a client is refused.
func WithLocalOracle() Option {
	return func(s *Server) { s.localOracle = true }
}

// NewServer creates a server for engine. Call Subscribe to stream the
// engine's events to clients.
func NewServer(engine *table.Engine, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		validator: auth.NewNoopValidator(string(engine.OracleIdentity())),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		logger:      logger.WithPrefix("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers the server on the engine's event bus.
func (s *Server) Subscribe() {
	s.engine.EventBus().Subscribe(s)
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Get("/table", s.handleGetTable)
		r.Get("/vault", s.handleGetVault)
		r.Get("/rounds", s.handleListRounds)
		r.Get("/rounds/{number}", s.handleGetRound)
		r.Get("/bets", s.handleListBets)
		r.Get("/bets/*", s.handleGetBet)
		r.Get("/accounts/{id}", s.handleGetAccount)
	})
	return r
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Stop closes every open connection.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Connections.Inc()
	}
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	_, ok := s.connections[conn]
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()

	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.Connections.Dec()
	}
	s.logger.Info("Client disconnected", "identity", conn.Identity(), "total", total)
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s)
	s.register(client)
	client.Start()

	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// OnEvent implements table.EventSubscriber by forwarding the event to every
// subscribed connection.
func (s *Server) OnEvent(event table.Event) {
	env, err := broadcast.Encode(event)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", event.EventType(), "error", err)
		return
	}
	msg, err := NewMessage(MessageTypeEvent, env)
	if err != nil {
		s.logger.Error("Failed to create event message", "type", event.EventType(), "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if !conn.Subscribed() {
			continue
		}
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}
	s.logger.Debug("Broadcasted event", "type", event.EventType(), "recipients", count)
}
