// Package broadcast forwards committed table events to external message
// brokers. A Sink subscribes to the engine's event bus and hands events to a
// Publisher from its own goroutine, so slow brokers never stall the engine.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/roulette/internal/table"
)

// Envelope is the wire form of a table event.
type Envelope struct {
	Type table.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// Encode wraps an event in an envelope.
func Encode(event table.Event) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	return Envelope{Type: event.EventType(), Data: data, At: event.Timestamp()}, nil
}

// Key returns the partition key for an event: the round it concerns, or the
// table itself for events that are not tied to a round.
func Key(event table.Event) string {
	switch e := event.(type) {
	case table.BetPlacedEvent:
		return fmt.Sprintf("round-%d", e.RoundNumber)
	case table.RoundSpunEvent:
		return fmt.Sprintf("round-%d", e.RoundNumber)
	case table.RoundAdvancedEvent:
		return fmt.Sprintf("round-%d", e.RoundNumber)
	case table.WinningsClaimedEvent:
		return fmt.Sprintf("round-%d", e.RoundNumber)
	default:
		return "table"
	}
}

// Publisher delivers one encoded event.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

const defaultBuffer = 256

// Sink queues events from the bus and publishes them in order.
type Sink struct {
	name      string
	publisher Publisher
	events    chan table.Event
	logger    *log.Logger
	timeout   time.Duration
}

// NewSink creates a sink that publishes through p. A zero buffer uses the
// default queue length.
func NewSink(name string, p Publisher, buffer int, logger *log.Logger) *Sink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Sink{
		name:      name,
		publisher: p,
		events:    make(chan table.Event, buffer),
		logger:    logger.WithPrefix(name),
		timeout:   5 * time.Second,
	}
}

// OnEvent implements table.EventSubscriber. It never blocks: when the queue
// is full the event is dropped and logged.
func (s *Sink) OnEvent(event table.Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("Queue full, dropping event", "type", event.EventType())
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left and closes the publisher.
func (s *Sink) Run(ctx context.Context) error {
	defer func() {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Close failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case event := <-s.events:
			s.send(ctx, event)
		}
	}
}

func (s *Sink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	for {
		select {
		case event := <-s.events:
			s.send(ctx, event)
		default:
			return
		}
	}
}

func (s *Sink) send(ctx context.Context, event table.Event) {
	env, err := Encode(event)
	if err != nil {
		s.logger.Error("Encode failed", "type", event.EventType(), "error", err)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("Encode failed", "type", event.EventType(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, Key(event), payload); err != nil {
		s.logger.Error("Publish failed", "type", event.EventType(), "error", err)
		return
	}
	s.logger.Debug("Published", "type", event.EventType())
}
