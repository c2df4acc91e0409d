package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key     string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []published
	fail   error
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, published{key: key, payload: payload})
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func TestEncode(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := Encode(table.BetPlacedEvent{
		Player:      "alice",
		RoundNumber: 3,
		BetType:     wheel.Split(5, 6),
		Amount:      100,
		At:          at,
	})
	require.NoError(t, err)
	assert.Equal(t, table.EventTypeBetPlaced, env.Type)
	assert.Equal(t, at, env.At)

	var data struct {
		Player  string        `json:"player"`
		BetType wheel.BetType `json:"bet_type"`
		Amount  uint64        `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "alice", data.Player)
	assert.True(t, data.BetType.Equal(wheel.Split(5, 6)))
	assert.Equal(t, uint64(100), data.Amount)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "round-7", Key(table.RoundSpunEvent{RoundNumber: 7}))
	assert.Equal(t, "round-2", Key(table.WinningsClaimedEvent{RoundNumber: 2}))
	assert.Equal(t, "table", Key(table.VaultWithdrawnEvent{}))
}

func TestSinkPublishesInOrder(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewSink("test", pub, 0, quietLogger())
	bus := table.NewEventBus()
	bus.Subscribe(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	for i := uint64(1); i <= 5; i++ {
		bus.Publish(table.RoundSpunEvent{RoundNumber: i})
	}

	require.Eventually(t, func() bool { return len(pub.messages()) == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for i, msg := range pub.messages() {
		var env Envelope
		require.NoError(t, json.Unmarshal(msg.payload, &env))
		assert.Equal(t, table.EventTypeRoundSpun, env.Type)

		var spun table.RoundSpunEvent
		require.NoError(t, json.Unmarshal(env.Data, &spun))
		assert.Equal(t, uint64(i+1), spun.RoundNumber)
		assert.Equal(t, Key(spun), msg.key)
	}
	assert.True(t, pub.closed)
}

func TestSinkDrainsOnShutdown(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewSink("test", pub, 4, quietLogger())
	sink.OnEvent(table.TableInitializedEvent{})
	sink.OnEvent(table.TableUpdatedEvent{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Run(ctx))

	assert.Len(t, pub.messages(), 2)
}

func TestSinkDropsWhenFull(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewSink("test", pub, 1, quietLogger())
	sink.OnEvent(table.TableInitializedEvent{})
	sink.OnEvent(table.TableUpdatedEvent{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Run(ctx))

	require.Len(t, pub.messages(), 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(pub.messages()[0].payload, &env))
	assert.Equal(t, table.EventTypeTableInitialized, env.Type)
}

func TestSinkSurvivesPublishErrors(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{fail: errors.New("broker down")}
	sink := NewSink("test", pub, 0, quietLogger())
	sink.OnEvent(table.TableInitializedEvent{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Run(ctx))
	assert.Empty(t, pub.messages())
	assert.True(t, pub.closed)
}
