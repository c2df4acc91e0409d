package table

import (
	"sync"
	"time"

	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/wheel"
)

// EventType represents a table event type with type safety
type EventType string

// Events are published after the operation that caused them commits.
const (
	EventTypeTableInitialized EventType = "table_initialized"
	EventTypeTableUpdated     EventType = "table_updated"
	EventTypeAccountFunded    EventType = "account_funded"
	EventTypeBetPlaced        EventType = "bet_placed"
	EventTypeRoundSpun        EventType = "round_spun"
	EventTypeRoundAdvanced    EventType = "round_advanced"
	EventTypeWinningsClaimed  EventType = "winnings_claimed"
	EventTypeVaultWithdrawn   EventType = "vault_withdrawn"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event is anything the engine announces after a state change.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

type TableInitializedEvent struct {
	Admin            ledger.Identity `json:"admin"`
	MinimumBetAmount uint64          `json:"minimum_bet_amount"`
	RoundPeriod      time.Duration   `json:"round_period"`
	ReserveFloor     uint64          `json:"reserve_floor"`
	At               time.Time       `json:"at"`
}

func (e TableInitializedEvent) EventType() EventType { return EventTypeTableInitialized }
func (e TableInitializedEvent) Timestamp() time.Time { return e.At }

type TableUpdatedEvent struct {
	Admin            ledger.Identity `json:"admin"`
	MinimumBetAmount uint64          `json:"minimum_bet_amount"`
	RoundPeriod      time.Duration   `json:"round_period"`
	At               time.Time       `json:"at"`
}

func (e TableUpdatedEvent) EventType() EventType { return EventTypeTableUpdated }
func (e TableUpdatedEvent) Timestamp() time.Time { return e.At }

type AccountFundedEvent struct {
	Account ledger.Identity `json:"account"`
	Amount  uint64          `json:"amount"`
	Balance uint64          `json:"balance"`
	At      time.Time       `json:"at"`
}

func (e AccountFundedEvent) EventType() EventType { return EventTypeAccountFunded }
func (e AccountFundedEvent) Timestamp() time.Time { return e.At }

type BetPlacedEvent struct {
	Player      ledger.Identity `json:"player"`
	Bet         ledger.Key      `json:"bet"`
	RoundNumber uint64          `json:"round_number"`
	BetType     wheel.BetType   `json:"bet_type"`
	Amount      uint64          `json:"amount"`
	PoolAmount  uint64          `json:"pool_amount"`
	At          time.Time       `json:"at"`
}

func (e BetPlacedEvent) EventType() EventType { return EventTypeBetPlaced }
func (e BetPlacedEvent) Timestamp() time.Time { return e.At }

type RoundSpunEvent struct {
	RoundNumber uint64          `json:"round_number"`
	Caller      ledger.Identity `json:"caller"`
	PoolAmount  uint64          `json:"pool_amount"`
	RequestID   string          `json:"request_id"`
	At          time.Time       `json:"at"`
}

func (e RoundSpunEvent) EventType() EventType { return EventTypeRoundSpun }
func (e RoundSpunEvent) Timestamp() time.Time { return e.At }

type RoundAdvancedEvent struct {
	RoundNumber       uint64       `json:"round_number"`
	Outcome           wheel.Pocket `json:"outcome"`
	NextRoundNumber   uint64       `json:"next_round_number"`
	NextRoundDeadline time.Time    `json:"next_round_deadline"`
	At                time.Time    `json:"at"`
}

func (e RoundAdvancedEvent) EventType() EventType { return EventTypeRoundAdvanced }
func (e RoundAdvancedEvent) Timestamp() time.Time { return e.At }

type WinningsClaimedEvent struct {
	Player      ledger.Identity `json:"player"`
	Bet         ledger.Key      `json:"bet"`
	RoundNumber uint64          `json:"round_number"`
	Amount      uint64          `json:"amount"`
	At          time.Time       `json:"at"`
}

func (e WinningsClaimedEvent) EventType() EventType { return EventTypeWinningsClaimed }
func (e WinningsClaimedEvent) Timestamp() time.Time { return e.At }

type VaultWithdrawnEvent struct {
	Admin        ledger.Identity `json:"admin"`
	Amount       uint64          `json:"amount"`
	VaultBalance uint64          `json:"vault_balance"`
	At           time.Time       `json:"at"`
}

func (e VaultWithdrawnEvent) EventType() EventType { return EventTypeVaultWithdrawn }
func (e VaultWithdrawnEvent) Timestamp() time.Time { return e.At }

// EventSubscriber can subscribe to table events
type EventSubscriber interface {
	OnEvent(event Event)
}

// EventSubscriberFunc adapts a function to EventSubscriber.
type EventSubscriberFunc func(Event)

func (f EventSubscriberFunc) OnEvent(event Event) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event Event)
}

// SimpleEventBus delivers events synchronously in subscription order.
// Subscribers that do slow work should hand events off to their own goroutine.
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events. Subscribers are
// compared by identity, so pointer subscribers are required here.
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event Event) {
	bus.mu.RLock()
	subs := bus.subscribers
	bus.mu.RUnlock()
	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}
