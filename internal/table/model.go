package table

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"time"

	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/wheel"
)

// Table is the singleton configuration and round cursor.
type Table struct {
	Admin              ledger.Identity `json:"admin"`
	MinimumBetAmount   uint64          `json:"minimum_bet_amount"`
	RoundPeriod        time.Duration   `json:"round_period"`
	CurrentRoundNumber uint64          `json:"current_round_number"`
	NextRoundDeadline  time.Time       `json:"next_round_deadline"`
	// ReserveFloor is the vault balance the admin can never withdraw.
	ReserveFloor uint64    `json:"reserve_floor"`
	CreatedAt    time.Time `json:"created_at"`
}

// Outcome is either unresolved or a resolved pocket.
type Outcome struct {
	pocket   wheel.Pocket
	resolved bool
}

// Unresolved is the outcome of a round the oracle has not answered yet.
func Unresolved() Outcome { return Outcome{} }

// Resolved is the outcome of a round that landed on p.
func Resolved(p wheel.Pocket) Outcome { return Outcome{pocket: p, resolved: true} }

// Pocket returns the winning pocket if the outcome is resolved.
func (o Outcome) Pocket() (wheel.Pocket, bool) { return o.pocket, o.resolved }

func (o Outcome) IsResolved() bool { return o.resolved }

func (o Outcome) String() string {
	if !o.resolved {
		return "unresolved"
	}
	return o.pocket.String()
}

// MarshalJSON encodes an unresolved outcome as null.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.resolved {
		return []byte("null"), nil
	}
	return json.Marshal(uint8(o.pocket))
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Unresolved()
		return nil
	}
	var n uint8
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	p := wheel.Pocket(n)
	if !p.Valid() {
		return fmt.Errorf("outcome %d is not a pocket", n)
	}
	*o = Resolved(p)
	return nil
}

// Phase is the lifecycle state derived from a round's fields.
type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseSpun     Phase = "spun"
	PhaseResolved Phase = "resolved"
)

// Round is one spin of the wheel.
type Round struct {
	RoundNumber uint64    `json:"round_number"`
	PoolAmount  uint64    `json:"pool_amount"`
	IsSpun      bool      `json:"is_spun"`
	Outcome     Outcome   `json:"outcome"`
	OpenedAt    time.Time `json:"opened_at"`
	SpunAt      time.Time `json:"spun_at,omitzero"`
	ResolvedAt  time.Time `json:"resolved_at,omitzero"`
}

// Phase derives the lifecycle state.
func (r *Round) Phase() Phase {
	switch {
	case r.Outcome.IsResolved():
		return PhaseResolved
	case r.IsSpun:
		return PhaseSpun
	default:
		return PhaseOpen
	}
}

// Key is the record address of the round.
func (r *Round) Key() ledger.Key { return ledger.RoundKey(r.RoundNumber) }

// SettledRound is a round whose outcome is known. It can only be obtained
// from Round.Settled, so holding one proves the round is resolved.
type SettledRound struct {
	RoundNumber uint64
	Outcome     wheel.Pocket
}

// Settled returns the settled view of a resolved round.
func (r *Round) Settled() (SettledRound, bool) {
	p, ok := r.Outcome.Pocket()
	if !ok {
		return SettledRound{}, false
	}
	return SettledRound{RoundNumber: r.RoundNumber, Outcome: p}, true
}

// Bet is one player's wager on one round.
type Bet struct {
	Player      ledger.Identity `json:"player"`
	Round       ledger.Key      `json:"round"`
	RoundNumber uint64          `json:"round_number"`
	Amount      uint64          `json:"amount"`
	BetType     wheel.BetType   `json:"bet_type"`
	IsClaimed   bool            `json:"is_claimed"`
	PlacedAt    time.Time       `json:"placed_at"`
	ClaimedAt   time.Time       `json:"claimed_at,omitzero"`
}

// Key is the record address of the bet.
func (b *Bet) Key() ledger.Key { return ledger.BetKey(b.Round, b.Player) }

// IsWinning reports whether the bet won, and false while unresolved.
func (b *Bet) IsWinning(r *Round) bool {
	settled, ok := r.Settled()
	return ok && b.BetType.IsWinner(settled.Outcome)
}

// Vault custodies every stake until it is paid out or withdrawn.
type Vault struct {
	Balance uint64 `json:"balance"`
}

// Withdrawable is the balance above the floor, saturating at zero.
func (v *Vault) Withdrawable(floor uint64) uint64 {
	if v.Balance <= floor {
		return 0
	}
	return v.Balance - floor
}

func (v *Vault) Debit(amount uint64) error {
	if amount > v.Balance {
		return fmt.Errorf("%w: vault holds %d, needs %d", ledger.ErrInsufficientFunds, v.Balance, amount)
	}
	v.Balance -= amount
	return nil
}

func (v *Vault) Credit(amount uint64) error {
	sum, carry := bits.Add64(v.Balance, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: crediting %d to vault", ledger.ErrOverflow, amount)
	}
	v.Balance = sum
	return nil
}

// SpinRequest is the durable record of a randomness request. It is created
// by SpinRound and consumed by the matching AdvanceRound.
type SpinRequest struct {
	oracle.Request
	Consumed   bool      `json:"consumed"`
	ConsumedAt time.Time `json:"consumed_at,omitzero"`
}
