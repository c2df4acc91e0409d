// Package oracle connects the table to a source of randomness.
//
// Spinning a round produces a Request. The Requester delivers it to the
// randomness provider, which later answers by calling Resolver.AdvanceRound
// with 32 bytes of entropy. Delivery may happen long after the spin and may
// be retried; the table accepts each request's answer exactly once.
package oracle

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lox/roulette/internal/ledger"
)

// Seed is 32 bytes of caller- or oracle-supplied entropy, hex-encoded on the wire.
type Seed [32]byte

func (s Seed) String() string { return hex.EncodeToString(s[:]) }

// MarshalText implements encoding.TextMarshaler.
func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Seed) UnmarshalText(text []byte) error {
	parsed, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeed decodes a 64 character hex string.
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	b, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("invalid seed: %w", err)
	}
	if len(b) != len(seed) {
		return seed, fmt.Errorf("invalid seed: want %d bytes, got %d", len(seed), len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

// Request asks the provider to resolve a spun round.
type Request struct {
	ID         uuid.UUID `json:"id"`
	Round      uint64    `json:"round"`
	CallerSeed Seed      `json:"caller_seed"`
	// Resolver is the only identity allowed to answer.
	Resolver ledger.Identity `json:"resolver"`
	// Writable lists the records the answer will mutate.
	Writable    []ledger.Key `json:"writable"`
	RequestedAt time.Time    `json:"requested_at"`
}

// Requester hands requests to the randomness provider.
// Implementations must tolerate the same request being sent more than once.
type Requester interface {
	RequestRandomness(ctx context.Context, req Request) error
}

// Resolver accepts the provider's answer for a round.
type Resolver interface {
	AdvanceRound(ctx context.Context, signer ledger.Identity, round uint64, randomness Seed) error
}

// NopRequester drops every request. Rounds spun with it stay pending until
// something calls AdvanceRound directly.
type NopRequester struct{}

func (NopRequester) RequestRandomness(context.Context, Request) error { return nil }
