package server

import (
	"encoding/json"
	"time"

	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/table"
	"github.com/lox/roulette/internal/wheel"
)

// Message represents the base WebSocket message structure. Responses carry
// the RequestID of the request they answer; events carry none.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	Token string `json:"token"`
}

type InitializeTableData struct {
	MinimumBetAmount uint64        `json:"minimum_bet_amount"`
	RoundPeriod      time.Duration `json:"round_period"`
	ReserveFloor     uint64        `json:"reserve_floor"`
}

type PlaceBetData struct {
	BetType wheel.BetType `json:"bet_type"`
	Amount  uint64        `json:"amount"`
}

type SpinRoundData struct {
	Seed oracle.Seed `json:"seed"`
}

type AdvanceRoundData struct {
	RoundNumber uint64      `json:"round_number"`
	Randomness  oracle.Seed `json:"randomness"`
}

type ClaimWinningsData struct {
	Targets []table.ClaimTarget `json:"targets"`
}

type WithdrawVaultData struct {
	Amount table.Optional[uint64] `json:"amount"`
}

type FundAccountData struct {
	Account ledger.Identity `json:"account"`
	Amount  uint64          `json:"amount"`
}

type FundVaultData struct {
	Amount uint64 `json:"amount"`
}

type GetRoundData struct {
	RoundNumber uint64 `json:"round_number"`
}

type ListRoundsData struct {
	IsSpun *bool `json:"is_spun,omitempty"`
}

type ListBetsData struct {
	Player    ledger.Identity `json:"player,omitempty"`
	Round     *uint64         `json:"round,omitempty"`
	IsClaimed *bool           `json:"is_claimed,omitempty"`
	IsWinning *bool           `json:"is_winning,omitempty"`
}

type GetBetData struct {
	Bet ledger.Key `json:"bet"`
}

type GetAccountData struct {
	Account ledger.Identity `json:"account"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	Identity string `json:"identity,omitempty"`
	Name     string `json:"name,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type RoundInfo struct {
	*table.Round
	Phase table.Phase `json:"phase"`
}

// NewRoundInfo pairs a round with its derived phase.
func NewRoundInfo(r *table.Round) RoundInfo {
	return RoundInfo{Round: r, Phase: r.Phase()}
}

type BetInfo struct {
	*table.Bet
	Key ledger.Key `json:"key"`
}

// NewBetInfo pairs a bet with its record key.
func NewBetInfo(b *table.Bet) BetInfo {
	return BetInfo{Bet: b, Key: b.Key()}
}

type WithdrawnData struct {
	Amount uint64 `json:"amount"`
}
