package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth            MessageType = "auth"
	MessageTypeSubscribe       MessageType = "subscribe"
	MessageTypeInitializeTable MessageType = "initialize_table"
	MessageTypeUpdateTable     MessageType = "update_table"
	MessageTypePlaceBet        MessageType = "place_bet"
	MessageTypeSpinRound       MessageType = "spin_round"
	MessageTypeAdvanceRound    MessageType = "advance_round"
	MessageTypeClaimWinnings   MessageType = "claim_winnings"
	MessageTypeWithdrawVault   MessageType = "withdraw_vault"
	MessageTypeFundAccount     MessageType = "fund_account"
	MessageTypeFundVault       MessageType = "fund_vault"
	MessageTypeGetTable        MessageType = "get_table"
	MessageTypeGetVault        MessageType = "get_vault"
	MessageTypeGetRound        MessageType = "get_round"
	MessageTypeListRounds      MessageType = "list_rounds"
	MessageTypeListBets        MessageType = "list_bets"
	MessageTypeGetBet          MessageType = "get_bet"
	MessageTypeGetAccount      MessageType = "get_account"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeResult       MessageType = "result"
	MessageTypeError        MessageType = "error"
	MessageTypeEvent        MessageType = "event"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Protocol error codes. Engine failures use the engine's own codes.
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnknownMessageType = "unknown_message_type"
	CodeNotAuthenticated   = "not_authenticated"
	CodeInvalidToken       = "invalid_token"
	CodeAuthUnavailable    = "auth_unavailable"
	CodeInternal           = "internal"
)
