package table

import (
	"errors"
	"fmt"
)

// ErrorKind groups error codes by who is at fault.
type ErrorKind int

const (
	// Validation errors reject malformed input.
	Validation ErrorKind = iota
	// State errors reject a well-formed request at the wrong point in the lifecycle.
	State
	// Integrity errors mean the request references records inconsistently, or
	// the operation would break an accounting invariant.
	Integrity
	// Authorization errors reject a signer without the required role.
	Authorization
)

func (k ErrorKind) String() string {
	switch k {
	case Validation:
		return "validation"
	case State:
		return "state"
	case Integrity:
		return "integrity"
	case Authorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Error is a stable, machine-readable failure reported by the engine.
// Compare with errors.Is against the exported sentinels.
type Error struct {
	Code string
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Is matches any *Error with the same code, so wrapped copies compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, msg: msg}
}

var (
	ErrInvalidBetType          = newError(Validation, "InvalidBetType", "bet type is not valid on this layout")
	ErrInvalidBetAmount        = newError(Validation, "InvalidBetAmount", "bet amount is below the table minimum")
	ErrInvalidMinimumBetAmount = newError(Validation, "InvalidMinimumBetAmount", "minimum bet amount must be greater than zero")
	ErrInvalidRoundPeriod      = newError(Validation, "InvalidRoundPeriod", "round period must be greater than zero")
	ErrInvalidAdmin            = newError(Validation, "InvalidAdmin", "admin identity is empty")
	ErrInvalidAmount           = newError(Validation, "InvalidAmount", "amount must be greater than zero")
	ErrNothingToClaim          = newError(Validation, "NothingToClaim", "no bets were named for claiming")

	ErrTableAlreadyInitialized = newError(State, "TableAlreadyInitialized", "table is already initialized")
	ErrTableNotInitialized     = newError(State, "TableNotInitialized", "table has not been initialized")
	ErrRoundNotReadyToSpin     = newError(State, "RoundNotReadyToSpin", "round deadline has not passed")
	ErrRoundOver               = newError(State, "RoundOver", "round is no longer accepting bets")
	ErrRoundAlreadySpun        = newError(State, "RoundAlreadySpun", "round has already been spun")
	ErrRoundNotSpun            = newError(State, "RoundNotSpun", "round has not been spun")
	ErrRoundAwaitingOutcome    = newError(State, "RoundAwaitingOutcome", "round outcome has not been resolved")
	ErrWinningsAlreadyClaimed  = newError(State, "WinningsAlreadyClaimed", "winnings have already been claimed")
	ErrBetNotWinning           = newError(State, "BetNotWinning", "bet did not win")
	ErrBetAlreadyPlaced        = newError(State, "BetAlreadyPlaced", "player already has a bet in this round")
	ErrNoPendingRequest        = newError(State, "NoPendingRequest", "no randomness request is pending for this round")
	ErrRequestAlreadyConsumed  = newError(State, "RequestAlreadyConsumed", "randomness request has already been fulfilled")
	ErrVaultNotWithdrawable    = newError(State, "VaultNotWithdrawable", "amount exceeds the withdrawable vault surplus")

	ErrMathOverflow           = newError(Integrity, "MathOverflow", "arithmetic overflow")
	ErrInvalidRound           = newError(Integrity, "InvalidRound", "round does not match")
	ErrInvalidBet             = newError(Integrity, "InvalidBet", "bet does not match the round")
	ErrInvalidPlayer          = newError(Integrity, "InvalidPlayer", "bet belongs to another player")
	ErrInsufficientVaultFunds = newError(Integrity, "InsufficientVaultFunds", "vault cannot cover the payout")
	ErrInsufficientFunds      = newError(Integrity, "InsufficientFunds", "account balance is too low")

	ErrUnauthorizedAdmin  = newError(Authorization, "UnauthorizedAdmin", "signer is not the table admin")
	ErrUnauthorizedOracle = newError(Authorization, "UnauthorizedOracle", "signer is not the randomness oracle")
)

var allErrors = []*Error{
	ErrInvalidBetType, ErrInvalidBetAmount, ErrInvalidMinimumBetAmount, ErrInvalidRoundPeriod,
	ErrInvalidAdmin, ErrInvalidAmount, ErrNothingToClaim, ErrTableAlreadyInitialized,
	ErrTableNotInitialized, ErrRoundNotReadyToSpin, ErrRoundOver, ErrRoundAlreadySpun,
	ErrRoundNotSpun, ErrRoundAwaitingOutcome, ErrWinningsAlreadyClaimed, ErrBetNotWinning,
	ErrBetAlreadyPlaced, ErrNoPendingRequest, ErrRequestAlreadyConsumed, ErrVaultNotWithdrawable,
	ErrMathOverflow, ErrInvalidRound, ErrInvalidBet, ErrInvalidPlayer, ErrInsufficientVaultFunds,
	ErrInsufficientFunds, ErrUnauthorizedAdmin, ErrUnauthorizedOracle,
}

// ErrorByCode returns the sentinel for a wire code, so clients can rebuild
// errors that compare with errors.Is.
func ErrorByCode(code string) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// AsError extracts the engine error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// fail wraps a sentinel with request context.
func fail(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
