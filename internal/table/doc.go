// Package table implements the roulette table: round lifecycle, bets,
// claims and vault custody, all persisted through a ledger.Store.
//
// A round moves Open -> Spun -> Resolved and exactly one round is active
// (Open or Spun) at any time:
//
//	PlaceBet      escrows a stake while the active round is Open and before its deadline
//	SpinRound     locks the round once the deadline passes and requests randomness
//	AdvanceRound  is the oracle's answer; it fixes the outcome and activates the next round
//	ClaimWinnings pays a winning bet from the vault exactly once
//
// Every failure is an *Error sentinel wrapped with context; compare with
// errors.Is.
package table
