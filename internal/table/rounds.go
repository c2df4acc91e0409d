package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/oracle"
	"github.com/lox/roulette/internal/wheel"
)

// PlaceBet escrows amount from the player's account into the vault and
// records the bet against the active round.
func (e *Engine) PlaceBet(ctx context.Context, player ledger.Identity, betType wheel.BetType, amount uint64) (*Bet, error) {
	if !player.Valid() {
		return nil, fail(ErrInvalidPlayer, "player identity is empty")
	}

	now := e.clock.Now()
	var bet *Bet
	var round *Round
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		if amount < t.MinimumBetAmount {
			return fail(ErrInvalidBetAmount, "%d is below the minimum of %d", amount, t.MinimumBetAmount)
		}
		if round, err = loadRound(tx, t.CurrentRoundNumber, ErrInvalidRound); err != nil {
			return err
		}
		if round.IsSpun {
			return fail(ErrRoundAlreadySpun, "round %d", round.RoundNumber)
		}
		if !now.Before(t.NextRoundDeadline) {
			return fail(ErrRoundOver, "round %d closed at %s", round.RoundNumber, t.NextRoundDeadline.Format("15:04:05"))
		}
		if !betType.IsValid() {
			return fail(ErrInvalidBetType, "%s", betType)
		}

		bet = &Bet{
			Player:      player,
			Round:       round.Key(),
			RoundNumber: round.RoundNumber,
			Amount:      amount,
			BetType:     betType,
			PlacedAt:    now,
		}
		exists, err := ledger.Exists(tx, bet.Key())
		if err != nil {
			return err
		}
		if exists {
			return fail(ErrBetAlreadyPlaced, "%s in round %d", player, round.RoundNumber)
		}

		if round.PoolAmount, err = checkedAdd(round.PoolAmount, amount); err != nil {
			return err
		}

		acct, err := ledger.LoadAccount(tx, player)
		if err != nil {
			return err
		}
		vault, err := loadVault(tx)
		if err != nil {
			return err
		}
		if err := transfer(tx, ledger.AccountKey(player), acct, ledger.VaultKey(), vault, amount, ErrInsufficientFunds); err != nil {
			return err
		}

		if err := tx.Put(round.Key(), round); err != nil {
			return err
		}
		return tx.Create(bet.Key(), bet)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Bet placed", "player", player, "round", bet.RoundNumber, "bet", betType, "amount", amount)
	e.publish(BetPlacedEvent{
		Player:      player,
		Bet:         bet.Key(),
		RoundNumber: bet.RoundNumber,
		BetType:     betType,
		Amount:      amount,
		PoolAmount:  round.PoolAmount,
		At:          now,
	})
	return bet, nil
}

// SpinRound closes the active round once its deadline has passed, opens the
// record for the next round and asks the oracle for randomness. Anyone may
// spin. The returned request is also stored: if dispatch fails the spin
// still stands, the failure is logged and ResendRequest (or the keeper)
// delivers it later. An error therefore always means nothing was applied.
func (e *Engine) SpinRound(ctx context.Context, caller ledger.Identity, callerSeed oracle.Seed) (oracle.Request, error) {
	req, err := e.spin(ctx, caller, callerSeed)
	if err != nil {
		return oracle.Request{}, err
	}
	if err := e.requester.RequestRandomness(ctx, req); err != nil {
		e.logger.Warn("Randomness request not delivered, awaiting resend", "round", req.Round, "request_id", req.ID, "error", err)
	}
	return req, nil
}

func (e *Engine) spin(ctx context.Context, caller ledger.Identity, callerSeed oracle.Seed) (oracle.Request, error) {
	if !caller.Valid() {
		return oracle.Request{}, fail(ErrInvalidPlayer, "caller identity is empty")
	}

	now := e.clock.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return oracle.Request{}, fmt.Errorf("request id: %w", err)
	}

	var req oracle.Request
	var pool uint64
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err = e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		round, err := loadRound(tx, t.CurrentRoundNumber, ErrInvalidRound)
		if err != nil {
			return err
		}
		if round.IsSpun {
			return fail(ErrRoundAlreadySpun, "round %d", round.RoundNumber)
		}
		if now.Before(t.NextRoundDeadline) {
			return fail(ErrRoundNotReadyToSpin, "round %d can spin at %s", round.RoundNumber, t.NextRoundDeadline.Format("15:04:05"))
		}
		next, err := checkedAdd(round.RoundNumber, 1)
		if err != nil {
			return err
		}

		round.IsSpun = true
		round.SpunAt = now
		pool = round.PoolAmount
		if err := tx.Put(round.Key(), round); err != nil {
			return err
		}
		if err := tx.Create(ledger.RoundKey(next), &Round{RoundNumber: next, OpenedAt: now}); err != nil {
			return err
		}

		req = oracle.Request{
			ID:         id,
			Round:      round.RoundNumber,
			CallerSeed: callerSeed,
			Resolver:   e.oracleID,
			Writable: []ledger.Key{
				ledger.TableKey(),
				round.Key(),
				ledger.RoundKey(next),
				ledger.SpinRequestKey(round.RoundNumber),
			},
			RequestedAt: now,
		}
		return tx.Create(ledger.SpinRequestKey(round.RoundNumber), &SpinRequest{Request: req})
	})
	if err != nil {
		return oracle.Request{}, err
	}

	e.logger.Info("Round spun", "round", req.Round, "caller", caller, "pool", pool, "request_id", req.ID)
	e.publish(RoundSpunEvent{
		RoundNumber: req.Round,
		Caller:      caller,
		PoolAmount:  pool,
		RequestID:   req.ID.String(),
		At:          now,
	})
	return req, nil
}

// ResendRequest re-dispatches the stored request for round n if it has not
// been answered yet.
func (e *Engine) ResendRequest(ctx context.Context, n uint64) error {
	req, err := e.PendingRequest(ctx, n)
	if err != nil {
		return err
	}
	if req.Consumed {
		return fail(ErrRequestAlreadyConsumed, "round %d", n)
	}
	e.logger.Warn("Re-sending randomness request", "round", n, "request_id", req.ID)
	return e.requester.RequestRandomness(ctx, req.Request)
}

// AdvanceRound resolves the spun round with the oracle's randomness and makes
// the next round active. Only the oracle may call it, and each spin can be
// resolved once: replays are rejected because the round number no longer
// matches the table.
func (e *Engine) AdvanceRound(ctx context.Context, signer ledger.Identity, roundNumber uint64, randomness oracle.Seed) error {
	if signer != e.oracleID {
		return fail(ErrUnauthorizedOracle, "%q", signer)
	}

	now := e.clock.Now()
	var event RoundAdvancedEvent
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		if roundNumber != t.CurrentRoundNumber {
			return fail(ErrInvalidRound, "round %d is not the current round %d", roundNumber, t.CurrentRoundNumber)
		}
		round, err := loadRound(tx, roundNumber, ErrInvalidRound)
		if err != nil {
			return err
		}
		if !round.IsSpun {
			return fail(ErrRoundNotSpun, "round %d", roundNumber)
		}
		if round.Outcome.IsResolved() {
			return fail(ErrInvalidRound, "round %d is already resolved", roundNumber)
		}

		var req SpinRequest
		if err := tx.Get(ledger.SpinRequestKey(roundNumber), &req); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fail(ErrNoPendingRequest, "round %d", roundNumber)
			}
			return err
		}
		if req.Consumed {
			return fail(ErrRequestAlreadyConsumed, "round %d", roundNumber)
		}
		if req.Resolver != signer {
			return fail(ErrUnauthorizedOracle, "request for round %d names %q", roundNumber, req.Resolver)
		}

		next, err := checkedAdd(t.CurrentRoundNumber, 1)
		if err != nil {
			return err
		}

		pocket := wheel.PocketFromRandomness(randomness)
		round.Outcome = Resolved(pocket)
		round.ResolvedAt = now
		req.Consumed = true
		req.ConsumedAt = now
		t.CurrentRoundNumber = next
		t.NextRoundDeadline = now.Add(t.RoundPeriod)

		if err := tx.Put(round.Key(), round); err != nil {
			return err
		}
		if err := tx.Put(ledger.SpinRequestKey(roundNumber), &req); err != nil {
			return err
		}
		if err := tx.Put(ledger.TableKey(), t); err != nil {
			return err
		}

		event = RoundAdvancedEvent{
			RoundNumber:       roundNumber,
			Outcome:           pocket,
			NextRoundNumber:   next,
			NextRoundDeadline: t.NextRoundDeadline,
			At:                now,
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Round advanced", "round", roundNumber, "outcome", event.Outcome, "color", event.Outcome.Color(), "next_round", event.NextRoundNumber)
	e.publish(event)
	return nil
}
