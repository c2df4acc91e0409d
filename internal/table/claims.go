package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/roulette/internal/ledger"
)

// ClaimTarget names one bet to claim. Bet may be left empty, in which case
// the claiming player's bet in Round is used.
type ClaimTarget struct {
	Round uint64     `json:"round"`
	Bet   ledger.Key `json:"bet,omitempty"`
}

// Payout is one successful claim.
type Payout struct {
	Bet         ledger.Key `json:"bet"`
	RoundNumber uint64     `json:"round_number"`
	Amount      uint64     `json:"amount"`
}

// ClaimWinnings pays out every target to player. The batch is all or
// nothing: if any target fails, nothing is paid and no bet is marked.
// Marking a bet claimed happens in the same transaction as the payout, so
// a repeated claim always hits ErrWinningsAlreadyClaimed.
func (e *Engine) ClaimWinnings(ctx context.Context, player ledger.Identity, targets ...ClaimTarget) ([]Payout, error) {
	if len(targets) == 0 {
		return nil, ErrNothingToClaim
	}
	if !player.Valid() {
		return nil, fail(ErrInvalidPlayer, "player identity is empty")
	}

	now := e.clock.Now()
	payouts := make([]Payout, 0, len(targets))
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		vault, err := loadVault(tx)
		if err != nil {
			return err
		}
		acct, err := ledger.LoadAccount(tx, player)
		if err != nil {
			return err
		}

		for _, target := range targets {
			payout, err := claimOne(tx, player, target, vault, acct, now)
			if err != nil {
				return err
			}
			payouts = append(payouts, payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(payouts))
	for _, p := range payouts {
		e.logger.Info("Winnings claimed", "player", player, "round", p.RoundNumber, "amount", p.Amount)
		events = append(events, WinningsClaimedEvent{
			Player:      player,
			Bet:         p.Bet,
			RoundNumber: p.RoundNumber,
			Amount:      p.Amount,
			At:          now,
		})
	}
	e.publish(events...)
	return payouts, nil
}

func claimOne(tx ledger.Tx, player ledger.Identity, target ClaimTarget, vault *Vault, acct *ledger.Account, now time.Time) (Payout, error) {
	round, err := loadRound(tx, target.Round, ErrInvalidRound)
	if err != nil {
		return Payout{}, err
	}
	settled, ok := round.Settled()
	if !ok {
		return Payout{}, fail(ErrRoundAwaitingOutcome, "round %d is %s", round.RoundNumber, round.Phase())
	}

	betKey := target.Bet
	if betKey == "" {
		betKey = ledger.BetKey(round.Key(), player)
	}
	var bet Bet
	if err := tx.Get(betKey, &bet); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Payout{}, fail(ErrInvalidBet, "no bet %s in round %d", betKey, round.RoundNumber)
		}
		return Payout{}, err
	}
	if bet.Round != round.Key() || bet.RoundNumber != round.RoundNumber {
		return Payout{}, fail(ErrInvalidBet, "bet %s belongs to round %d", betKey, bet.RoundNumber)
	}
	if bet.Player != player {
		return Payout{}, fail(ErrInvalidPlayer, "bet %s belongs to %s", betKey, bet.Player)
	}
	if bet.IsClaimed {
		return Payout{}, fail(ErrWinningsAlreadyClaimed, "bet %s", betKey)
	}
	if !bet.BetType.IsWinner(settled.Outcome) {
		return Payout{}, fail(ErrBetNotWinning, "%s does not win on %s", bet.BetType, settled.Outcome)
	}

	amount, err := bet.BetType.Payout(bet.Amount)
	if err != nil {
		return Payout{}, fmt.Errorf("%w: %w", ErrMathOverflow, err)
	}
	if vault.Balance < amount {
		return Payout{}, fail(ErrInsufficientVaultFunds, "vault holds %d, payout is %d", vault.Balance, amount)
	}
	if err := transfer(tx, ledger.VaultKey(), vault, ledger.AccountKey(player), acct, amount, ErrInsufficientVaultFunds); err != nil {
		return Payout{}, err
	}

	bet.IsClaimed = true
	bet.ClaimedAt = now
	if err := tx.Put(betKey, &bet); err != nil {
		return Payout{}, err
	}
	return Payout{Bet: betKey, RoundNumber: round.RoundNumber, Amount: amount}, nil
}
