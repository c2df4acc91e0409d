package table

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/lox/roulette/internal/ledger"
)

// Table returns the table record.
func (e *Engine) Table(ctx context.Context) (*Table, error) {
	var t *Table
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		t, err = loadTable(tx)
		return err
	})
	return t, err
}

// Vault returns the vault record.
func (e *Engine) Vault(ctx context.Context) (*Vault, error) {
	var v *Vault
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		v, err = loadVault(tx)
		return err
	})
	return v, err
}

// Round returns round n.
func (e *Engine) Round(ctx context.Context, n uint64) (*Round, error) {
	var r *Round
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		r, err = loadRound(tx, n, ErrInvalidRound)
		return err
	})
	return r, err
}

// ActiveRound returns the round currently open or awaiting its outcome.
func (e *Engine) ActiveRound(ctx context.Context) (*Table, *Round, error) {
	var t *Table
	var r *Round
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		if t, err = loadTable(tx); err != nil {
			return err
		}
		r, err = loadRound(tx, t.CurrentRoundNumber, ErrInvalidRound)
		return err
	})
	return t, r, err
}

// RoundFilter narrows Rounds. Nil fields match everything.
type RoundFilter struct {
	IsSpun *bool
}

// Rounds lists rounds in ascending round number.
func (e *Engine) Rounds(ctx context.Context, filter RoundFilter) ([]*Round, error) {
	var rounds []*Round
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		return tx.Scan(ledger.KindRound, func(_ ledger.Key, decode func(any) error) error {
			var r Round
			if err := decode(&r); err != nil {
				return err
			}
			if filter.IsSpun != nil && r.IsSpun != *filter.IsSpun {
				return nil
			}
			rounds = append(rounds, &r)
			return nil
		})
	})
	sortRounds(rounds)
	return rounds, err
}

// BetFilter narrows Bets. Zero or nil fields match everything.
type BetFilter struct {
	Player    ledger.Identity
	Round     *uint64
	IsClaimed *bool
	// IsWinning matches only bets in resolved rounds.
	IsWinning *bool
}

// Bets lists bets ordered by round then player.
func (e *Engine) Bets(ctx context.Context, filter BetFilter) ([]*Bet, error) {
	var bets []*Bet
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		rounds := make(map[uint64]*Round)
		return tx.Scan(ledger.KindBet, func(_ ledger.Key, decode func(any) error) error {
			var b Bet
			if err := decode(&b); err != nil {
				return err
			}
			if filter.Player != "" && b.Player != filter.Player {
				return nil
			}
			if filter.Round != nil && b.RoundNumber != *filter.Round {
				return nil
			}
			if filter.IsClaimed != nil && b.IsClaimed != *filter.IsClaimed {
				return nil
			}
			if filter.IsWinning != nil {
				r, ok := rounds[b.RoundNumber]
				if !ok {
					var err error
					if r, err = loadRound(tx, b.RoundNumber, ErrInvalidRound); err != nil {
						return err
					}
					rounds[b.RoundNumber] = r
				}
				if !r.Outcome.IsResolved() || b.IsWinning(r) != *filter.IsWinning {
					return nil
				}
			}
			bets = append(bets, &b)
			return nil
		})
	})
	sortBets(bets)
	return bets, err
}

// Bet returns the bet stored at key.
func (e *Engine) Bet(ctx context.Context, key ledger.Key) (*Bet, error) {
	var b Bet
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		if err := tx.Get(key, &b); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fail(ErrInvalidBet, "no bet %s", key)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Account returns the balance held by owner. Unknown owners have a zero balance.
func (e *Engine) Account(ctx context.Context, owner ledger.Identity) (*ledger.Account, error) {
	var acct *ledger.Account
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		acct, err = ledger.LoadAccount(tx, owner)
		return err
	})
	return acct, err
}

// PendingRequest returns the randomness request stored for round n.
func (e *Engine) PendingRequest(ctx context.Context, n uint64) (*SpinRequest, error) {
	var req SpinRequest
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		if err := tx.Get(ledger.SpinRequestKey(n), &req); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fail(ErrNoPendingRequest, "round %d", n)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func sortRounds(rounds []*Round) {
	slices.SortFunc(rounds, func(a, b *Round) int { return cmp.Compare(a.RoundNumber, b.RoundNumber) })
}

func sortBets(bets []*Bet) {
	slices.SortFunc(bets, func(a, b *Bet) int {
		return cmp.Or(cmp.Compare(a.RoundNumber, b.RoundNumber), cmp.Compare(a.Player, b.Player))
	})
}
