package ledger

import (
	"errors"
	"fmt"
	"math/bits"
)

// Account is a balance held on behalf of an identity.
type Account struct {
	Owner   Identity `json:"owner"`
	Balance uint64   `json:"balance"`
}

// Balances is implemented by every record that custodies funds.
type Balances interface {
	Debit(amount uint64) error
	Credit(amount uint64) error
}

// Debit removes amount, failing closed if the balance cannot cover it.
func (a *Account) Debit(amount uint64) error {
	if amount > a.Balance {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, a.Owner, a.Balance, amount)
	}
	a.Balance -= amount
	return nil
}

// Credit adds amount, failing if the balance would wrap.
func (a *Account) Credit(amount uint64) error {
	sum, carry := bits.Add64(a.Balance, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: crediting %d to %s", ErrOverflow, amount, a.Owner)
	}
	a.Balance = sum
	return nil
}

// LoadAccount returns the account stored for owner, or an empty one if
// nothing has been credited yet.
func LoadAccount(tx Tx, owner Identity) (*Account, error) {
	acct := &Account{Owner: owner}
	if err := tx.Get(AccountKey(owner), acct); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return acct, nil
}

// Transfer moves amount between two balance records inside tx. Both records
// are read, adjusted and written back, so the move is atomic with whatever
// else the transaction does. Nothing is written if either side fails.
func Transfer(tx Tx, fromKey Key, from Balances, toKey Key, to Balances, amount uint64) error {
	if err := from.Debit(amount); err != nil {
		return err
	}
	if err := to.Credit(amount); err != nil {
		return err
	}
	if err := tx.Put(fromKey, from); err != nil {
		return fmt.Errorf("write %s: %w", fromKey, err)
	}
	if err := tx.Put(toKey, to); err != nil {
		return fmt.Errorf("write %s: %w", toKey, err)
	}
	return nil
}
