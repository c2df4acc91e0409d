// Package ledger is the transactional record store the table engine runs on.
//
// Records are JSON documents addressed by deterministic keys. All mutations
// happen inside Store.Update: the callback's writes become visible together
// when it returns nil and are discarded when it returns an error, so an
// operation either fully applies or leaves no trace.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Tx.Get when no record exists at the key.
	ErrNotFound = errors.New("ledger: record not found")

	// ErrExists is returned by Tx.Create when the key is already taken.
	ErrExists = errors.New("ledger: record already exists")

	// ErrInsufficientFunds is returned by Transfer when the source cannot cover the amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrOverflow is returned by Transfer when the destination balance would wrap.
	ErrOverflow = errors.New("ledger: balance overflow")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ledger: store closed")
)

// Identity names a party that can sign operations or own funds.
type Identity string

// Valid reports whether the identity is usable as a signer.
func (id Identity) Valid() bool { return id != "" }

// Store is a transactional record store.
type Store interface {
	// Update runs fn in a read-write transaction. Writes commit only if fn returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is a view of the store within one transaction. Reads observe the
// transaction's own earlier writes.
type Tx interface {
	// Get decodes the record at key into v, or returns ErrNotFound.
	Get(key Key, v any) error
	// Put writes v at key, replacing any existing record.
	Put(key Key, v any) error
	// Create writes v at key, or returns ErrExists if the key is taken.
	Create(key Key, v any) error
	// Scan calls fn with every record of kind in key order. Returning an
	// error from fn stops the scan and is passed through.
	Scan(kind Kind, fn func(key Key, decode func(v any) error) error) error
}

// Exists reports whether a record is stored at key.
func Exists(tx Tx, key Key) (bool, error) {
	var raw rawRecord
	err := tx.Get(key, &raw)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// rawRecord accepts any JSON document without decoding it.
type rawRecord struct{}

func (*rawRecord) UnmarshalJSON([]byte) error { return nil }

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// Open returns the store for driver: "memory", "sqlite3" or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	if driver == DriverMemory || driver == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQL(ctx, driver, dsn)
}
