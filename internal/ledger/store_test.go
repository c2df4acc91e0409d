package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string `json:"text"`
	N    int    `json:"n"`
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := OpenSQL(ctx, DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreCommitAndRollback(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("note", []byte("a"))

			err := store.Update(ctx, func(tx Tx) error {
				require.NoError(t, tx.Create(key, note{Text: "first", N: 1}))

				var got note
				require.NoError(t, tx.Get(key, &got), "reads observe own writes")
				assert.Equal(t, "first", got.Text)
				return nil
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			err = store.Update(ctx, func(tx Tx) error {
				require.NoError(t, tx.Put(key, note{Text: "second", N: 2}))
				return boom
			})
			require.ErrorIs(t, err, boom)

			var got note
			require.NoError(t, store.View(ctx, func(tx Tx) error { return tx.Get(key, &got) }))
			assert.Equal(t, note{Text: "first", N: 1}, got, "failed update leaves no trace")
		})
	}
}

func TestStoreCreateConflictsAndMissing(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := DeriveKey("note", []byte("b"))

			require.NoError(t, store.Update(ctx, func(tx Tx) error {
				return tx.Create(key, note{Text: "x"})
			}))
			err := store.Update(ctx, func(tx Tx) error {
				return tx.Create(key, note{Text: "y"})
			})
			assert.ErrorIs(t, err, ErrExists)

			err = store.View(ctx, func(tx Tx) error {
				var n note
				return tx.Get(DeriveKey("note", []byte("missing")), &n)
			})
			assert.ErrorIs(t, err, ErrNotFound)

			err = store.View(ctx, func(tx Tx) error {
				return tx.Put(key, note{})
			})
			assert.Error(t, err, "views are read-only")
		})
	}
}

func TestStoreScan(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Update(ctx, func(tx Tx) error {
				for i := uint64(1); i <= 3; i++ {
					if err := tx.Put(RoundKey(i), note{N: int(i)}); err != nil {
						return err
					}
				}
				return tx.Put(VaultKey(), note{Text: "vault"})
			}))

			var seen []int
			err := store.Update(ctx, func(tx Tx) error {
				// Uncommitted writes are part of the scan.
				require.NoError(t, tx.Put(RoundKey(4), note{N: 4}))
				return tx.Scan(KindRound, func(key Key, decode func(any) error) error {
					assert.Equal(t, KindRound, key.Kind())
					var n note
					if err := decode(&n); err != nil {
						return err
					}
					seen = append(seen, n.N)
					return nil
				})
			})
			require.NoError(t, err)
			assert.ElementsMatch(t, []int{1, 2, 3, 4}, seen)
		})
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	alice, bob := Identity("alice"), Identity("bob")

	require.NoError(t, store.Update(ctx, func(tx Tx) error {
		return tx.Put(AccountKey(alice), &Account{Owner: alice, Balance: 100})
	}))

	move := func(amount uint64) error {
		return store.Update(ctx, func(tx Tx) error {
			from, err := LoadAccount(tx, alice)
			if err != nil {
				return err
			}
			to, err := LoadAccount(tx, bob)
			if err != nil {
				return err
			}
			return Transfer(tx, AccountKey(alice), from, AccountKey(bob), to, amount)
		})
	}

	require.NoError(t, move(60))
	assert.ErrorIs(t, move(41), ErrInsufficientFunds)

	require.NoError(t, store.View(ctx, func(tx Tx) error {
		a, err := LoadAccount(tx, alice)
		require.NoError(t, err)
		b, err := LoadAccount(tx, bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(40), a.Balance)
		assert.Equal(t, uint64(60), b.Balance)
		return nil
	}))
}

func TestAccountCreditOverflow(t *testing.T) {
	t.Parallel()

	acct := &Account{Owner: "whale", Balance: ^uint64(0)}
	assert.ErrorIs(t, acct.Credit(1), ErrOverflow)
	assert.Equal(t, ^uint64(0), acct.Balance)
}

func TestDerivedKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoundKey(7), RoundKey(7))
	assert.NotEqual(t, RoundKey(7), RoundKey(8))
	assert.Equal(t, KindBet, BetKey(RoundKey(1), "alice").Kind())
	assert.NotEqual(t, BetKey(RoundKey(1), "alice"), BetKey(RoundKey(2), "alice"))
	assert.NotEqual(t, BetKey(RoundKey(1), "alice"), BetKey(RoundKey(1), "bob"))

	// Length prefixes keep seed boundaries unambiguous.
	assert.NotEqual(t, DeriveKey("x", []byte("ab"), []byte("c")), DeriveKey("x", []byte("a"), []byte("bc")))

	parsed, err := ParseKey(string(VaultKey()))
	require.NoError(t, err)
	assert.Equal(t, VaultKey(), parsed)

	_, err = ParseKey("vault")
	assert.Error(t, err)
	_, err = ParseKey("vault/not-a-uuid")
	assert.Error(t, err)
}
