package table

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lox/roulette/internal/ledger"
	"github.com/lox/roulette/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTable(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.engine.InitializeTable(h.ctx, testAdmin, 0, testPeriod, 0)
		assert.ErrorIs(t, err, ErrInvalidMinimumBetAmount)
		_, err = h.engine.InitializeTable(h.ctx, testAdmin, 10, 0, 0)
		assert.ErrorIs(t, err, ErrInvalidRoundPeriod)
		_, err = h.engine.InitializeTable(h.ctx, "", 10, testPeriod, 0)
		assert.ErrorIs(t, err, ErrInvalidAdmin)

		_, err = h.engine.Table(h.ctx)
		assert.ErrorIs(t, err, ErrTableNotInitialized)
	})

	t.Run("creates the first round and seeds the vault", func(t *testing.T) {
		h := newTable(t)

		tbl, err := h.engine.Table(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, testAdmin, tbl.Admin)
		assert.Equal(t, uint64(1), tbl.CurrentRoundNumber)
		assert.Equal(t, h.clock.Now().Add(testPeriod), tbl.NextRoundDeadline)
		assert.Equal(t, uint64(testFloor), h.vaultBalance())

		round, err := h.engine.Round(h.ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, PhaseOpen, round.Phase())
	})

	t.Run("only once", func(t *testing.T) {
		h := newTable(t)
		_, err := h.engine.InitializeTable(h.ctx, "mallory", 1, time.Second, 0)
		require.ErrorIs(t, err, ErrTableAlreadyInitialized)

		tbl, err := h.engine.Table(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, testAdmin, tbl.Admin)
	})
}

func TestUpdateTable(t *testing.T) {
	t.Run("applies only supplied fields", func(t *testing.T) {
		h := newTable(t)

		tbl, err := h.engine.UpdateTable(h.ctx, testAdmin, TableUpdate{MinimumBetAmount: Some[uint64](25)})
		require.NoError(t, err)
		assert.Equal(t, uint64(25), tbl.MinimumBetAmount)
		assert.Equal(t, testPeriod, tbl.RoundPeriod)
		assert.Equal(t, testAdmin, tbl.Admin)

		tbl, err = h.engine.UpdateTable(h.ctx, testAdmin, TableUpdate{
			RoundPeriod: Some(time.Minute),
			NewAdmin:    Some[ledger.Identity]("root"),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(25), tbl.MinimumBetAmount)
		assert.Equal(t, time.Minute, tbl.RoundPeriod)
		assert.Equal(t, ledger.Identity("root"), tbl.Admin)

		_, err = h.engine.UpdateTable(h.ctx, testAdmin, TableUpdate{MinimumBetAmount: Some[uint64](1)})
		require.ErrorIs(t, err, ErrUnauthorizedAdmin, "old admin lost its rights")
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		h := newTable(t)

		tests := []struct {
			name   string
			update TableUpdate
			want   error
		}{
			{"zero minimum", TableUpdate{MinimumBetAmount: Some[uint64](0)}, ErrInvalidMinimumBetAmount},
			{"zero period", TableUpdate{RoundPeriod: Some[time.Duration](0)}, ErrInvalidRoundPeriod},
			{"negative period", TableUpdate{RoundPeriod: Some(-time.Second)}, ErrInvalidRoundPeriod},
			{"empty admin", TableUpdate{NewAdmin: Some[ledger.Identity]("")}, ErrInvalidAdmin},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.engine.UpdateTable(h.ctx, testAdmin, tt.update)
				require.ErrorIs(t, err, tt.want)
			})
		}

		_, err := h.engine.UpdateTable(h.ctx, "mallory", TableUpdate{MinimumBetAmount: Some[uint64](1)})
		require.ErrorIs(t, err, ErrUnauthorizedAdmin)
	})

	t.Run("decodes absent fields as untouched", func(t *testing.T) {
		var update TableUpdate
		require.NoError(t, json.Unmarshal([]byte(`{"minimum_bet_amount":5,"new_admin":null}`), &update))
		assert.True(t, update.MinimumBetAmount.IsSet())
		assert.False(t, update.RoundPeriod.IsSet())
		assert.False(t, update.NewAdmin.IsSet())
	})
}

func TestWithdrawVault(t *testing.T) {
	withSurplus := func(t *testing.T) *harness {
		h := newTable(t)
		h.fund("alice", 500)
		_, err := h.engine.PlaceBet(h.ctx, "alice", wheel.StraightUp(0), 500)
		require.NoError(t, err)
		h.resolve(36)
		return h
	}

	t.Run("explicit amount above the surplus is rejected", func(t *testing.T) {
		h := withSurplus(t)
		_, err := h.engine.WithdrawVault(h.ctx, testAdmin, Some[uint64](501))
		require.ErrorIs(t, err, ErrVaultNotWithdrawable)
		assert.Equal(t, uint64(testFloor+500), h.vaultBalance())
	})

	t.Run("explicit amount", func(t *testing.T) {
		h := withSurplus(t)
		got, err := h.engine.WithdrawVault(h.ctx, testAdmin, Some[uint64](200))
		require.NoError(t, err)
		assert.Equal(t, uint64(200), got)
		assert.Equal(t, uint64(200), h.balance(testAdmin))
		assert.Equal(t, uint64(testFloor+300), h.vaultBalance())
	})

	t.Run("absent amount takes the whole surplus", func(t *testing.T) {
		h := withSurplus(t)
		got, err := h.engine.WithdrawVault(h.ctx, testAdmin, None[uint64]())
		require.NoError(t, err)
		assert.Equal(t, uint64(500), got)
		assert.Equal(t, uint64(testFloor), h.vaultBalance())

		// Nothing left above the floor.
		got, err = h.engine.WithdrawVault(h.ctx, testAdmin, None[uint64]())
		require.NoError(t, err)
		assert.Zero(t, got)
		_, err = h.engine.WithdrawVault(h.ctx, testAdmin, Some[uint64](1))
		require.ErrorIs(t, err, ErrVaultNotWithdrawable)
	})

	t.Run("admin only", func(t *testing.T) {
		h := withSurplus(t)
		_, err := h.engine.WithdrawVault(h.ctx, "alice", None[uint64]())
		require.ErrorIs(t, err, ErrUnauthorizedAdmin)
	})
}

func TestWithdrawableSaturates(t *testing.T) {
	t.Parallel()

	v := &Vault{Balance: 10}
	assert.Zero(t, v.Withdrawable(20))
	assert.Equal(t, uint64(4), v.Withdrawable(6))
}

func TestFundAccount(t *testing.T) {
	h := newTable(t)

	_, err := h.engine.FundAccount(h.ctx, "alice", "alice", 100)
	require.ErrorIs(t, err, ErrUnauthorizedAdmin)
	_, err = h.engine.FundAccount(h.ctx, testAdmin, "alice", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	acct, err := h.engine.FundAccount(h.ctx, testAdmin, "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.Balance)

	_, err = h.engine.FundAccount(h.ctx, testAdmin, "alice", ^uint64(0))
	require.ErrorIs(t, err, ErrMathOverflow)
	assert.Equal(t, uint64(100), h.balance("alice"))
}

func TestErrorCodes(t *testing.T) {
	t.Parallel()

	wrapped := fail(ErrRoundOver, "round %d", 3)
	assert.True(t, errors.Is(wrapped, ErrRoundOver))
	assert.False(t, errors.Is(wrapped, ErrRoundAlreadySpun))
	assert.Contains(t, wrapped.Error(), "round 3")

	rebuilt, ok := ErrorByCode("RoundOver")
	require.True(t, ok)
	assert.ErrorIs(t, &Error{Code: rebuilt.Code, Kind: rebuilt.Kind, msg: "from the wire"}, ErrRoundOver)

	_, ok = ErrorByCode("Nope")
	assert.False(t, ok)

	seen := map[string]bool{}
	for _, e := range allErrors {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}
