package table

import (
	"context"

	"github.com/lox/roulette/internal/ledger"
)

// WithdrawVault moves vault surplus to the admin's account. With no amount
// it withdraws everything above the reserve floor, which may be nothing.
func (e *Engine) WithdrawVault(ctx context.Context, signer ledger.Identity, amount Optional[uint64]) (uint64, error) {
	var withdrawn uint64
	var vault *Vault
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		t, err := loadTable(tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(t, signer); err != nil {
			return err
		}
		if vault, err = loadVault(tx); err != nil {
			return err
		}

		withdrawable := vault.Withdrawable(t.ReserveFloor)
		withdrawn = withdrawable
		if requested, ok := amount.Get(); ok {
			if requested > withdrawable {
				return fail(ErrVaultNotWithdrawable, "requested %d, withdrawable %d", requested, withdrawable)
			}
			withdrawn = requested
		}

		acct, err := ledger.LoadAccount(tx, signer)
		if err != nil {
			return err
		}
		return transfer(tx, ledger.VaultKey(), vault, ledger.AccountKey(signer), acct, withdrawn, ErrInsufficientVaultFunds)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("Vault withdrawn", "admin", signer, "amount", withdrawn, "vault_balance", vault.Balance)
	e.publish(VaultWithdrawnEvent{
		Admin:        signer,
		Amount:       withdrawn,
		VaultBalance: vault.Balance,
		At:           e.clock.Now(),
	})
	return withdrawn, nil
}
