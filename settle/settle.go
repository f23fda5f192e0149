// Package settle keeps account balances and moves value between them. It is
// the boundary the escrow engine pushes funds across: deposits move payer
// money into the vault account, releases and refunds move it back out.
//
// Both backends apply a Move's legs in one transaction, so a multi-leg
// payout (beneficiary plus protocol fee) either fully settles or not at all.
package settle

import (
	"context"
	"errors"

	"vaultflow/escrow"
)

var (
	// ErrUnknownAccount means the source account has never been opened.
	ErrUnknownAccount = errors.New("settle: unknown account")
	// ErrInsufficientFunds means the source balance cannot cover the legs.
	ErrInsufficientFunds = errors.New("settle: insufficient funds")
	// ErrInvalidAmount rejects zero-value credits and moves.
	ErrInvalidAmount = errors.New("settle: invalid amount")
)

// Ledger is a balance store. Open is idempotent; Credit mints value onto an
// account; Move atomically debits from and credits every payment leg,
// opening recipient accounts as needed.
type Ledger interface {
	Open(ctx context.Context, addr escrow.Address) error
	Credit(ctx context.Context, addr escrow.Address, amount uint64) error
	Move(ctx context.Context, from escrow.Address, payments ...escrow.Payment) error
	Balance(ctx context.Context, addr escrow.Address) (uint64, error)
}

// VaultTransferor adapts a Ledger to escrow.Transferor: every payout the
// engine requests is a Move out of the vault's own account.
type VaultTransferor struct {
	ledger Ledger
	vault  escrow.Address
}

func NewVaultTransferor(ledger Ledger, vault escrow.Address) *VaultTransferor {
	return &VaultTransferor{ledger: ledger, vault: vault}
}

func (v *VaultTransferor) Transfer(ctx context.Context, payments ...escrow.Payment) error {
	return v.ledger.Move(ctx, v.vault, payments...)
}

// Vault returns the vault account address payouts are drawn from.
func (v *VaultTransferor) Vault() escrow.Address {
	return v.vault
}

func paymentsTotal(payments []escrow.Payment) (uint64, error) {
	var total uint64
	for _, p := range payments {
		if p.Amount == 0 {
			return 0, ErrInvalidAmount
		}
		if !p.To.IsValid() {
			return 0, ErrUnknownAccount
		}
		if total+p.Amount < total {
			return 0, ErrInvalidAmount
		}
		total += p.Amount
	}
	if total == 0 {
		return 0, ErrInvalidAmount
	}
	return total, nil
}
