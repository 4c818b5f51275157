package ledger

import (
	"context"
	"fmt"
	"time"
)

// Accounts is the balance side of the ledger: one wallet per identity, never negative.
//
// Built over a root Store every call is its own atomic unit. Built over the
// txStore handed to a WithTx callback, calls join the enclosing unit.
type Accounts struct {
	store Store
	now   func() time.Time
}

// NewAccounts wires Accounts over store.
func NewAccounts(store Store, now func() time.Time) (*Accounts, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Accounts{store: store, now: now}, nil
}

// GetBalance returns the committed balance of identityID.
func (accounts *Accounts) GetBalance(ctx context.Context, identityID IdentityID) (Tokens, error) {
	wallet, err := accounts.store.GetWallet(ctx, identityID)
	if err != nil {
		return Tokens{}, err
	}
	return wallet.Balance(), nil
}

// HasSufficientBalance reports whether the balance covers amount.
func (accounts *Accounts) HasSufficientBalance(ctx context.Context, identityID IdentityID, amount PositiveTokens) (bool, error) {
	balance, err := accounts.GetBalance(ctx, identityID)
	if err != nil {
		return false, err
	}
	return balance.Covers(amount), nil
}

// AdjustBalance applies delta under the wallet lock. It fails with
// InsufficientFundsError instead of producing a negative balance and with
// BalanceLimitError instead of exceeding MaxTokens.
func (accounts *Accounts) AdjustBalance(ctx context.Context, identityID IdentityID, delta TokenDelta) (Wallet, error) {
	var adjusted Wallet
	err := accounts.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		wallet, err := transactionStore.LockWallet(ctx, identityID)
		if err != nil {
			return err
		}
		balance, ok := wallet.Balance().Apply(delta)
		if !ok {
			requested, _ := delta.Magnitude()
			return newInsufficientFundsError(wallet, requested)
		}
		if balance.ExceedsLimit() {
			requested, _ := delta.Magnitude()
			return BalanceLimitError{Identity: identityID, Balance: wallet.Balance(), Requested: requested, Limit: MaxTokens}
		}
		adjusted, err = transactionStore.UpdateWallet(ctx, wallet.withBalance(balance, accounts.now()))
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	return adjusted, nil
}
