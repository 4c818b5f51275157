package ledger

import (
	"fmt"
	"time"
)

// Wallet is the token balance owned by one identity.
type Wallet struct {
	identity    IdentityID
	balance     Tokens
	lastUpdated time.Time
	version     int64
}

// NewWallet validates a stored wallet row.
func NewWallet(identity IdentityID, balance Tokens, lastUpdated time.Time, version int64) (Wallet, error) {
	if identity.IsZero() {
		return Wallet{}, fmt.Errorf("%w: empty value", ErrInvalidIdentityID)
	}
	if balance.Decimal().IsNegative() {
		return Wallet{}, fmt.Errorf("%w: negative balance", ErrInvalidAmount)
	}
	if lastUpdated.IsZero() {
		return Wallet{}, fmt.Errorf("%w: last updated is zero", ErrInvalidTimestamp)
	}
	if version < 0 {
		return Wallet{}, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	return Wallet{identity: identity, balance: balance, lastUpdated: lastUpdated.UTC(), version: version}, nil
}

// OpenWallet returns the empty wallet created alongside a new identity.
func OpenWallet(identity Identity) Wallet {
	return Wallet{identity: identity.ID(), lastUpdated: identity.CreatedAt()}
}

// Identity returns the owning identity.
func (wallet Wallet) Identity() IdentityID {
	return wallet.identity
}

// Balance returns the current balance.
func (wallet Wallet) Balance() Tokens {
	return wallet.balance
}

// LastUpdated returns when the balance last changed.
func (wallet Wallet) LastUpdated() time.Time {
	return wallet.lastUpdated
}

// Version returns the optimistic concurrency counter.
func (wallet Wallet) Version() int64 {
	return wallet.version
}

// NextVersion is the copy a store returns after persisting wallet.
func (wallet Wallet) NextVersion() Wallet {
	wallet.version++
	return wallet
}

func (wallet Wallet) withBalance(balance Tokens, at time.Time) Wallet {
	wallet.balance = balance
	wallet.lastUpdated = at
	return wallet
}
