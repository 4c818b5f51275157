package ledger

import (
	"context"
	"fmt"
)

// Read-only views. None of them take locks or join an engine unit.

// Wallet returns the committed wallet of identityID.
func (service *Service) Wallet(ctx context.Context, identityID IdentityID) (Wallet, error) {
	return service.store.GetWallet(ctx, identityID)
}

// Identity returns a provisioned identity.
func (service *Service) Identity(ctx context.Context, identityID IdentityID) (Identity, error) {
	return service.store.GetIdentity(ctx, identityID)
}

// Item returns a catalog item, removed or not.
func (service *Service) Item(ctx context.Context, itemID ItemID) (Item, error) {
	return service.store.GetItem(ctx, itemID)
}

// RecentActivity lists entries where identityID is sender or receiver, newest first.
// A non-positive limit selects the default.
func (service *Service) RecentActivity(ctx context.Context, identityID IdentityID, limit int) ([]Entry, error) {
	normalizedLimit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if _, err := service.store.GetIdentity(ctx, identityID); err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, EntryFilter{Identity: identityID, Limit: normalizedLimit})
}

// RunningTotals sums what identityID received (credits) and sent (debits),
// read from a single committed snapshot of the ledger.
func (service *Service) RunningTotals(ctx context.Context, identityID IdentityID) (Totals, error) {
	if _, err := service.store.GetIdentity(ctx, identityID); err != nil {
		return Totals{}, err
	}
	return service.store.SumEntries(ctx, identityID)
}

// LowStock lists active items whose stock is below threshold, lowest first.
func (service *Service) LowStock(ctx context.Context, threshold int64) ([]Item, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	return service.store.ListItems(ctx, ItemFilter{StockBelow: threshold})
}

// AvailableItems lists items that can be purchased, ordered by name.
func (service *Service) AvailableItems(ctx context.Context) ([]Item, error) {
	return service.store.ListItems(ctx, ItemFilter{AvailableOnly: true})
}

// CatalogItems lists every item, including inactive and removed ones,
// ordered by name. Requires the admin-operations capability.
func (service *Service) CatalogItems(ctx context.Context, actorID IdentityID) ([]Item, error) {
	if err := service.Authorize(ctx, actorID, CapabilityAdminOperations); err != nil {
		return nil, err
	}
	return service.store.ListItems(ctx, ItemFilter{IncludeRemoved: true})
}

// LedgerActivity lists the whole ledger, newest first. Requires the
// admin-operations capability.
func (service *Service) LedgerActivity(ctx context.Context, actorID IdentityID, limit int) ([]Entry, error) {
	normalizedLimit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if err := service.Authorize(ctx, actorID, CapabilityAdminOperations); err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, EntryFilter{Limit: normalizedLimit})
}

// Wallets lists every wallet ordered by identity. Requires the
// admin-operations capability.
func (service *Service) Wallets(ctx context.Context, actorID IdentityID) ([]Wallet, error) {
	if err := service.Authorize(ctx, actorID, CapabilityAdminOperations); err != nil {
		return nil, err
	}
	return service.store.ListWallets(ctx)
}

func normalizeLimit(limit int) (int, error) {
	if limit <= 0 {
		return defaultActivityLimit, nil
	}
	if limit > maxActivityLimit {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidLimit, limit, maxActivityLimit)
	}
	return limit, nil
}
