package ledger

import (
	"context"
	"fmt"
)

// Catalog is the stock side of the ledger. Like Accounts, it joins the
// enclosing unit when built over a transactional store.
type Catalog struct {
	store Store
}

// NewCatalog wires Catalog over store.
func NewCatalog(store Store) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	return &Catalog{store: store}, nil
}

// IsAvailable reports whether the item is active, not removed and in stock.
func (catalog *Catalog) IsAvailable(ctx context.Context, itemID ItemID) (bool, error) {
	item, err := catalog.store.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.Available(), nil
}

// ReserveStock takes quantity units out of stock.
func (catalog *Catalog) ReserveStock(ctx context.Context, itemID ItemID, quantity int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	var reserved Item
	err := catalog.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		item, err := transactionStore.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := checkStock(item, quantity); err != nil {
			return err
		}
		reserved, err = transactionStore.UpdateItem(ctx, item.withStock(item.Stock()-quantity))
		return err
	})
	if err != nil {
		return Item{}, err
	}
	return reserved, nil
}

// ReleaseStock returns quantity units to stock. A removed item is left as it
// is and restocked is false.
func (catalog *Catalog) ReleaseStock(ctx context.Context, itemID ItemID, quantity int64) (item Item, restocked bool, err error) {
	if quantity <= 0 {
		return Item{}, false, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	err = catalog.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		locked, lockErr := transactionStore.LockItem(ctx, itemID)
		if lockErr != nil {
			return lockErr
		}
		if locked.Removed() {
			item = locked
			return nil
		}
		updated, updateErr := transactionStore.UpdateItem(ctx, locked.withStock(locked.Stock()+quantity))
		if updateErr != nil {
			return updateErr
		}
		item, restocked = updated, true
		return nil
	})
	if err != nil {
		return Item{}, false, err
	}
	return item, restocked, nil
}

func checkStock(item Item, quantity int64) error {
	if !item.Available() || item.Stock()-quantity < 0 {
		return newOutOfStockError(item, quantity)
	}
	return nil
}
