package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestCatalogReserveStock(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		stock     int64
		active    bool
		quantity  int64
		wantStock int64
		wantErr   error
	}{
		{name: "takes units", stock: 3, active: true, quantity: 2, wantStock: 1},
		{name: "takes the last unit", stock: 1, active: true, quantity: 1, wantStock: 0},
		{name: "not enough units", stock: 1, active: true, quantity: 2, wantStock: 1, wantErr: ErrOutOfStock},
		{name: "inactive", stock: 5, active: false, quantity: 1, wantStock: 5, wantErr: ErrOutOfStock},
		{name: "zero quantity", stock: 5, active: true, quantity: 0, wantStock: 5, wantErr: ErrInvalidQuantity},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			itemID := store.seedItem(test, notebookName, "4.00", testCase.stock, testCase.active)
			catalog, err := NewCatalog(store)
			if err != nil {
				test.Fatalf("new catalog: %v", err)
			}

			_, err = catalog.ReserveStock(context.Background(), itemID, testCase.quantity)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMsg, testCase.wantErr, err)
			}
			if got := store.mustItem(test, itemID).Stock(); got != testCase.wantStock {
				test.Fatalf("expected stock %d, got %d", testCase.wantStock, got)
			}
		})
	}
}

func TestCatalogReleaseStock(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	itemID := store.seedItem(test, notebookName, "4.00", 0, true)
	catalog, err := NewCatalog(store)
	if err != nil {
		test.Fatalf("new catalog: %v", err)
	}

	item, restocked, err := catalog.ReleaseStock(context.Background(), itemID, 2)
	if err != nil {
		test.Fatalf("release: %v", err)
	}
	if !restocked || item.Stock() != 2 {
		test.Fatalf("expected restock to 2, got %d restocked=%t", item.Stock(), restocked)
	}
	available, err := catalog.IsAvailable(context.Background(), itemID)
	if err != nil || !available {
		test.Fatalf("expected item available after restock, got %t %v", available, err)
	}

	store.items[itemID] = store.mustItem(test, itemID).withRemoved()
	item, restocked, err = catalog.ReleaseStock(context.Background(), itemID, 1)
	if err != nil {
		test.Fatalf("release removed: %v", err)
	}
	if restocked || item.Stock() != 2 {
		test.Fatalf("expected removed item untouched, got %d restocked=%t", item.Stock(), restocked)
	}
	if _, _, err := catalog.ReleaseStock(context.Background(), mustItemID(test, "missing"), 1); !errors.Is(err, ErrNotFound) {
		test.Fatalf(errorMismatchMsg, ErrNotFound, err)
	}
}

func TestCatalogPropagatesVersionConflicts(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	itemID := store.seedItem(test, notebookName, "4.00", 3, true)
	store.updateItemError = ErrConcurrentModification
	catalog, err := NewCatalog(store)
	if err != nil {
		test.Fatalf("new catalog: %v", err)
	}
	if _, err := catalog.ReserveStock(context.Background(), itemID, 1); !IsRetryable(err) {
		test.Fatalf("expected retryable error, got %v", err)
	}
	if store.mustItem(test, itemID).Stock() != 3 {
		test.Fatalf("expected stock unchanged")
	}
}

func TestNewCatalogRequiresStore(test *testing.T) {
	test.Parallel()
	if _, err := NewCatalog(nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf(errorMismatchMsg, ErrInvalidServiceConfig, err)
	}
}
