package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecentActivityOrdersNewestFirstAndLimits(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	otherID := store.seedIdentity(test, "student-2", RoleStudent, "0")
	current := testClockTime
	service, err := NewService(store, func() time.Time {
		current = current.Add(time.Second)
		return current
	})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	for _, raw := range []string{"1.00", "2.00", "3.00"} {
		if _, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, raw), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
			test.Fatalf("credit %s: %v", raw, err)
		}
	}
	if _, err := service.Credit(context.Background(), adminID, otherID, mustPositiveTokens(test, "9.00"), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
		test.Fatalf("credit other: %v", err)
	}

	entries, err := service.RecentActivity(context.Background(), studentID, 2)
	if err != nil {
		test.Fatalf("recent activity: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Amount().String() != "3.00" || entries[1].Amount().String() != "2.00" {
		test.Fatalf("expected newest first, got %s then %s", entries[0].Amount(), entries[1].Amount())
	}

	all, err := service.RecentActivity(context.Background(), studentID, 0)
	if err != nil {
		test.Fatalf("recent activity default: %v", err)
	}
	if len(all) != 3 {
		test.Fatalf("expected 3 entries for student, got %d", len(all))
	}
}

func TestRecentActivityBreaksTimestampTiesBySequence(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	service := mustNewService(test, store)

	for _, raw := range []string{"1.00", "2.00"} {
		if _, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, raw), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
			test.Fatalf("credit %s: %v", raw, err)
		}
	}
	entries, err := service.RecentActivity(context.Background(), studentID, 10)
	if err != nil {
		test.Fatalf("recent activity: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence() < entries[1].Sequence() {
		test.Fatalf("expected higher sequence first, got %+v", entries)
	}
}

func TestRecentActivityValidatesInput(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	service := mustNewService(test, store)

	if _, err := service.RecentActivity(context.Background(), studentID, maxActivityLimit+1); !errors.Is(err, ErrInvalidLimit) {
		test.Fatalf(errorMismatchMsg, ErrInvalidLimit, err)
	}
	if _, err := service.RecentActivity(context.Background(), mustIdentityID(test, "ghost"), 5); !errors.Is(err, ErrNotFound) {
		test.Fatalf(errorMismatchMsg, ErrNotFound, err)
	}
	entries, err := service.RecentActivity(context.Background(), studentID, 5)
	if err != nil {
		test.Fatalf("recent activity: %v", err)
	}
	if len(entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestRunningTotalsMatchBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	itemID := store.seedItem(test, notebookName, "30.00", 3, true)
	service := mustNewService(test, store)

	if _, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, "100.00"), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{}); err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if _, err := service.Penalty(context.Background(), adminID, studentID, mustPositiveTokens(test, "5.50"), mustDescription(test, "late"), MetadataJSON{}); err != nil {
		test.Fatalf("penalty: %v", err)
	}
	if _, err := service.Refund(context.Background(), adminID, studentID, itemID, mustPositiveTokens(test, "30.00"), mustDescription(test, "returned"), MetadataJSON{}); err != nil {
		test.Fatalf("refund: %v", err)
	}

	totals, err := service.RunningTotals(context.Background(), studentID)
	if err != nil {
		test.Fatalf("running totals: %v", err)
	}
	if totals.Credits.String() != "130.00" || totals.Debits.String() != "35.50" {
		test.Fatalf("unexpected totals credits=%s debits=%s", totals.Credits, totals.Debits)
	}
	if totals.Net().String() != "94.50" {
		test.Fatalf("expected net 94.50, got %s", totals.Net())
	}
	wallet, err := service.Wallet(context.Background(), studentID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	if !wallet.Balance().Decimal().Equal(totals.Net().Decimal()) {
		test.Fatalf("expected balance %s to equal net %s", wallet.Balance(), totals.Net())
	}
}

func TestRunningTotalsForUnknownIdentity(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	if _, err := service.RunningTotals(context.Background(), mustIdentityID(test, "ghost")); !errors.Is(err, ErrNotFound) {
		test.Fatalf(errorMismatchMsg, ErrNotFound, err)
	}
}

func TestLowStockListsActiveItemsBelowThreshold(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	store.seedItem(test, "Eraser", "1.00", 2, true)
	store.seedItem(test, "Pen", "1.00", 0, true)
	store.seedItem(test, "Ruler", "1.00", 1, false)
	store.seedItem(test, "Stapler", "1.00", 7, true)
	removedID := store.seedItem(test, "Glue", "1.00", 1, true)
	service := mustNewService(test, store)
	if _, err := service.RemoveItem(context.Background(), adminID, removedID); err != nil {
		test.Fatalf("remove: %v", err)
	}

	items, err := service.LowStock(context.Background(), 5)
	if err != nil {
		test.Fatalf("low stock: %v", err)
	}
	if len(items) != 2 {
		test.Fatalf("expected 2 low stock items, got %d", len(items))
	}
	if items[0].Name() != "Pen" || items[1].Name() != "Eraser" {
		test.Fatalf("expected Pen then Eraser, got %s then %s", items[0].Name(), items[1].Name())
	}

	for _, threshold := range []int64{0, -3} {
		if _, err := service.LowStock(context.Background(), threshold); !errors.Is(err, ErrInvalidThreshold) {
			test.Fatalf("threshold %d: expected %v, got %v", threshold, ErrInvalidThreshold, err)
		}
	}
}

func TestAvailableItemsAndAdminViews(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	store.seedItem(test, "Pen", "1.00", 3, true)
	store.seedItem(test, "Ruler", "1.00", 3, false)
	store.seedItem(test, "Eraser", "1.00", 0, true)
	sharpenerID := store.seedItem(test, "Sharpener", "1.00", 2, true)
	service := mustNewService(test, store)
	if _, err := service.RemoveItem(context.Background(), adminID, sharpenerID); err != nil {
		test.Fatalf("remove item: %v", err)
	}

	available, err := service.AvailableItems(context.Background())
	if err != nil {
		test.Fatalf("available items: %v", err)
	}
	if len(available) != 1 || available[0].Name() != "Pen" {
		test.Fatalf("expected only Pen available, got %d items", len(available))
	}

	if _, err := service.CatalogItems(context.Background(), studentID); !errors.Is(err, ErrNotAuthorized) {
		test.Fatalf(errorMismatchMsg, ErrNotAuthorized, err)
	}
	catalog, err := service.CatalogItems(context.Background(), adminID)
	if err != nil {
		test.Fatalf("catalog items: %v", err)
	}
	if len(catalog) != 4 || catalog[0].Name() != "Eraser" {
		test.Fatalf("expected 4 items ordered by name, got %d", len(catalog))
	}
	if !catalog[3].Removed() {
		test.Fatalf("expected removed Sharpener to stay listed for admins")
	}

	if _, err := service.Wallets(context.Background(), studentID); !errors.Is(err, ErrNotAuthorized) {
		test.Fatalf(errorMismatchMsg, ErrNotAuthorized, err)
	}
	wallets, err := service.Wallets(context.Background(), adminID)
	if err != nil {
		test.Fatalf("wallets: %v", err)
	}
	if len(wallets) != 2 {
		test.Fatalf("expected 2 wallets, got %d", len(wallets))
	}
}

func TestLedgerActivityCoversEveryIdentity(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	firstID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	secondID := store.seedIdentity(test, "student-2", RoleStudent, "0")
	service := mustNewService(test, store)
	for _, studentID := range []IdentityID{firstID, secondID} {
		if _, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, "1.00"), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
			test.Fatalf("credit: %v", err)
		}
	}

	if _, err := service.LedgerActivity(context.Background(), firstID, 10); !errors.Is(err, ErrNotAuthorized) {
		test.Fatalf(errorMismatchMsg, ErrNotAuthorized, err)
	}
	entries, err := service.LedgerActivity(context.Background(), adminID, 10)
	if err != nil {
		test.Fatalf("ledger activity: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if receiver, _ := entries[0].Receiver(); receiver != secondID {
		test.Fatalf("expected newest entry for %s, got %s", secondID, receiver)
	}
}

func TestQueriesPropagateStoreErrors(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	store.listEntriesError = errors.New("list failed")
	store.sumEntriesError = errors.New("sum failed")
	service := mustNewService(test, store)

	if _, err := service.RecentActivity(context.Background(), studentID, 5); !errors.Is(err, store.listEntriesError) {
		test.Fatalf(errorMismatchMsg, store.listEntriesError, err)
	}
	if _, err := service.RunningTotals(context.Background(), studentID); !errors.Is(err, store.sumEntriesError) {
		test.Fatalf(errorMismatchMsg, store.sumEntriesError, err)
	}
}
