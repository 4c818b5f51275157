package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

const (
	studentIDValue   = "student-1"
	adminIDValue     = "admin-1"
	bonusReason      = "Bonus"
	notebookName     = "Notebook"
	errorMismatchMsg = "expected %v, got %v"
)

func TestPurchaseScenarioMovesBalanceStockAndLedger(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "500.00")
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	notebookID := store.seedItem(test, notebookName, "50.00", 20, true)
	laptopID := store.seedItem(test, "Laptop", "10000.00", 5, true)
	service := mustNewService(test, store)

	receipt, err := service.Purchase(context.Background(), studentID, notebookID, MetadataJSON{})
	if err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if receipt.Wallet.Balance().String() != "450.00" {
		test.Fatalf("expected balance 450.00, got %s", receipt.Wallet.Balance())
	}
	if store.mustItem(test, notebookID).Stock() != 19 {
		test.Fatalf("expected stock 19, got %d", store.mustItem(test, notebookID).Stock())
	}
	purchases := store.entriesOfKind(EntryPurchase)
	if len(purchases) != 1 {
		test.Fatalf("expected one purchase entry, got %d", len(purchases))
	}
	purchase := purchases[0]
	if purchase.Amount().String() != "50.00" {
		test.Fatalf("expected purchase amount 50.00, got %s", purchase.Amount())
	}
	if purchase.Description().String() != "Purchased Notebook" {
		test.Fatalf("unexpected purchase description %q", purchase.Description())
	}
	if sender, ok := purchase.Sender(); !ok || sender != studentID {
		test.Fatalf("expected sender %s, got %v", studentID, sender)
	}
	if _, ok := purchase.Receiver(); ok {
		test.Fatalf("expected purchase without receiver")
	}
	if itemID, ok := purchase.ItemID(); !ok || itemID != notebookID {
		test.Fatalf("expected item %s on purchase entry", notebookID)
	}

	credit, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, "100.00"), mustDescription(test, bonusReason), MetadataJSON{})
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	if credit.Wallet.Balance().String() != "550.00" {
		test.Fatalf("expected balance 550.00, got %s", credit.Wallet.Balance())
	}
	if credits := store.entriesOfKind(EntryCredit); len(credits) != 1 || credits[0].Amount().String() != "100.00" {
		test.Fatalf("expected one credit entry of 100.00, got %d", len(credits))
	}

	entriesBefore := len(store.entries)
	_, err = service.Purchase(context.Background(), studentID, laptopID, MetadataJSON{})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf(errorMismatchMsg, ErrInsufficientFunds, err)
	}
	if store.mustWallet(test, studentID).Balance().String() != "550.00" {
		test.Fatalf("expected balance unchanged at 550.00, got %s", store.mustWallet(test, studentID).Balance())
	}
	if len(store.entries) != entriesBefore {
		test.Fatalf("expected no ledger entry for rejected purchase")
	}
	if store.mustItem(test, laptopID).Stock() != 5 {
		test.Fatalf("expected laptop stock unchanged")
	}
}

func TestPurchaseReportsInsufficientFundsDetails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "30.00")
	itemID := store.seedItem(test, notebookName, "50.00", 3, true)
	service := mustNewService(test, store)

	_, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{})
	var failure InsufficientFundsError
	if !errors.As(err, &failure) {
		test.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if failure.Shortfall.String() != "20.00" || failure.Balance.String() != "30.00" || failure.Requested.String() != "50.00" {
		test.Fatalf("unexpected failure fields: %+v", failure)
	}
	if failure.Identity != studentID {
		test.Fatalf(errorMismatchMsg, studentID, failure.Identity)
	}
}

func TestPurchaseChecksAvailabilityBeforeFunds(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		stock  int64
		active bool
	}{
		{name: "sold out", stock: 0, active: true},
		{name: "inactive", stock: 4, active: false},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "1.00")
			itemID := store.seedItem(test, notebookName, "50.00", testCase.stock, testCase.active)
			service := mustNewService(test, store)

			_, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{})
			var failure OutOfStockError
			if !errors.As(err, &failure) {
				test.Fatalf("expected OutOfStockError, got %v", err)
			}
			if failure.Name != notebookName || failure.Stock != testCase.stock || failure.Active != testCase.active {
				test.Fatalf("unexpected failure fields: %+v", failure)
			}
			if store.mustWallet(test, studentID).Balance().String() != "1.00" {
				test.Fatalf("expected balance unchanged")
			}
		})
	}
}

func TestPurchaseLastUnitSucceedsOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "100.00")
	itemID := store.seedItem(test, notebookName, "10.00", 1, true)
	service := mustNewService(test, store)

	if _, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{}); err != nil {
		test.Fatalf("first purchase: %v", err)
	}
	_, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{})
	if !errors.Is(err, ErrOutOfStock) {
		test.Fatalf(errorMismatchMsg, ErrOutOfStock, err)
	}
	if store.mustItem(test, itemID).Stock() != 0 {
		test.Fatalf("expected stock 0, got %d", store.mustItem(test, itemID).Stock())
	}
	if purchases := store.entriesOfKind(EntryPurchase); len(purchases) != 1 {
		test.Fatalf("expected one purchase entry, got %d", len(purchases))
	}
}

func TestPurchaseLocksWalletBeforeItem(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "100.00")
	itemID := store.seedItem(test, notebookName, "10.00", 2, true)
	service := mustNewService(test, store)

	if _, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{}); err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if len(store.lockOrder) < 2 {
		test.Fatalf("expected wallet and item locks, got %v", store.lockOrder)
	}
	if store.lockOrder[0] != "wallet:"+studentID.String() || store.lockOrder[1] != "item:"+itemID.String() {
		test.Fatalf("expected wallet lock before item lock, got %v", store.lockOrder)
	}
}

func TestPurchaseFailsFastWithoutLocks(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "5.00")
	pricyID := store.seedItem(test, "Calculator", "20.00", 3, true)
	emptyID := store.seedItem(test, notebookName, "1.00", 0, true)
	service := mustNewService(test, store)

	_, err := service.Purchase(context.Background(), studentID, pricyID, MetadataJSON{})
	var funds InsufficientFundsError
	if !errors.As(err, &funds) {
		test.Fatalf(errorMismatchMsg, ErrInsufficientFunds, err)
	}
	if funds.Shortfall.String() != "15.00" {
		test.Fatalf("expected shortfall 15.00, got %s", funds.Shortfall)
	}

	_, err = service.Purchase(context.Background(), studentID, emptyID, MetadataJSON{})
	var stock OutOfStockError
	if !errors.As(err, &stock) || stock.Stock != 0 {
		test.Fatalf(errorMismatchMsg, ErrOutOfStock, err)
	}
	if len(store.lockOrder) != 0 {
		test.Fatalf("expected no locks for rejected purchases, got %v", store.lockOrder)
	}
}

func TestPurchaseRechecksFundsUnderLock(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "60.00")
	itemID := store.seedItem(test, notebookName, "50.00", 2, true)
	store.onLockWallet = func(store *stubStore) {
		drained, err := NewWallet(studentID, Tokens{}, testClockTime, store.wallets[studentID].Version()+1)
		if err != nil {
			test.Errorf("drain wallet: %v", err)
			return
		}
		store.commitWallet(drained)
	}
	service := mustNewService(test, store)

	_, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{})
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf(errorMismatchMsg, ErrInsufficientFunds, err)
	}
	if !store.mustWallet(test, studentID).Balance().IsZero() {
		test.Fatalf("expected drained balance to stay zero")
	}
	if store.mustItem(test, itemID).Stock() != 2 {
		test.Fatalf("expected stock unchanged")
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestPurchaseRejectsAdminsAndUnknownItems(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "100.00")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "100.00")
	itemID := store.seedItem(test, notebookName, "10.00", 2, true)
	service := mustNewService(test, store)

	_, err := service.Purchase(context.Background(), adminID, itemID, MetadataJSON{})
	if !errors.Is(err, ErrInvalidTarget) {
		test.Fatalf(errorMismatchMsg, ErrInvalidTarget, err)
	}
	_, err = service.Purchase(context.Background(), studentID, mustItemID(test, "missing"), MetadataJSON{})
	var notFound NotFoundError
	if !errors.As(err, &notFound) || notFound.Resource != ResourceItem {
		test.Fatalf("expected item NotFoundError, got %v", err)
	}
	_, err = service.Purchase(context.Background(), mustIdentityID(test, "ghost"), itemID, MetadataJSON{})
	if !errors.Is(err, ErrNotFound) {
		test.Fatalf(errorMismatchMsg, ErrNotFound, err)
	}
}

func TestAdminOperationsCheckCapabilityAndTarget(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	otherAdminID := store.seedIdentity(test, "admin-2", RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "10.00")
	otherStudentID := store.seedIdentity(test, "student-2", RoleStudent, "10.00")
	itemID := store.seedItem(test, notebookName, "10.00", 2, true)
	service := mustNewService(test, store)
	amount := mustPositiveTokens(test, "5.00")
	reason := mustDescription(test, "adjustment")

	operations := map[string]func(actor IdentityID, target IdentityID) error{
		operationCredit: func(actor IdentityID, target IdentityID) error {
			_, err := service.Credit(context.Background(), actor, target, amount, reason, MetadataJSON{})
			return err
		},
		operationRefund: func(actor IdentityID, target IdentityID) error {
			_, err := service.Refund(context.Background(), actor, target, itemID, amount, reason, MetadataJSON{})
			return err
		},
		operationPenalty: func(actor IdentityID, target IdentityID) error {
			_, err := service.Penalty(context.Background(), actor, target, amount, reason, MetadataJSON{})
			return err
		},
	}
	for name, operation := range operations {
		if err := operation(otherStudentID, studentID); !errors.Is(err, ErrNotAuthorized) {
			test.Fatalf("%s by student: expected %v, got %v", name, ErrNotAuthorized, err)
		}
		if err := operation(adminID, otherAdminID); !errors.Is(err, ErrInvalidTarget) {
			test.Fatalf("%s on admin: expected %v, got %v", name, ErrInvalidTarget, err)
		}
		if err := operation(adminID, mustIdentityID(test, "ghost")); !errors.Is(err, ErrNotFound) {
			test.Fatalf("%s on unknown identity: expected %v, got %v", name, ErrNotFound, err)
		}
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries after rejected operations, got %d", len(store.entries))
	}
	if store.mustWallet(test, studentID).Balance().String() != "10.00" {
		test.Fatalf("expected balance unchanged")
	}
}

func TestRefundCreditsWalletAndRestocks(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "20.00")
	itemID := store.seedItem(test, notebookName, "10.00", 0, true)
	service := mustNewService(test, store)

	receipt, err := service.Refund(context.Background(), adminID, studentID, itemID, mustPositiveTokens(test, "10.00"), mustDescription(test, "damaged"), mustMetadata(test, `{"ticket":"42"}`))
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if !receipt.Restocked || receipt.Item == nil || receipt.Item.Stock() != 1 {
		test.Fatalf("expected item restocked to 1, got %+v", receipt)
	}
	if receipt.Wallet.Balance().String() != "30.00" {
		test.Fatalf("expected balance 30.00, got %s", receipt.Wallet.Balance())
	}
	entry := receipt.Entry
	if entry.Kind() != EntryRefund {
		test.Fatalf("expected refund entry, got %s", entry.Kind())
	}
	if receiver, ok := entry.Receiver(); !ok || receiver != studentID {
		test.Fatalf("expected refund receiver %s", studentID)
	}
	if _, ok := entry.Sender(); ok {
		test.Fatalf("expected refund without sender")
	}
	if entry.Metadata().String() != `{"ticket":"42"}` {
		test.Fatalf("unexpected metadata %s", entry.Metadata())
	}
}

func TestRefundOfRemovedItemLeavesItRemoved(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	itemID := store.seedItem(test, notebookName, "10.00", 3, true)
	service := mustNewService(test, store)
	if _, err := service.RemoveItem(context.Background(), adminID, itemID); err != nil {
		test.Fatalf("remove item: %v", err)
	}

	receipt, err := service.Refund(context.Background(), adminID, studentID, itemID, mustPositiveTokens(test, "10.00"), mustDescription(test, "late refund"), MetadataJSON{})
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if receipt.Restocked {
		test.Fatalf("expected removed item not to be restocked")
	}
	item := store.mustItem(test, itemID)
	if !item.Removed() || item.Active() || item.Stock() != 3 {
		test.Fatalf("expected removed item untouched, got stock=%d active=%t removed=%t", item.Stock(), item.Active(), item.Removed())
	}
	if receipt.Wallet.Balance().String() != "10.00" {
		test.Fatalf("expected balance 10.00, got %s", receipt.Wallet.Balance())
	}
}

func TestPenaltyDebitsWithoutOverdraft(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "25.00")
	service := mustNewService(test, store)

	receipt, err := service.Penalty(context.Background(), adminID, studentID, mustPositiveTokens(test, "25.00"), mustDescription(test, "late"), MetadataJSON{})
	if err != nil {
		test.Fatalf("penalty: %v", err)
	}
	if !receipt.Wallet.Balance().IsZero() {
		test.Fatalf("expected zero balance, got %s", receipt.Wallet.Balance())
	}
	if sender, ok := receipt.Entry.Sender(); !ok || sender != studentID || receipt.Entry.Kind() != EntryPenalty {
		test.Fatalf("unexpected penalty entry: %+v", receipt.Entry)
	}

	_, err = service.Penalty(context.Background(), adminID, studentID, mustPositiveTokens(test, "0.01"), mustDescription(test, "again"), MetadataJSON{})
	var failure InsufficientFundsError
	if !errors.As(err, &failure) {
		test.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if failure.Shortfall.String() != "0.01" {
		test.Fatalf("expected shortfall 0.01, got %s", failure.Shortfall)
	}
	if penalties := store.entriesOfKind(EntryPenalty); len(penalties) != 1 {
		test.Fatalf("expected one penalty entry, got %d", len(penalties))
	}
}

func TestFailedAppendRollsBackWalletAndStock(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "100.00")
	itemID := store.seedItem(test, notebookName, "10.00", 5, true)
	store.appendEntryError = errors.New("disk full")
	service := mustNewService(test, store)

	_, err := service.Purchase(context.Background(), studentID, itemID, MetadataJSON{})
	if !errors.Is(err, store.appendEntryError) {
		test.Fatalf(errorMismatchMsg, store.appendEntryError, err)
	}
	if store.mustWallet(test, studentID).Balance().String() != "100.00" {
		test.Fatalf("expected balance rolled back, got %s", store.mustWallet(test, studentID).Balance())
	}
	if store.mustItem(test, itemID).Stock() != 5 {
		test.Fatalf("expected stock rolled back, got %d", store.mustItem(test, itemID).Stock())
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestEngineSurfacesConcurrentModification(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	store.updateWalletError = ErrConcurrentModification
	service := mustNewService(test, store)

	_, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, "1.00"), mustDescription(test, bonusReason), MetadataJSON{})
	if !IsRetryable(err) {
		test.Fatalf("expected retryable error, got %v", err)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestEntryTimestampsNeverGoBackwards(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	ticks := []time.Time{
		testClockTime.Add(time.Minute),
		testClockTime,
		testClockTime.Add(-time.Hour),
	}
	tick := 0
	service, err := NewService(store, func() time.Time {
		current := ticks[tick%len(ticks)]
		tick++
		return current
	})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	for index := 0; index < len(ticks); index++ {
		if _, err := service.Credit(context.Background(), adminID, studentID, mustPositiveTokens(test, "1.00"), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
			test.Fatalf("credit %d: %v", index, err)
		}
	}
	for index := 1; index < len(store.entries); index++ {
		if store.entries[index].CreatedAt().Before(store.entries[index-1].CreatedAt()) {
			test.Fatalf("entry %d timestamp went backwards", index)
		}
		if store.entries[index].Sequence() <= store.entries[index-1].Sequence() {
			test.Fatalf("entry %d sequence not increasing", index)
		}
	}
}

func TestEngineIgnoresCallerCancellation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	var observed error
	service := mustNewService(test, cancellationWatcher{Store: store, observed: &observed})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := service.Credit(ctx, adminID, studentID, mustPositiveTokens(test, "1.00"), mustDescription(test, bonusReason), MetadataJSON{}); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if observed != nil {
		test.Fatalf("expected unit context without cancellation, got %v", observed)
	}
}

func TestProvisionIdentityCreatesEmptyWallet(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	identityID := mustIdentityID(test, "new-student")

	identity, wallet, err := service.ProvisionIdentity(context.Background(), identityID, RoleStudent)
	if err != nil {
		test.Fatalf("provision: %v", err)
	}
	if identity.Role() != RoleStudent || !wallet.Balance().IsZero() || wallet.Identity() != identityID {
		test.Fatalf("unexpected provisioned identity %+v wallet %+v", identity, wallet)
	}
	_, _, err = service.ProvisionIdentity(context.Background(), identityID, RoleStudent)
	if !errors.Is(err, ErrDuplicateIdentity) {
		test.Fatalf(errorMismatchMsg, ErrDuplicateIdentity, err)
	}
}

func TestCatalogManagement(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	adminID := store.seedIdentity(test, adminIDValue, RoleAdmin, "0")
	studentID := store.seedIdentity(test, studentIDValue, RoleStudent, "0")
	service := mustNewService(test, store)
	draft, err := NewItemDraft(mustItemDetails(test, "Pencil"), mustPositiveTokens(test, "1.50"), 10, true)
	if err != nil {
		test.Fatalf("draft: %v", err)
	}

	if _, err := service.AddItem(context.Background(), studentID, draft); !errors.Is(err, ErrNotAuthorized) {
		test.Fatalf(errorMismatchMsg, ErrNotAuthorized, err)
	}
	item, err := service.AddItem(context.Background(), adminID, draft)
	if err != nil {
		test.Fatalf("add item: %v", err)
	}

	newPrice := mustPositiveTokens(test, "2.00")
	newStock := int64(4)
	inactive := false
	updated, err := service.UpdateItem(context.Background(), adminID, item.ID(), ItemChanges{Price: &newPrice, Stock: &newStock, Active: &inactive})
	if err != nil {
		test.Fatalf("update item: %v", err)
	}
	if updated.Price().String() != "2.00" || updated.Stock() != 4 || updated.Active() {
		test.Fatalf("unexpected updated item: price=%s stock=%d active=%t", updated.Price(), updated.Stock(), updated.Active())
	}
	negativeStock := int64(-1)
	if _, err := service.UpdateItem(context.Background(), adminID, item.ID(), ItemChanges{Stock: &negativeStock}); !errors.Is(err, ErrInvalidStock) {
		test.Fatalf(errorMismatchMsg, ErrInvalidStock, err)
	}

	removed, err := service.RemoveItem(context.Background(), adminID, item.ID())
	if err != nil {
		test.Fatalf("remove item: %v", err)
	}
	if !removed.Removed() || removed.Active() {
		test.Fatalf("expected removed inactive item")
	}
	active := true
	if _, err := service.UpdateItem(context.Background(), adminID, item.ID(), ItemChanges{Active: &active}); !errors.Is(err, ErrItemRemoved) {
		test.Fatalf(errorMismatchMsg, ErrItemRemoved, err)
	}
	if _, err := service.RemoveItem(context.Background(), adminID, item.ID()); err != nil {
		test.Fatalf("second remove: %v", err)
	}
}

func TestNewServiceValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, time.Now); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf(errorMismatchMsg, ErrInvalidServiceConfig, err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf(errorMismatchMsg, ErrInvalidServiceConfig, err)
	}
}

// cancellationWatcher records whether the unit of work saw a cancelled context.
type cancellationWatcher struct {
	Store
	observed *error
}

func (watcher cancellationWatcher) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	*watcher.observed = ctx.Err()
	return watcher.Store.WithTx(ctx, fn)
}
