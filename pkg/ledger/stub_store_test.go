package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

var testClockTime = time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

// stubStore keeps everything in maps. WithTx snapshots the maps and restores
// them when the callback fails; nested WithTx calls join the outer unit.
// commitWallet models a write committed by a concurrent unit: it survives the
// rollback of the unit that is running.
type stubStore struct {
	identities   map[IdentityID]Identity
	wallets      map[IdentityID]Wallet
	items        map[ItemID]Item
	entries      []Entry
	nextSequence int64
	nextItem     int
	inTx         bool
	committed    map[IdentityID]Wallet
	lockOrder    []string

	onLockWallet func(store *stubStore)

	getIdentityError  error
	lockWalletError   error
	updateWalletError error
	lockItemError     error
	updateItemError   error
	createItemError   error
	appendEntryError  error
	listEntriesError  error
	sumEntriesError   error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		identities: make(map[IdentityID]Identity),
		wallets:    make(map[IdentityID]Wallet),
		items:      make(map[ItemID]Item),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	identities := copyMap(store.identities)
	store.committed = copyMap(store.wallets)
	items := copyMap(store.items)
	entryCount := len(store.entries)

	store.inTx = true
	err := fn(ctx, store)
	store.inTx = false
	if err != nil {
		store.identities = identities
		store.wallets = store.committed
		store.items = items
		store.entries = store.entries[:entryCount]
	}
	store.committed = nil
	return err
}

func (store *stubStore) commitWallet(wallet Wallet) {
	store.wallets[wallet.Identity()] = wallet
	if store.committed != nil {
		store.committed[wallet.Identity()] = wallet
	}
}

func (store *stubStore) CreateIdentity(ctx context.Context, identity Identity) (Wallet, error) {
	if _, exists := store.identities[identity.ID()]; exists {
		return Wallet{}, ErrDuplicateIdentity
	}
	wallet := OpenWallet(identity)
	store.identities[identity.ID()] = identity
	store.wallets[identity.ID()] = wallet
	return wallet, nil
}

func (store *stubStore) GetIdentity(ctx context.Context, identityID IdentityID) (Identity, error) {
	if store.getIdentityError != nil {
		return Identity{}, store.getIdentityError
	}
	identity, ok := store.identities[identityID]
	if !ok {
		return Identity{}, NewNotFoundError(ResourceIdentity, identityID.String())
	}
	return identity, nil
}

func (store *stubStore) GetWallet(ctx context.Context, identityID IdentityID) (Wallet, error) {
	wallet, ok := store.wallets[identityID]
	if !ok {
		return Wallet{}, NewNotFoundError(ResourceWallet, identityID.String())
	}
	return wallet, nil
}

func (store *stubStore) LockWallet(ctx context.Context, identityID IdentityID) (Wallet, error) {
	store.lockOrder = append(store.lockOrder, "wallet:"+identityID.String())
	if store.lockWalletError != nil {
		return Wallet{}, store.lockWalletError
	}
	if store.onLockWallet != nil {
		hook := store.onLockWallet
		store.onLockWallet = nil
		hook(store)
	}
	return store.GetWallet(ctx, identityID)
}

func (store *stubStore) UpdateWallet(ctx context.Context, wallet Wallet) (Wallet, error) {
	if store.updateWalletError != nil {
		return Wallet{}, store.updateWalletError
	}
	current, ok := store.wallets[wallet.Identity()]
	if !ok {
		return Wallet{}, NewNotFoundError(ResourceWallet, wallet.Identity().String())
	}
	if current.Version() != wallet.Version() {
		return Wallet{}, ErrConcurrentModification
	}
	updated := wallet.NextVersion()
	store.wallets[wallet.Identity()] = updated
	return updated, nil
}

func (store *stubStore) ListWallets(ctx context.Context) ([]Wallet, error) {
	wallets := make([]Wallet, 0, len(store.wallets))
	for _, wallet := range store.wallets {
		wallets = append(wallets, wallet)
	}
	sort.Slice(wallets, func(left, right int) bool {
		return wallets[left].Identity().String() < wallets[right].Identity().String()
	})
	return wallets, nil
}

func (store *stubStore) CreateItem(ctx context.Context, draft ItemDraft, createdAt time.Time) (Item, error) {
	if store.createItemError != nil {
		return Item{}, store.createItemError
	}
	store.nextItem++
	itemID, err := NewItemID(fmt.Sprintf("item-%d", store.nextItem))
	if err != nil {
		return Item{}, err
	}
	item, err := NewItem(itemID, draft, false, createdAt, 0)
	if err != nil {
		return Item{}, err
	}
	store.items[itemID] = item
	return item, nil
}

func (store *stubStore) GetItem(ctx context.Context, itemID ItemID) (Item, error) {
	item, ok := store.items[itemID]
	if !ok {
		return Item{}, NewNotFoundError(ResourceItem, itemID.String())
	}
	return item, nil
}

func (store *stubStore) LockItem(ctx context.Context, itemID ItemID) (Item, error) {
	store.lockOrder = append(store.lockOrder, "item:"+itemID.String())
	if store.lockItemError != nil {
		return Item{}, store.lockItemError
	}
	return store.GetItem(ctx, itemID)
}

func (store *stubStore) UpdateItem(ctx context.Context, item Item) (Item, error) {
	if store.updateItemError != nil {
		return Item{}, store.updateItemError
	}
	current, ok := store.items[item.ID()]
	if !ok {
		return Item{}, NewNotFoundError(ResourceItem, item.ID().String())
	}
	if current.Version() != item.Version() {
		return Item{}, ErrConcurrentModification
	}
	updated := item.NextVersion()
	store.items[item.ID()] = updated
	return updated, nil
}

func (store *stubStore) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	items := make([]Item, 0, len(store.items))
	for _, item := range store.items {
		if filter.Matches(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(left, right int) bool {
		return filter.Less(items[left], items[right])
	})
	return items, nil
}

func (store *stubStore) AppendEntry(ctx context.Context, input EntryInput) (Entry, error) {
	if store.appendEntryError != nil {
		return Entry{}, store.appendEntryError
	}
	store.nextSequence++
	entryID, err := NewEntryID(fmt.Sprintf("entry-%d", store.nextSequence))
	if err != nil {
		return Entry{}, err
	}
	entry, err := NewEntry(entryID, store.nextSequence, input)
	if err != nil {
		return Entry{}, err
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if store.listEntriesError != nil {
		return nil, store.listEntriesError
	}
	entries := make([]Entry, 0, len(store.entries))
	for _, entry := range store.entries {
		if filter.Matches(entry) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(left, right int) bool {
		return entries[left].NewerThan(entries[right])
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (store *stubStore) SumEntries(ctx context.Context, identityID IdentityID) (Totals, error) {
	if store.sumEntriesError != nil {
		return Totals{}, store.sumEntriesError
	}
	var totals Totals
	for _, entry := range store.entries {
		if receiver, ok := entry.Receiver(); ok && receiver == identityID {
			totals.Credits = totals.Credits.Add(entry.Amount().Tokens())
		}
		if sender, ok := entry.Sender(); ok && sender == identityID {
			totals.Debits = totals.Debits.Add(entry.Amount().Tokens())
		}
	}
	return totals, nil
}

func (store *stubStore) seedIdentity(test *testing.T, raw string, role Role, balance string) IdentityID {
	test.Helper()
	identityID := mustIdentityID(test, raw)
	identity, err := NewIdentity(identityID, role, testClockTime)
	if err != nil {
		test.Fatalf("identity: %v", err)
	}
	store.identities[identityID] = identity
	wallet, err := NewWallet(identityID, mustTokens(test, balance), testClockTime, 0)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	store.wallets[identityID] = wallet
	return identityID
}

func (store *stubStore) seedItem(test *testing.T, name string, price string, stock int64, active bool) ItemID {
	test.Helper()
	draft, err := NewItemDraft(mustItemDetails(test, name), mustPositiveTokens(test, price), stock, active)
	if err != nil {
		test.Fatalf("item draft: %v", err)
	}
	item, err := store.CreateItem(context.Background(), draft, testClockTime)
	if err != nil {
		test.Fatalf("create item: %v", err)
	}
	return item.ID()
}

func (store *stubStore) mustWallet(test *testing.T, identityID IdentityID) Wallet {
	test.Helper()
	wallet, ok := store.wallets[identityID]
	if !ok {
		test.Fatalf("wallet %s not found", identityID)
	}
	return wallet
}

func (store *stubStore) mustItem(test *testing.T, itemID ItemID) Item {
	test.Helper()
	item, ok := store.items[itemID]
	if !ok {
		test.Fatalf("item %s not found", itemID)
	}
	return item
}

func (store *stubStore) entriesOfKind(kind EntryKind) []Entry {
	var matched []Entry
	for _, entry := range store.entries {
		if entry.Kind() == kind {
			matched = append(matched, entry)
		}
	}
	return matched
}

func copyMap[K comparable, V any](source map[K]V) map[K]V {
	copied := make(map[K]V, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return testClockTime }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustIdentityID(test *testing.T, raw string) IdentityID {
	test.Helper()
	value, err := NewIdentityID(raw)
	if err != nil {
		test.Fatalf("identity id: %v", err)
	}
	return value
}

func mustItemID(test *testing.T, raw string) ItemID {
	test.Helper()
	value, err := NewItemID(raw)
	if err != nil {
		test.Fatalf("item id: %v", err)
	}
	return value
}

func mustTokens(test *testing.T, raw string) Tokens {
	test.Helper()
	value, err := ParseTokens(raw)
	if err != nil {
		test.Fatalf("tokens: %v", err)
	}
	return value
}

func mustPositiveTokens(test *testing.T, raw string) PositiveTokens {
	test.Helper()
	value, err := ParsePositiveTokens(raw)
	if err != nil {
		test.Fatalf("positive tokens: %v", err)
	}
	return value
}

func mustDescription(test *testing.T, raw string) Description {
	test.Helper()
	value, err := NewDescription(raw)
	if err != nil {
		test.Fatalf("description: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustItemDetails(test *testing.T, name string) ItemDetails {
	test.Helper()
	value, err := NewItemDetails(name, name+" description", "supplies")
	if err != nil {
		test.Fatalf("item details: %v", err)
	}
	return value
}
