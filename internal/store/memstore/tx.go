package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
)

const (
	lockKeyIdentity = "identity:"
	lockKeyWallet   = "wallet:"
	lockKeyItem     = "item:"
)

// txStore is the view handed to a WithTx callback. It reads its own pending
// writes first and the committed state second.
type txStore struct {
	root       *Store
	held       map[string]struct{}
	identities map[ledger.IdentityID]ledger.Identity
	wallets    map[ledger.IdentityID]ledger.Wallet
	items      map[ledger.ItemID]ledger.Item
	entries    []ledger.Entry
}

func newTxStore(root *Store) *txStore {
	return &txStore{
		root:       root,
		held:       make(map[string]struct{}),
		identities: make(map[ledger.IdentityID]ledger.Identity),
		wallets:    make(map[ledger.IdentityID]ledger.Wallet),
		items:      make(map[ledger.ItemID]ledger.Item),
	}
}

// WithTx joins the enclosing unit of work.
func (store *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (store *txStore) CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Wallet, error) {
	if err := store.lock(ctx, lockKeyIdentity+identity.ID().String()); err != nil {
		return ledger.Wallet{}, err
	}
	if _, err := store.GetIdentity(ctx, identity.ID()); err == nil {
		return ledger.Wallet{}, ledger.ErrDuplicateIdentity
	}
	wallet := ledger.OpenWallet(identity)
	store.identities[identity.ID()] = identity
	store.wallets[identity.ID()] = wallet
	return wallet, nil
}

func (store *txStore) GetIdentity(ctx context.Context, identityID ledger.IdentityID) (ledger.Identity, error) {
	if identity, ok := store.identities[identityID]; ok {
		return identity, nil
	}
	return store.root.GetIdentity(ctx, identityID)
}

func (store *txStore) GetWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	if wallet, ok := store.wallets[identityID]; ok {
		return wallet, nil
	}
	return store.root.GetWallet(ctx, identityID)
}

func (store *txStore) LockWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	if err := store.lock(ctx, lockKeyWallet+identityID.String()); err != nil {
		return ledger.Wallet{}, err
	}
	return store.GetWallet(ctx, identityID)
}

func (store *txStore) UpdateWallet(ctx context.Context, wallet ledger.Wallet) (ledger.Wallet, error) {
	current, err := store.LockWallet(ctx, wallet.Identity())
	if err != nil {
		return ledger.Wallet{}, err
	}
	if current.Version() != wallet.Version() {
		return ledger.Wallet{}, ledger.ErrConcurrentModification
	}
	updated := wallet.NextVersion()
	store.wallets[wallet.Identity()] = updated
	return updated, nil
}

func (store *txStore) ListWallets(ctx context.Context) ([]ledger.Wallet, error) {
	store.root.mu.RLock()
	defer store.root.mu.RUnlock()
	return sortedWallets(store.root.wallets, store.wallets), nil
}

func (store *txStore) CreateItem(ctx context.Context, draft ledger.ItemDraft, createdAt time.Time) (ledger.Item, error) {
	itemID, err := ledger.NewItemID(store.root.newID())
	if err != nil {
		return ledger.Item{}, err
	}
	if err := store.lock(ctx, lockKeyItem+itemID.String()); err != nil {
		return ledger.Item{}, err
	}
	item, err := ledger.NewItem(itemID, draft, false, createdAt, 0)
	if err != nil {
		return ledger.Item{}, err
	}
	store.items[itemID] = item
	return item, nil
}

func (store *txStore) GetItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	if item, ok := store.items[itemID]; ok {
		return item, nil
	}
	return store.root.GetItem(ctx, itemID)
}

func (store *txStore) LockItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	if err := store.lock(ctx, lockKeyItem+itemID.String()); err != nil {
		return ledger.Item{}, err
	}
	return store.GetItem(ctx, itemID)
}

func (store *txStore) UpdateItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	current, err := store.LockItem(ctx, item.ID())
	if err != nil {
		return ledger.Item{}, err
	}
	if current.Version() != item.Version() {
		return ledger.Item{}, ledger.ErrConcurrentModification
	}
	updated := item.NextVersion()
	store.items[item.ID()] = updated
	return updated, nil
}

func (store *txStore) ListItems(ctx context.Context, filter ledger.ItemFilter) ([]ledger.Item, error) {
	store.root.mu.RLock()
	defer store.root.mu.RUnlock()
	return filteredItems(store.root.items, store.items, filter), nil
}

func (store *txStore) AppendEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(store.root.newID())
	if err != nil {
		return ledger.Entry{}, err
	}
	entry, err := ledger.NewEntry(entryID, store.root.sequence.Add(1), input)
	if err != nil {
		return ledger.Entry{}, err
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *txStore) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	store.root.mu.RLock()
	defer store.root.mu.RUnlock()
	return newestEntries(store.root.entries, store.entries, filter), nil
}

func (store *txStore) SumEntries(ctx context.Context, identityID ledger.IdentityID) (ledger.Totals, error) {
	store.root.mu.RLock()
	defer store.root.mu.RUnlock()
	totals := sumEntries(ledger.Totals{}, store.root.entries, identityID)
	return sumEntries(totals, store.entries, identityID), nil
}

// lock is reentrant within one unit of work.
func (store *txStore) lock(ctx context.Context, key string) error {
	if _, ok := store.held[key]; ok {
		return nil
	}
	if err := store.root.locks.acquire(ctx, key); err != nil {
		return ledger.WrapError("store", "lock", "wait_failed", err)
	}
	store.held[key] = struct{}{}
	return nil
}

func (store *txStore) commit() {
	root := store.root
	root.mu.Lock()
	defer root.mu.Unlock()
	for identityID, identity := range store.identities {
		root.identities[identityID] = identity
	}
	for identityID, wallet := range store.wallets {
		root.wallets[identityID] = wallet
	}
	for itemID, item := range store.items {
		root.items[itemID] = item
	}
	for _, entry := range store.entries {
		root.insertEntry(entry)
	}
}

func (store *txStore) releaseLocks() {
	for key := range store.held {
		store.root.locks.release(key)
	}
	store.held = nil
}

// rowLocks hands out one single-slot semaphore per row key.
type rowLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{slots: make(map[string]chan struct{})}
}

func (locks *rowLocks) acquire(ctx context.Context, key string) error {
	locks.mu.Lock()
	slot, ok := locks.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		locks.slots[key] = slot
	}
	locks.mu.Unlock()
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (locks *rowLocks) release(key string) {
	locks.mu.Lock()
	slot := locks.slots[key]
	locks.mu.Unlock()
	<-slot
}
