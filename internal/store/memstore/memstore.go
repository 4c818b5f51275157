// Package memstore keeps the ledger in process memory. It provides the same
// row locking and all-or-nothing units of work as the SQL stores, which makes
// it suitable for tests, demos and single-process deployments.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"github.com/google/uuid"
)

// Store is the committed state. Every mutation made through it runs as its
// own unit of work.
type Store struct {
	mu         sync.RWMutex
	identities map[ledger.IdentityID]ledger.Identity
	wallets    map[ledger.IdentityID]ledger.Wallet
	items      map[ledger.ItemID]ledger.Item
	// entries are kept in ascending (createdAt, sequence) order.
	entries  []ledger.Entry
	sequence atomic.Int64
	locks    *rowLocks
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides how item and entry ids are minted.
func WithIDGenerator(generator func() string) Option {
	return func(store *Store) {
		if generator != nil {
			store.newID = generator
		}
	}
}

// New returns an empty Store.
func New(options ...Option) *Store {
	store := &Store{
		identities: make(map[ledger.IdentityID]ledger.Identity),
		wallets:    make(map[ledger.IdentityID]ledger.Wallet),
		items:      make(map[ledger.ItemID]ledger.Item),
		locks:      newRowLocks(),
		newID:      uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// WithTx runs fn as one unit of work. Row locks taken inside fn are held until
// fn returns; its writes become visible to other callers only if fn succeeds.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	transaction := newTxStore(store)
	defer transaction.releaseLocks()
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	transaction.commit()
	return nil
}

func (store *Store) CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Wallet, error) {
	var wallet ledger.Wallet
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		created, err := txStore.CreateIdentity(ctx, identity)
		wallet = created
		return err
	})
	return wallet, err
}

func (store *Store) GetIdentity(ctx context.Context, identityID ledger.IdentityID) (ledger.Identity, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	identity, ok := store.identities[identityID]
	if !ok {
		return ledger.Identity{}, ledger.NewNotFoundError(ledger.ResourceIdentity, identityID.String())
	}
	return identity, nil
}

func (store *Store) GetWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	wallet, ok := store.wallets[identityID]
	if !ok {
		return ledger.Wallet{}, ledger.NewNotFoundError(ledger.ResourceWallet, identityID.String())
	}
	return wallet, nil
}

// LockWallet outside a unit of work waits for the row to be free and returns
// its committed state without keeping the lock.
func (store *Store) LockWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	var wallet ledger.Wallet
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		locked, err := txStore.LockWallet(ctx, identityID)
		wallet = locked
		return err
	})
	return wallet, err
}

func (store *Store) UpdateWallet(ctx context.Context, wallet ledger.Wallet) (ledger.Wallet, error) {
	var updated ledger.Wallet
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		stored, err := txStore.UpdateWallet(ctx, wallet)
		updated = stored
		return err
	})
	return updated, err
}

func (store *Store) ListWallets(ctx context.Context) ([]ledger.Wallet, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return sortedWallets(store.wallets, nil), nil
}

func (store *Store) CreateItem(ctx context.Context, draft ledger.ItemDraft, createdAt time.Time) (ledger.Item, error) {
	var item ledger.Item
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		created, err := txStore.CreateItem(ctx, draft, createdAt)
		item = created
		return err
	})
	return item, err
}

func (store *Store) GetItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	item, ok := store.items[itemID]
	if !ok {
		return ledger.Item{}, ledger.NewNotFoundError(ledger.ResourceItem, itemID.String())
	}
	return item, nil
}

func (store *Store) LockItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	var item ledger.Item
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		locked, err := txStore.LockItem(ctx, itemID)
		item = locked
		return err
	})
	return item, err
}

func (store *Store) UpdateItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	var updated ledger.Item
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		stored, err := txStore.UpdateItem(ctx, item)
		updated = stored
		return err
	})
	return updated, err
}

func (store *Store) ListItems(ctx context.Context, filter ledger.ItemFilter) ([]ledger.Item, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return filteredItems(store.items, nil, filter), nil
}

func (store *Store) AppendEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	var entry ledger.Entry
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		appended, err := txStore.AppendEntry(ctx, input)
		entry = appended
		return err
	})
	return entry, err
}

func (store *Store) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return newestEntries(store.entries, nil, filter), nil
}

func (store *Store) SumEntries(ctx context.Context, identityID ledger.IdentityID) (ledger.Totals, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return sumEntries(ledger.Totals{}, store.entries, identityID), nil
}

// insertEntry keeps entries ordered; callers hold mu for writing.
func (store *Store) insertEntry(entry ledger.Entry) {
	index := sort.Search(len(store.entries), func(position int) bool {
		return store.entries[position].NewerThan(entry)
	})
	store.entries = append(store.entries, ledger.Entry{})
	copy(store.entries[index+1:], store.entries[index:])
	store.entries[index] = entry
}

func sortedWallets(committed map[ledger.IdentityID]ledger.Wallet, pending map[ledger.IdentityID]ledger.Wallet) []ledger.Wallet {
	merged := make(map[ledger.IdentityID]ledger.Wallet, len(committed)+len(pending))
	for identityID, wallet := range committed {
		merged[identityID] = wallet
	}
	for identityID, wallet := range pending {
		merged[identityID] = wallet
	}
	wallets := make([]ledger.Wallet, 0, len(merged))
	for _, wallet := range merged {
		wallets = append(wallets, wallet)
	}
	sort.Slice(wallets, func(left, right int) bool {
		return wallets[left].Identity().String() < wallets[right].Identity().String()
	})
	return wallets
}

func filteredItems(committed map[ledger.ItemID]ledger.Item, pending map[ledger.ItemID]ledger.Item, filter ledger.ItemFilter) []ledger.Item {
	items := make([]ledger.Item, 0, len(committed)+len(pending))
	for itemID, item := range committed {
		if _, overridden := pending[itemID]; overridden {
			continue
		}
		if filter.Matches(item) {
			items = append(items, item)
		}
	}
	for _, item := range pending {
		if filter.Matches(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(left, right int) bool {
		return filter.Less(items[left], items[right])
	})
	return items
}

func newestEntries(committed []ledger.Entry, pending []ledger.Entry, filter ledger.EntryFilter) []ledger.Entry {
	matched := make([]ledger.Entry, 0)
	for index := len(committed) - 1; index >= 0; index-- {
		if filter.Matches(committed[index]) {
			matched = append(matched, committed[index])
		}
	}
	for _, entry := range pending {
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
	}
	if len(pending) > 0 {
		sort.SliceStable(matched, func(left, right int) bool {
			return matched[left].NewerThan(matched[right])
		})
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

func sumEntries(totals ledger.Totals, entries []ledger.Entry, identityID ledger.IdentityID) ledger.Totals {
	for _, entry := range entries {
		if receiver, ok := entry.Receiver(); ok && receiver == identityID {
			totals.Credits = totals.Credits.Add(entry.Amount().Tokens())
		}
		if sender, ok := entry.Sender(); ok && sender == identityID {
			totals.Debits = totals.Debits.Add(entry.Amount().Tokens())
		}
	}
	return totals
}
