package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sqliteConstraintCode    = 19
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	errorOperationStore     = "store"
	errorSubjectIdentity    = "identity"
	errorSubjectWallet      = "wallet"
	errorSubjectItem        = "item"
	errorSubjectEntry       = "entry"
	errorSubjectTransaction = "transaction"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeLock           = "lock"
	errorCodeUpdate         = "update"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSum            = "sum"
	errorCodeConflict       = "conflict"

	lockStrengthUpdate = "UPDATE"

	sqlSumEntries = `coalesce(sum(case when receiver_id = ? then amount_cents else 0 end),0) as credits,
		coalesce(sum(case when sender_id = ? then amount_cents else 0 end),0) as debits`
)

// Store implements ledger.Store using GORM. It runs on PostgreSQL and SQLite.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Called on a transactional Store it
// joins the enclosing transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if isTransaction(store.db) {
		return fn(ctx, store)
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if isConflict(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeConflict, conflictError(err))
	}
	return err
}

func (store *Store) CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Wallet, error) {
	opened := ledger.OpenWallet(identity)
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		db := txStore.(*Store).db.WithContext(ctx)
		identityRow := Identity{
			IdentityID: identity.ID().String(),
			Role:       identity.Role().String(),
			CreatedAt:  identity.CreatedAt(),
		}
		if err := db.Create(&identityRow).Error; err != nil {
			if isUniqueViolation(err) {
				return wrapStoreError(errorSubjectIdentity, errorCodeDuplicate, ledger.ErrDuplicateIdentity)
			}
			return wrapStoreError(errorSubjectIdentity, errorCodeCreate, err)
		}
		walletRow := walletModel(opened)
		if err := db.Create(&walletRow).Error; err != nil {
			return wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
		}
		return nil
	})
	if err != nil {
		return ledger.Wallet{}, err
	}
	return opened, nil
}

func (store *Store) GetIdentity(ctx context.Context, identityID ledger.IdentityID) (ledger.Identity, error) {
	var row Identity
	err := store.db.WithContext(ctx).Where("identity_id = ?", identityID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Identity{}, ledger.NewNotFoundError(ledger.ResourceIdentity, identityID.String())
		}
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeGet, err)
	}
	identity, err := mapIdentity(row)
	if err != nil {
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeInvalid, err)
	}
	return identity, nil
}

func (store *Store) GetWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	return store.findWallet(store.db.WithContext(ctx), identityID, errorCodeGet)
}

// LockWallet reads the wallet with SELECT ... FOR UPDATE. SQLite ignores the
// locking clause and serializes writers at the database level instead.
func (store *Store) LockWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	return store.findWallet(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), identityID, errorCodeLock)
}

func (store *Store) findWallet(db *gorm.DB, identityID ledger.IdentityID, code string) (ledger.Wallet, error) {
	var row Wallet
	err := db.Where("identity_id = ?", identityID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Wallet{}, ledger.NewNotFoundError(ledger.ResourceWallet, identityID.String())
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, code, classify(err))
	}
	wallet, err := mapWallet(row)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet, nil
}

// UpdateWallet writes balance and timestamp only if the stored version still
// matches wallet.Version().
func (store *Store) UpdateWallet(ctx context.Context, wallet ledger.Wallet) (ledger.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("identity_id = ? AND version = ?", wallet.Identity().String(), wallet.Version()).
		Updates(map[string]any{
			"balance_cents": wallet.Balance().Cents(),
			"last_updated":  wallet.LastUpdated(),
			"version":       wallet.Version() + 1,
		})
	if result.Error != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeUpdate, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrConcurrentModification)
	}
	return wallet.NextVersion(), nil
}

func (store *Store) ListWallets(ctx context.Context) ([]ledger.Wallet, error) {
	var rows []Wallet
	if err := store.db.WithContext(ctx).Order("identity_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
	}
	wallets := make([]ledger.Wallet, 0, len(rows))
	for _, row := range rows {
		wallet, err := mapWallet(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

func (store *Store) CreateItem(ctx context.Context, draft ledger.ItemDraft, createdAt time.Time) (ledger.Item, error) {
	row := Item{
		Name:        draft.Details().Name(),
		Description: draft.Details().Description(),
		Category:    draft.Details().Category(),
		PriceCents:  draft.Price().Cents(),
		Stock:       draft.Stock(),
		Active:      draft.Active(),
		CreatedAt:   createdAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeCreate, classify(err))
	}
	item, err := mapItem(row)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
	}
	return item, nil
}

func (store *Store) GetItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	return store.findItem(store.db.WithContext(ctx), itemID, errorCodeGet)
}

func (store *Store) LockItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	return store.findItem(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate}), itemID, errorCodeLock)
}

func (store *Store) findItem(db *gorm.DB, itemID ledger.ItemID, code string) (ledger.Item, error) {
	var row Item
	err := db.Where("item_id = ?", itemID.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Item{}, ledger.NewNotFoundError(ledger.ResourceItem, itemID.String())
		}
		return ledger.Item{}, wrapStoreError(errorSubjectItem, code, classify(err))
	}
	item, err := mapItem(row)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
	}
	return item, nil
}

func (store *Store) UpdateItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	result := store.db.WithContext(ctx).
		Model(&Item{}).
		Where("item_id = ? AND version = ?", item.ID().String(), item.Version()).
		Updates(map[string]any{
			"name":        item.Name(),
			"description": item.Description(),
			"category":    item.Category(),
			"price_cents": item.Price().Cents(),
			"stock":       item.Stock(),
			"active":      item.Active(),
			"removed":     item.Removed(),
			"version":     item.Version() + 1,
		})
	if result.Error != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeUpdate, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeUpdate, ledger.ErrConcurrentModification)
	}
	return item.NextVersion(), nil
}

func (store *Store) ListItems(ctx context.Context, filter ledger.ItemFilter) ([]ledger.Item, error) {
	query := store.db.WithContext(ctx).Model(&Item{})
	if !filter.IncludeRemoved {
		query = query.Where("removed = ?", false)
	}
	if filter.AvailableOnly {
		query = query.Where("active = ? AND stock > 0", true)
	}
	if filter.StockBelow > 0 {
		query = query.Where("active = ? AND removed = ? AND stock < ?", true, false, filter.StockBelow).Order("stock")
	}
	var rows []Item
	if err := query.Order("name").Order("item_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectItem, errorCodeList, err)
	}
	items := make([]ledger.Item, 0, len(rows))
	for _, row := range rows {
		item, err := mapItem(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (store *Store) AppendEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	row := LedgerEntry{
		Kind:        input.Kind().String(),
		SenderID:    optionalIdentity(input.Sender()),
		ReceiverID:  optionalIdentity(input.Receiver()),
		AmountCents: input.Amount().Cents(),
		Description: input.Description().String(),
		Metadata:    datatypes.JSON([]byte(input.Metadata().String())),
		CreatedAt:   input.CreatedAt(),
	}
	if itemID, ok := input.ItemID(); ok {
		value := itemID.String()
		row.ItemID = &value
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, classify(err))
	}
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entry, err := ledger.NewEntry(entryID, row.Sequence, input)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).Model(&LedgerEntry{})
	if !filter.Identity.IsZero() {
		query = query.Where("sender_id = ? OR receiver_id = ?", filter.Identity.String(), filter.Identity.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []LedgerEntry
	if err := query.Order("created_at DESC").Order("sequence DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SumEntries aggregates both directions in one statement so they come from
// the same snapshot.
func (store *Store) SumEntries(ctx context.Context, identityID ledger.IdentityID) (ledger.Totals, error) {
	var sums sqlTotals
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select(sqlSumEntries, identityID.String(), identityID.String()).
		Where("sender_id = ? OR receiver_id = ?", identityID.String(), identityID.String()).
		Scan(&sums).Error
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	credits, err := ledger.TokensFromCents(sums.Credits)
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	debits, err := ledger.TokensFromCents(sums.Debits)
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return ledger.Totals{Credits: credits, Debits: debits}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlTotals struct {
	Credits int64
	Debits  int64
}

func isTransaction(db *gorm.DB) bool {
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

func walletModel(wallet ledger.Wallet) Wallet {
	return Wallet{
		IdentityID:   wallet.Identity().String(),
		BalanceCents: wallet.Balance().Cents(),
		LastUpdated:  wallet.LastUpdated(),
		Version:      wallet.Version(),
	}
}

func optionalIdentity(identityID ledger.IdentityID, ok bool) *string {
	if !ok {
		return nil
	}
	value := identityID.String()
	return &value
}

func mapIdentity(row Identity) (ledger.Identity, error) {
	identityID, err := ledger.NewIdentityID(row.IdentityID)
	if err != nil {
		return ledger.Identity{}, err
	}
	role, err := ledger.ParseRole(row.Role)
	if err != nil {
		return ledger.Identity{}, err
	}
	return ledger.NewIdentity(identityID, role, row.CreatedAt)
}

func mapWallet(row Wallet) (ledger.Wallet, error) {
	identityID, err := ledger.NewIdentityID(row.IdentityID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	balance, err := ledger.TokensFromCents(row.BalanceCents)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return ledger.NewWallet(identityID, balance, row.LastUpdated, row.Version)
}

func mapItem(row Item) (ledger.Item, error) {
	itemID, err := ledger.NewItemID(row.ItemID)
	if err != nil {
		return ledger.Item{}, err
	}
	details, err := ledger.NewItemDetails(row.Name, row.Description, row.Category)
	if err != nil {
		return ledger.Item{}, err
	}
	price, err := ledger.PositiveTokensFromCents(row.PriceCents)
	if err != nil {
		return ledger.Item{}, err
	}
	draft, err := ledger.NewItemDraft(details, price, row.Stock, row.Active)
	if err != nil {
		return ledger.Item{}, err
	}
	return ledger.NewItem(itemID, draft, row.Removed, row.CreatedAt, row.Version)
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	sender, err := parseOptionalIdentity(row.SenderID)
	if err != nil {
		return ledger.Entry{}, err
	}
	receiver, err := parseOptionalIdentity(row.ReceiverID)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.PositiveTokensFromCents(row.AmountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	description, err := ledger.NewDescription(row.Description)
	if err != nil {
		return ledger.Entry{}, err
	}
	var itemID *ledger.ItemID
	if row.ItemID != nil {
		parsedItemID, err := ledger.NewItemID(*row.ItemID)
		if err != nil {
			return ledger.Entry{}, err
		}
		itemID = &parsedItemID
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	input, err := ledger.NewEntryInput(kind, sender, receiver, amount, description, itemID, metadata, row.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.NewEntry(entryID, row.Sequence, input)
}

func parseOptionalIdentity(raw *string) (*ledger.IdentityID, error) {
	if raw == nil {
		return nil, nil
	}
	identityID, err := ledger.NewIdentityID(*raw)
	if err != nil {
		return nil, err
	}
	return &identityID, nil
}

// classify turns serialization failures, deadlocks and busy databases into
// ErrConcurrentModification so the caller can retry the whole unit.
func classify(err error) error {
	if isConflict(err) {
		return conflictError(err)
	}
	return err
}

func conflictError(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
}

func isConflict(err error) bool {
	if err == nil || errors.Is(err, ledger.ErrConcurrentModification) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
