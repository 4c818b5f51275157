package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore     = "store"
	errorSubjectIdentity    = "identity"
	errorSubjectWallet      = "wallet"
	errorSubjectItem        = "item"
	errorSubjectEntry       = "entry"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeLock           = "lock"
	errorCodeUpdate         = "update"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSum            = "sum"

	sqlInsertIdentity = `
		insert into identities(identity_id, role, created_at) values ($1, $2, $3)
	`

	sqlInsertWallet = `
		insert into wallets(identity_id, balance_cents, last_updated, version) values ($1, 0, $2, 0)
	`

	sqlSelectIdentity = `
		select identity_id, role, created_at from identities where identity_id = $1
	`

	sqlSelectWallet = `
		select identity_id, balance_cents, last_updated, version from wallets where identity_id = $1
	`

	sqlLockWallet = sqlSelectWallet + ` for update`

	sqlUpdateWallet = `
		update wallets
		set balance_cents = $2, last_updated = $3, version = version + 1
		where identity_id = $1 and version = $4
	`

	sqlListWallets = `
		select identity_id, balance_cents, last_updated, version from wallets order by identity_id
	`

	sqlInsertItem = `
		insert into items(item_id, name, description, category, price_cents, stock, active, removed, created_at, version)
		values (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, false, $7, 0)
		returning item_id
	`

	sqlItemColumns = `item_id, name, description, category, price_cents, stock, active, removed, created_at, version`

	sqlSelectItem = `select ` + sqlItemColumns + ` from items where item_id = $1`

	sqlLockItem = sqlSelectItem + ` for update`

	sqlUpdateItem = `
		update items
		set name = $2, description = $3, category = $4, price_cents = $5, stock = $6, active = $7, removed = $8, version = version + 1
		where item_id = $1 and version = $9
	`

	sqlListItems = `select ` + sqlItemColumns + ` from items
		where ($1::boolean or not removed)
		and (not $2::boolean or (active and stock > 0))
		and ($3::bigint <= 0 or (active and not removed and stock < $3::bigint))
		order by case when $3::bigint > 0 then stock else 0 end, name, item_id
	`

	sqlInsertEntry = `
		insert into ledger_entries(entry_id, kind, sender_id, receiver_id, amount_cents, description, item_id, metadata, created_at)
		values (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		returning entry_id, sequence
	`

	sqlListEntries = `
		select sequence, entry_id, kind, sender_id, receiver_id, amount_cents, description, item_id, metadata::text, created_at
		from ledger_entries
		where ($1::text = '' or sender_id = $1 or receiver_id = $1)
		order by created_at desc, sequence desc
		limit $2
	`

	sqlSumEntries = `
		select
			coalesce(sum(case when receiver_id = $1 then amount_cents else 0 end), 0)::bigint,
			coalesce(sum(case when sender_id = $1 then amount_cents else 0 end), 0)::bigint
		from ledger_entries
		where sender_id = $1 or receiver_id = $1
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	// Rollback is a no-op after Commit; deferring it also releases the
	// connection when fn panics.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, classify(err))
	}
	return nil
}

// CreateIdentity inserts the identity and its wallet in one transaction.
func (store *Store) CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Wallet, error) {
	var wallet ledger.Wallet
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		created, err := txStore.CreateIdentity(ctx, identity)
		wallet = created
		return err
	})
	return wallet, err
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Wallet, error) {
	_, err := store.tx.Exec(ctx, sqlInsertIdentity, identity.ID().String(), identity.Role().String(), identity.CreatedAt())
	if isUniqueViolation(err) {
		return ledger.Wallet{}, wrapStoreError(errorSubjectIdentity, errorCodeDuplicate, ledger.ErrDuplicateIdentity)
	}
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectIdentity, errorCodeCreate, err)
	}
	if _, err := store.tx.Exec(ctx, sqlInsertWallet, identity.ID().String(), identity.CreatedAt()); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	return ledger.OpenWallet(identity), nil
}

func (queries queries) GetIdentity(ctx context.Context, identityID ledger.IdentityID) (ledger.Identity, error) {
	var (
		identityValue string
		roleValue     string
		createdAt     time.Time
	)
	err := queries.db.QueryRow(ctx, sqlSelectIdentity, identityID.String()).Scan(&identityValue, &roleValue, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Identity{}, ledger.NewNotFoundError(ledger.ResourceIdentity, identityID.String())
		}
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeGet, err)
	}
	parsedIdentityID, err := ledger.NewIdentityID(identityValue)
	if err != nil {
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeInvalid, err)
	}
	role, err := ledger.ParseRole(roleValue)
	if err != nil {
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeInvalid, err)
	}
	identity, err := ledger.NewIdentity(parsedIdentityID, role, createdAt)
	if err != nil {
		return ledger.Identity{}, wrapStoreError(errorSubjectIdentity, errorCodeInvalid, err)
	}
	return identity, nil
}

func (queries queries) GetWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	return queries.selectWallet(ctx, sqlSelectWallet, identityID, errorCodeGet)
}

func (queries queries) LockWallet(ctx context.Context, identityID ledger.IdentityID) (ledger.Wallet, error) {
	return queries.selectWallet(ctx, sqlLockWallet, identityID, errorCodeLock)
}

func (queries queries) selectWallet(ctx context.Context, query string, identityID ledger.IdentityID, code string) (ledger.Wallet, error) {
	wallet, err := scanWallet(queries.db.QueryRow(ctx, query, identityID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Wallet{}, ledger.NewNotFoundError(ledger.ResourceWallet, identityID.String())
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, code, classify(err))
	}
	return wallet, nil
}

func (queries queries) UpdateWallet(ctx context.Context, wallet ledger.Wallet) (ledger.Wallet, error) {
	tag, err := queries.db.Exec(ctx, sqlUpdateWallet,
		wallet.Identity().String(),
		wallet.Balance().Cents(),
		wallet.LastUpdated(),
		wallet.Version(),
	)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeUpdate, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrConcurrentModification)
	}
	return wallet.NextVersion(), nil
}

func (queries queries) ListWallets(ctx context.Context) ([]ledger.Wallet, error) {
	rows, err := queries.db.Query(ctx, sqlListWallets)
	if err != nil {
		return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
	}
	defer rows.Close()
	wallets := make([]ledger.Wallet, 0)
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
	}
	return wallets, nil
}

func (queries queries) CreateItem(ctx context.Context, draft ledger.ItemDraft, createdAt time.Time) (ledger.Item, error) {
	var itemValue string
	err := queries.db.QueryRow(ctx, sqlInsertItem,
		draft.Details().Name(),
		draft.Details().Description(),
		draft.Details().Category(),
		draft.Price().Cents(),
		draft.Stock(),
		draft.Active(),
		createdAt.UTC(),
	).Scan(&itemValue)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeCreate, classify(err))
	}
	itemID, err := ledger.NewItemID(itemValue)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
	}
	item, err := ledger.NewItem(itemID, draft, false, createdAt, 0)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
	}
	return item, nil
}

func (queries queries) GetItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	return queries.selectItem(ctx, sqlSelectItem, itemID, errorCodeGet)
}

func (queries queries) LockItem(ctx context.Context, itemID ledger.ItemID) (ledger.Item, error) {
	return queries.selectItem(ctx, sqlLockItem, itemID, errorCodeLock)
}

func (queries queries) selectItem(ctx context.Context, query string, itemID ledger.ItemID, code string) (ledger.Item, error) {
	item, err := scanItem(queries.db.QueryRow(ctx, query, itemID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Item{}, ledger.NewNotFoundError(ledger.ResourceItem, itemID.String())
		}
		return ledger.Item{}, wrapStoreError(errorSubjectItem, code, classify(err))
	}
	return item, nil
}

func (queries queries) UpdateItem(ctx context.Context, item ledger.Item) (ledger.Item, error) {
	tag, err := queries.db.Exec(ctx, sqlUpdateItem,
		item.ID().String(),
		item.Name(),
		item.Description(),
		item.Category(),
		item.Price().Cents(),
		item.Stock(),
		item.Active(),
		item.Removed(),
		item.Version(),
	)
	if err != nil {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeUpdate, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.Item{}, wrapStoreError(errorSubjectItem, errorCodeUpdate, ledger.ErrConcurrentModification)
	}
	return item.NextVersion(), nil
}

func (queries queries) ListItems(ctx context.Context, filter ledger.ItemFilter) ([]ledger.Item, error) {
	rows, err := queries.db.Query(ctx, sqlListItems, filter.IncludeRemoved, filter.AvailableOnly, filter.StockBelow)
	if err != nil {
		return nil, wrapStoreError(errorSubjectItem, errorCodeList, err)
	}
	defer rows.Close()
	items := make([]ledger.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectItem, errorCodeInvalid, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectItem, errorCodeList, err)
	}
	return items, nil
}

func (queries queries) AppendEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	var itemValue *string
	if itemID, ok := input.ItemID(); ok {
		value := itemID.String()
		itemValue = &value
	}
	var (
		entryValue string
		sequence   int64
	)
	err := queries.db.QueryRow(ctx, sqlInsertEntry,
		input.Kind().String(),
		optionalIdentity(input.Sender()),
		optionalIdentity(input.Receiver()),
		input.Amount().Cents(),
		input.Description().String(),
		itemValue,
		input.Metadata().String(),
		input.CreatedAt(),
	).Scan(&entryValue, &sequence)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, classify(err))
	}
	entryID, err := ledger.NewEntryID(entryValue)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entry, err := ledger.NewEntry(entryID, sequence, input)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (queries queries) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := queries.db.Query(ctx, sqlListEntries, filter.Identity.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func (queries queries) SumEntries(ctx context.Context, identityID ledger.IdentityID) (ledger.Totals, error) {
	var creditCents, debitCents int64
	err := queries.db.QueryRow(ctx, sqlSumEntries, identityID.String()).Scan(&creditCents, &debitCents)
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	credits, err := ledger.TokensFromCents(creditCents)
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	debits, err := ledger.TokensFromCents(debitCents)
	if err != nil {
		return ledger.Totals{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return ledger.Totals{Credits: credits, Debits: debits}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func scanWallet(row pgx.Row) (ledger.Wallet, error) {
	var (
		identityValue string
		balanceCents  int64
		lastUpdated   time.Time
		version       int64
	)
	if err := row.Scan(&identityValue, &balanceCents, &lastUpdated, &version); err != nil {
		return ledger.Wallet{}, err
	}
	identityID, err := ledger.NewIdentityID(identityValue)
	if err != nil {
		return ledger.Wallet{}, err
	}
	balance, err := ledger.TokensFromCents(balanceCents)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return ledger.NewWallet(identityID, balance, lastUpdated, version)
}

func scanItem(row pgx.Row) (ledger.Item, error) {
	var (
		itemValue   string
		name        string
		description string
		category    string
		priceCents  int64
		stock       int64
		active      bool
		removed     bool
		createdAt   time.Time
		version     int64
	)
	if err := row.Scan(&itemValue, &name, &description, &category, &priceCents, &stock, &active, &removed, &createdAt, &version); err != nil {
		return ledger.Item{}, err
	}
	itemID, err := ledger.NewItemID(itemValue)
	if err != nil {
		return ledger.Item{}, err
	}
	details, err := ledger.NewItemDetails(name, description, category)
	if err != nil {
		return ledger.Item{}, err
	}
	price, err := ledger.PositiveTokensFromCents(priceCents)
	if err != nil {
		return ledger.Item{}, err
	}
	draft, err := ledger.NewItemDraft(details, price, stock, active)
	if err != nil {
		return ledger.Item{}, err
	}
	return ledger.NewItem(itemID, draft, removed, createdAt, version)
}

func scanEntries(rows pgx.Rows) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0)
	for rows.Next() {
		var (
			sequence      int64
			entryValue    string
			kindValue     string
			senderValue   *string
			receiverValue *string
			amountCents   int64
			description   string
			itemValue     *string
			metadataValue string
			createdAt     time.Time
		)
		if err := rows.Scan(
			&sequence,
			&entryValue,
			&kindValue,
			&senderValue,
			&receiverValue,
			&amountCents,
			&description,
			&itemValue,
			&metadataValue,
			&createdAt,
		); err != nil {
			return nil, err
		}
		entry, err := mapEntry(sequence, entryValue, kindValue, senderValue, receiverValue, amountCents, description, itemValue, metadataValue, createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func mapEntry(
	sequence int64,
	entryValue string,
	kindValue string,
	senderValue *string,
	receiverValue *string,
	amountCents int64,
	descriptionValue string,
	itemValue *string,
	metadataValue string,
	createdAt time.Time,
) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(entryValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(kindValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	sender, err := parseOptionalIdentity(senderValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	receiver, err := parseOptionalIdentity(receiverValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.PositiveTokensFromCents(amountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	description, err := ledger.NewDescription(descriptionValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	var itemID *ledger.ItemID
	if itemValue != nil {
		parsedItemID, err := ledger.NewItemID(*itemValue)
		if err != nil {
			return ledger.Entry{}, err
		}
		itemID = &parsedItemID
	}
	metadata, err := ledger.NewMetadataJSON(metadataValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	input, err := ledger.NewEntryInput(kind, sender, receiver, amount, description, itemID, metadata, createdAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.NewEntry(entryID, sequence, input)
}

func optionalIdentity(identityID ledger.IdentityID, ok bool) *string {
	if !ok {
		return nil
	}
	value := identityID.String()
	return &value
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

// classify marks serialization failures and deadlocks as retryable conflicts.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected) {
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
