package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// IdentityID identifies a wallet holder.
type IdentityID struct {
	value string
}

// ItemID identifies a catalog item.
type ItemID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// MetadataJSON stores arbitrary request metadata as a JSON object.
type MetadataJSON struct {
	value string
}

// Description is the free-text reason recorded on a ledger entry.
type Description struct {
	value string
}

// NewIdentityID validates and normalizes an identity id.
func NewIdentityID(raw string) (IdentityID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdentityID{}, fmt.Errorf("%w: empty value", ErrInvalidIdentityID)
	}
	return IdentityID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id IdentityID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id IdentityID) IsZero() bool {
	return id.value == ""
}

// NewItemID validates and normalizes an item id.
func NewItemID(raw string) (ItemID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ItemID{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	return ItemID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ItemID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id ItemID) IsZero() bool {
	return id.value == ""
}

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(normalized), &object); err != nil || object == nil {
		return MetadataJSON{}, fmt.Errorf("%w: must be a json object", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

// NewDescription validates a ledger description.
func NewDescription(raw string) (Description, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Description{}, fmt.Errorf("%w: empty value", ErrInvalidDescription)
	}
	if utf8.RuneCountInString(trimmed) > maxDescriptionLength {
		return Description{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidDescription, maxDescriptionLength)
	}
	return Description{value: trimmed}, nil
}

// String returns the description text.
func (description Description) String() string {
	return description.value
}

// Role tags an identity for authorization decisions.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleStudent, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// Capability names a permission checked once per engine operation.
type Capability string

const (
	// CapabilityAdminOperations covers credits, refunds, penalties, catalog edits and ledger-wide reads.
	CapabilityAdminOperations Capability = "admin_operations"
)

// Allows reports whether the role grants capability.
func (role Role) Allows(capability Capability) bool {
	switch capability {
	case CapabilityAdminOperations:
		return role == RoleAdmin
	default:
		return false
	}
}

// Identity is a provisioned wallet holder.
type Identity struct {
	id        IdentityID
	role      Role
	createdAt time.Time
}

// NewIdentity validates an identity record.
func NewIdentity(id IdentityID, role Role, createdAt time.Time) (Identity, error) {
	if id.IsZero() {
		return Identity{}, fmt.Errorf("%w: empty value", ErrInvalidIdentityID)
	}
	if _, err := ParseRole(role.String()); err != nil {
		return Identity{}, err
	}
	if createdAt.IsZero() {
		return Identity{}, fmt.Errorf("%w: created at is zero", ErrInvalidTimestamp)
	}
	return Identity{id: id, role: role, createdAt: createdAt.UTC()}, nil
}

// ID returns the identity id.
func (identity Identity) ID() IdentityID {
	return identity.id
}

// Role returns the identity role.
func (identity Identity) Role() Role {
	return identity.role
}

// CreatedAt returns the provisioning time.
func (identity Identity) CreatedAt() time.Time {
	return identity.createdAt
}

// ItemFilter selects catalog items.
type ItemFilter struct {
	// AvailableOnly keeps active items with stock above zero.
	AvailableOnly bool
	// StockBelow, when positive, keeps active items with stock strictly below it.
	StockBelow int64
	// IncludeRemoved keeps permanently removed items.
	IncludeRemoved bool
}

// Matches reports whether item passes the filter.
func (filter ItemFilter) Matches(item Item) bool {
	if item.Removed() && !filter.IncludeRemoved {
		return false
	}
	if filter.AvailableOnly && !item.Available() {
		return false
	}
	if filter.StockBelow > 0 && (!item.Active() || item.Removed() || item.Stock() >= filter.StockBelow) {
		return false
	}
	return true
}

// Less orders items for listings: by stock for low-stock reports, by name otherwise.
func (filter ItemFilter) Less(left Item, right Item) bool {
	if filter.StockBelow > 0 && left.Stock() != right.Stock() {
		return left.Stock() < right.Stock()
	}
	if left.Name() != right.Name() {
		return left.Name() < right.Name()
	}
	return left.ID().String() < right.ID().String()
}

// EntryFilter selects ledger entries. A zero Identity selects the whole ledger.
type EntryFilter struct {
	Identity IdentityID
	Limit    int
}

// Matches reports whether entry passes the filter.
func (filter EntryFilter) Matches(entry Entry) bool {
	if filter.Identity.IsZero() {
		return true
	}
	return entry.Involves(filter.Identity)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateIdentity(ctx context.Context, identity Identity) (Wallet, error)
	GetIdentity(ctx context.Context, identityID IdentityID) (Identity, error)
	GetWallet(ctx context.Context, identityID IdentityID) (Wallet, error)
	LockWallet(ctx context.Context, identityID IdentityID) (Wallet, error)
	UpdateWallet(ctx context.Context, wallet Wallet) (Wallet, error)
	ListWallets(ctx context.Context) ([]Wallet, error)
	CreateItem(ctx context.Context, draft ItemDraft, createdAt time.Time) (Item, error)
	GetItem(ctx context.Context, itemID ItemID) (Item, error)
	LockItem(ctx context.Context, itemID ItemID) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	AppendEntry(ctx context.Context, input EntryInput) (Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	SumEntries(ctx context.Context, identityID IdentityID) (Totals, error)
}
