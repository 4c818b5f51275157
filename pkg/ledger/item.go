package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ItemDetails holds the descriptive fields of a catalog item.
type ItemDetails struct {
	name        string
	description string
	category    string
}

// NewItemDetails validates name, description and category.
func NewItemDetails(name string, description string, category string) (ItemDetails, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return ItemDetails{}, fmt.Errorf("%w: empty value", ErrInvalidItemName)
	}
	if utf8.RuneCountInString(trimmedName) > maxItemNameLength {
		return ItemDetails{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidItemName, maxItemNameLength)
	}
	trimmedCategory := strings.TrimSpace(category)
	if utf8.RuneCountInString(trimmedCategory) > maxCategoryLength {
		return ItemDetails{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidCategory, maxCategoryLength)
	}
	return ItemDetails{
		name:        trimmedName,
		description: strings.TrimSpace(description),
		category:    trimmedCategory,
	}, nil
}

// Name returns the display name.
func (details ItemDetails) Name() string {
	return details.name
}

// Description returns the long description.
func (details ItemDetails) Description() string {
	return details.description
}

// Category returns the category label.
func (details ItemDetails) Category() string {
	return details.category
}

// ItemDraft is a validated item that has not been stored yet.
type ItemDraft struct {
	details ItemDetails
	price   PositiveTokens
	stock   int64
	active  bool
}

// NewItemDraft validates a new catalog item.
func NewItemDraft(details ItemDetails, price PositiveTokens, stock int64, active bool) (ItemDraft, error) {
	if details.name == "" {
		return ItemDraft{}, fmt.Errorf("%w: empty value", ErrInvalidItemName)
	}
	if price.isZero() {
		return ItemDraft{}, fmt.Errorf("%w: price must be greater than zero", ErrInvalidAmount)
	}
	if stock < 0 {
		return ItemDraft{}, fmt.Errorf("%w: %d", ErrInvalidStock, stock)
	}
	return ItemDraft{details: details, price: price, stock: stock, active: active}, nil
}

// Details returns the descriptive fields.
func (draft ItemDraft) Details() ItemDetails {
	return draft.details
}

// Price returns the unit price.
func (draft ItemDraft) Price() PositiveTokens {
	return draft.price
}

// Stock returns the initial stock.
func (draft ItemDraft) Stock() int64 {
	return draft.stock
}

// Active returns the initial availability flag.
func (draft ItemDraft) Active() bool {
	return draft.active
}

// Item is a stored catalog entry.
type Item struct {
	id        ItemID
	details   ItemDetails
	price     PositiveTokens
	stock     int64
	active    bool
	removed   bool
	createdAt time.Time
	version   int64
}

// NewItem validates a stored item row.
func NewItem(id ItemID, draft ItemDraft, removed bool, createdAt time.Time, version int64) (Item, error) {
	if id.IsZero() {
		return Item{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	if _, err := NewItemDraft(draft.details, draft.price, draft.stock, draft.active); err != nil {
		return Item{}, err
	}
	if createdAt.IsZero() {
		return Item{}, fmt.Errorf("%w: created at is zero", ErrInvalidTimestamp)
	}
	if version < 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	return Item{
		id:        id,
		details:   draft.details,
		price:     draft.price,
		stock:     draft.stock,
		active:    draft.active && !removed,
		removed:   removed,
		createdAt: createdAt.UTC(),
		version:   version,
	}, nil
}

// ID returns the item id.
func (item Item) ID() ItemID {
	return item.id
}

// Details returns the descriptive fields.
func (item Item) Details() ItemDetails {
	return item.details
}

// Name returns the display name.
func (item Item) Name() string {
	return item.details.name
}

// Description returns the long description.
func (item Item) Description() string {
	return item.details.description
}

// Category returns the category label.
func (item Item) Category() string {
	return item.details.category
}

// Price returns the unit price.
func (item Item) Price() PositiveTokens {
	return item.price
}

// Stock returns the units on hand.
func (item Item) Stock() int64 {
	return item.stock
}

// Active reports whether the item is offered.
func (item Item) Active() bool {
	return item.active
}

// Removed reports whether the item was permanently withdrawn.
func (item Item) Removed() bool {
	return item.removed
}

// CreatedAt returns when the item was added.
func (item Item) CreatedAt() time.Time {
	return item.createdAt
}

// Version returns the optimistic concurrency counter.
func (item Item) Version() int64 {
	return item.version
}

// Available reports whether the item can be purchased right now.
func (item Item) Available() bool {
	return item.active && !item.removed && item.stock > 0
}

// NextVersion is the copy a store returns after persisting item.
func (item Item) NextVersion() Item {
	item.version++
	return item
}

func (item Item) withStock(stock int64) Item {
	item.stock = stock
	return item
}

func (item Item) withRemoved() Item {
	item.removed = true
	item.active = false
	return item
}

// ItemChanges lists the catalog-management edits to apply; nil fields are left unchanged.
type ItemChanges struct {
	Details *ItemDetails
	Price   *PositiveTokens
	Stock   *int64
	Active  *bool
}

func (item Item) apply(changes ItemChanges) (Item, error) {
	if item.removed {
		return Item{}, fmt.Errorf("%w: %s", ErrItemRemoved, item.id)
	}
	if changes.Details != nil {
		if changes.Details.name == "" {
			return Item{}, fmt.Errorf("%w: empty value", ErrInvalidItemName)
		}
		item.details = *changes.Details
	}
	if changes.Price != nil {
		if changes.Price.isZero() {
			return Item{}, fmt.Errorf("%w: price must be greater than zero", ErrInvalidAmount)
		}
		item.price = *changes.Price
	}
	if changes.Stock != nil {
		if *changes.Stock < 0 {
			return Item{}, fmt.Errorf("%w: %d", ErrInvalidStock, *changes.Stock)
		}
		item.stock = *changes.Stock
	}
	if changes.Active != nil {
		item.active = *changes.Active
	}
	return item, nil
}

// Draft returns the mutable fields of item, for stores that persist them.
func (item Item) Draft() ItemDraft {
	return ItemDraft{details: item.details, price: item.price, stock: item.stock, active: item.active}
}
