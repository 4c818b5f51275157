package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Identity mirrors the identities table.
type Identity struct {
	IdentityID string    `gorm:"primaryKey"`
	Role       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Identity) TableName() string { return "identities" }

// Wallet mirrors the wallets table. Balances are stored in hundredths.
type Wallet struct {
	IdentityID   string    `gorm:"primaryKey"`
	BalanceCents int64     `gorm:"not null;check:chk_wallets_balance_non_negative,balance_cents >= 0"`
	LastUpdated  time.Time `gorm:"not null"`
	Version      int64     `gorm:"not null;default:0"`
}

func (Wallet) TableName() string { return "wallets" }

// Item mirrors the items table.
type Item struct {
	ItemID      string    `gorm:"primaryKey"`
	Name        string    `gorm:"not null;index:idx_items_name"`
	Description string    `gorm:"not null;default:''"`
	Category    string    `gorm:"not null;default:''"`
	PriceCents  int64     `gorm:"not null;check:chk_items_price_positive,price_cents > 0"`
	Stock       int64     `gorm:"not null;check:chk_items_stock_non_negative,stock >= 0"`
	Active      bool      `gorm:"not null"`
	Removed     bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
	Version     int64     `gorm:"not null;default:0"`
}

func (Item) TableName() string { return "items" }

func (item *Item) BeforeCreate(tx *gorm.DB) error {
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Sequence is assigned by the
// database and orders entries that share a timestamp.
type LedgerEntry struct {
	Sequence    int64          `gorm:"primaryKey;autoIncrement"`
	EntryID     string         `gorm:"not null;uniqueIndex:uniq_ledger_entries_entry_id"`
	Kind        string         `gorm:"not null"`
	SenderID    *string        `gorm:"index:idx_ledger_entries_sender_created,priority:1"`
	ReceiverID  *string        `gorm:"index:idx_ledger_entries_receiver_created,priority:1"`
	AmountCents int64          `gorm:"not null;check:chk_ledger_entries_amount_positive,amount_cents > 0"`
	Description string         `gorm:"not null"`
	ItemID      *string        `gorm:""`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_ledger_entries_sender_created,priority:2;index:idx_ledger_entries_receiver_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Models lists the tables in dependency order, for AutoMigrate on SQLite.
func Models() []any {
	return []any{&Identity{}, &Wallet{}, &Item{}, &LedgerEntry{}}
}
