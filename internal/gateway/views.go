// Package gateway adapts transport requests to the ledger service and renders
// its results as the JSON shapes shared by the gRPC and HTTP transports.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
)

const timestampLayout = time.RFC3339Nano

// WalletView is the transport form of a wallet. Amounts travel as decimal strings.
type WalletView struct {
	IdentityID  string `json:"identity_id"`
	Balance     string `json:"balance"`
	LastUpdated string `json:"last_updated"`
	Version     int64  `json:"version"`
}

// ItemView is the transport form of a catalog item.
type ItemView struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	Active      bool   `json:"active"`
	Removed     bool   `json:"removed"`
	Available   bool   `json:"available"`
	CreatedAt   string `json:"created_at"`
}

// EntryView is the transport form of a ledger entry.
type EntryView struct {
	EntryID     string          `json:"entry_id"`
	Sequence    int64           `json:"sequence"`
	Kind        string          `json:"kind"`
	SenderID    string          `json:"sender_id,omitempty"`
	ReceiverID  string          `json:"receiver_id,omitempty"`
	Amount      string          `json:"amount"`
	Description string          `json:"description"`
	ItemID      string          `json:"item_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   string          `json:"created_at"`
}

// TotalsView carries running totals for one identity.
type TotalsView struct {
	IdentityID string `json:"identity_id"`
	Credits    string `json:"credits"`
	Debits     string `json:"debits"`
	Net        string `json:"net"`
}

// ReceiptView is returned by every balance-changing operation.
type ReceiptView struct {
	Entry     EntryView  `json:"entry"`
	Wallet    WalletView `json:"wallet"`
	Item      *ItemView  `json:"item,omitempty"`
	Restocked bool       `json:"restocked"`
}

// IdentityView is returned by provisioning.
type IdentityView struct {
	IdentityID string     `json:"identity_id"`
	Role       string     `json:"role"`
	CreatedAt  string     `json:"created_at"`
	Wallet     WalletView `json:"wallet"`
}

func NewWalletView(wallet ledger.Wallet) WalletView {
	return WalletView{
		IdentityID:  wallet.Identity().String(),
		Balance:     wallet.Balance().String(),
		LastUpdated: formatTime(wallet.LastUpdated()),
		Version:     wallet.Version(),
	}
}

func NewItemView(item ledger.Item) ItemView {
	return ItemView{
		ItemID:      item.ID().String(),
		Name:        item.Name(),
		Description: item.Description(),
		Category:    item.Category(),
		Price:       item.Price().String(),
		Stock:       item.Stock(),
		Active:      item.Active(),
		Removed:     item.Removed(),
		Available:   item.Available(),
		CreatedAt:   formatTime(item.CreatedAt()),
	}
}

func NewEntryView(entry ledger.Entry) EntryView {
	view := EntryView{
		EntryID:     entry.EntryID().String(),
		Sequence:    entry.Sequence(),
		Kind:        entry.Kind().String(),
		Amount:      entry.Amount().String(),
		Description: entry.Description().String(),
		Metadata:    json.RawMessage(entry.Metadata().String()),
		CreatedAt:   formatTime(entry.CreatedAt()),
	}
	if sender, ok := entry.Sender(); ok {
		view.SenderID = sender.String()
	}
	if receiver, ok := entry.Receiver(); ok {
		view.ReceiverID = receiver.String()
	}
	if itemID, ok := entry.ItemID(); ok {
		view.ItemID = itemID.String()
	}
	return view
}

func NewTotalsView(identityID ledger.IdentityID, totals ledger.Totals) TotalsView {
	return TotalsView{
		IdentityID: identityID.String(),
		Credits:    totals.Credits.String(),
		Debits:     totals.Debits.String(),
		Net:        totals.Net().String(),
	}
}

func NewReceiptView(receipt ledger.Receipt) ReceiptView {
	view := ReceiptView{
		Entry:     NewEntryView(receipt.Entry),
		Wallet:    NewWalletView(receipt.Wallet),
		Restocked: receipt.Restocked,
	}
	if receipt.Item != nil {
		item := NewItemView(*receipt.Item)
		view.Item = &item
	}
	return view
}

func NewIdentityView(identity ledger.Identity, wallet ledger.Wallet) IdentityView {
	return IdentityView{
		IdentityID: identity.ID().String(),
		Role:       identity.Role().String(),
		CreatedAt:  formatTime(identity.CreatedAt()),
		Wallet:     NewWalletView(wallet),
	}
}

func NewItemViews(items []ledger.Item) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, NewItemView(item))
	}
	return views
}

func NewEntryViews(entries []ledger.Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, NewEntryView(entry))
	}
	return views
}

func NewWalletViews(wallets []ledger.Wallet) []WalletView {
	views := make([]WalletView, 0, len(wallets))
	for _, wallet := range wallets {
		views = append(views, NewWalletView(wallet))
	}
	return views
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}
