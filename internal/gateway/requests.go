package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
)

// ProvisionRequest registers an identity with an empty wallet.
type ProvisionRequest struct {
	IdentityID string `json:"identity_id"`
	Role       string `json:"role"`
}

// IdentityRequest names a single identity.
type IdentityRequest struct {
	IdentityID string `json:"identity_id"`
}

// ActorRequest names the identity acting on an admin view.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

// AdjustmentRequest carries an admin credit, refund or penalty. ItemID is
// required for refunds only.
type AdjustmentRequest struct {
	ActorID   string          `json:"actor_id"`
	StudentID string          `json:"student_id"`
	ItemID    string          `json:"item_id,omitempty"`
	Amount    string          `json:"amount"`
	Reason    string          `json:"reason"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// PurchaseRequest buys one unit of an item.
type PurchaseRequest struct {
	StudentID string          `json:"student_id"`
	ItemID    string          `json:"item_id"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// ItemRequest adds a catalog item. Active defaults to true.
type ItemRequest struct {
	ActorID     string `json:"actor_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	Active      *bool  `json:"active,omitempty"`
}

// ItemUpdateRequest edits a catalog item; absent fields stay unchanged.
type ItemUpdateRequest struct {
	ActorID     string  `json:"actor_id"`
	ItemID      string  `json:"item_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Price       *string `json:"price,omitempty"`
	Stock       *int64  `json:"stock,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ItemRemovalRequest removes a catalog item permanently.
type ItemRemovalRequest struct {
	ActorID string `json:"actor_id"`
	ItemID  string `json:"item_id"`
}

// ActivityRequest lists recent entries for IdentityID, or for the whole ledger
// when IdentityID is empty and ActorID is an admin.
type ActivityRequest struct {
	ActorID    string `json:"actor_id,omitempty"`
	IdentityID string `json:"identity_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// LowStockRequest lists items whose stock is below Threshold.
type LowStockRequest struct {
	ActorID   string `json:"actor_id,omitempty"`
	Threshold int64  `json:"threshold"`
}

func (request ItemRequest) draft() (ledger.ItemDraft, error) {
	details, err := ledger.NewItemDetails(request.Name, request.Description, request.Category)
	if err != nil {
		return ledger.ItemDraft{}, err
	}
	price, err := ledger.ParsePositiveTokens(request.Price)
	if err != nil {
		return ledger.ItemDraft{}, err
	}
	active := true
	if request.Active != nil {
		active = *request.Active
	}
	return ledger.NewItemDraft(details, price, request.Stock, active)
}

func (request ItemUpdateRequest) changes(current ledger.Item) (ledger.ItemChanges, error) {
	var changes ledger.ItemChanges
	if request.Name != nil || request.Description != nil || request.Category != nil {
		name := valueOr(request.Name, current.Name())
		description := valueOr(request.Description, current.Description())
		category := valueOr(request.Category, current.Category())
		details, err := ledger.NewItemDetails(name, description, category)
		if err != nil {
			return ledger.ItemChanges{}, err
		}
		changes.Details = &details
	}
	if request.Price != nil {
		price, err := ledger.ParsePositiveTokens(*request.Price)
		if err != nil {
			return ledger.ItemChanges{}, err
		}
		changes.Price = &price
	}
	if request.Stock != nil {
		if *request.Stock < 0 {
			return ledger.ItemChanges{}, fmt.Errorf("%w: %d", ledger.ErrInvalidStock, *request.Stock)
		}
		changes.Stock = request.Stock
	}
	changes.Active = request.Active
	return changes, nil
}

func parseMetadata(raw json.RawMessage) (ledger.MetadataJSON, error) {
	return ledger.NewMetadataJSON(string(raw))
}

func valueOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
