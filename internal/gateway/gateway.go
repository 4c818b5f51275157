package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
)

// ErrInvalidGatewayConfig is returned when the gateway has no service.
var ErrInvalidGatewayConfig = errors.New("invalid gateway config")

// ItemList wraps catalog listings.
type ItemList struct {
	Items []ItemView `json:"items"`
}

// EntryList wraps ledger listings.
type EntryList struct {
	Entries []EntryView `json:"entries"`
}

// WalletList wraps wallet listings.
type WalletList struct {
	Wallets []WalletView `json:"wallets"`
}

// Dashboard is the student landing view.
type Dashboard struct {
	Wallet         WalletView  `json:"wallet"`
	Totals         TotalsView  `json:"totals"`
	RecentActivity []EntryView `json:"recent_activity"`
}

// Gateway validates transport requests and runs them against the ledger
// service. Balance-changing operations are retried once on a conflict.
type Gateway struct {
	service *ledger.Service
}

// New constructs a Gateway.
func New(service *ledger.Service) (*Gateway, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service is required", ErrInvalidGatewayConfig)
	}
	return &Gateway{service: service}, nil
}

// ProvisionIdentity registers an identity with the given role and opens its wallet.
func (gateway *Gateway) ProvisionIdentity(ctx context.Context, request ProvisionRequest) (IdentityView, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return IdentityView{}, err
	}
	role, err := ledger.ParseRole(request.Role)
	if err != nil {
		return IdentityView{}, err
	}
	identity, wallet, err := gateway.service.ProvisionIdentity(ctx, identityID, role)
	if err != nil {
		return IdentityView{}, err
	}
	return NewIdentityView(identity, wallet), nil
}

// EnsureStudent provisions identityID as a student unless it already exists.
func (gateway *Gateway) EnsureStudent(ctx context.Context, request IdentityRequest) (IdentityView, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return IdentityView{}, err
	}
	identity, wallet, err := gateway.service.ProvisionIdentity(ctx, identityID, ledger.RoleStudent)
	if errors.Is(err, ledger.ErrDuplicateIdentity) {
		identity, err = gateway.service.Identity(ctx, identityID)
		if err != nil {
			return IdentityView{}, err
		}
		wallet, err = gateway.service.Wallet(ctx, identityID)
	}
	if err != nil {
		return IdentityView{}, err
	}
	return NewIdentityView(identity, wallet), nil
}

// Wallet returns the current wallet of IdentityID.
func (gateway *Gateway) Wallet(ctx context.Context, request IdentityRequest) (WalletView, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return WalletView{}, err
	}
	wallet, err := gateway.service.Wallet(ctx, identityID)
	if err != nil {
		return WalletView{}, err
	}
	return NewWalletView(wallet), nil
}

// Dashboard returns the wallet, running totals and the ten latest entries.
func (gateway *Gateway) Dashboard(ctx context.Context, request IdentityRequest) (Dashboard, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return Dashboard{}, err
	}
	wallet, err := gateway.service.Wallet(ctx, identityID)
	if err != nil {
		return Dashboard{}, err
	}
	totals, err := gateway.service.RunningTotals(ctx, identityID)
	if err != nil {
		return Dashboard{}, err
	}
	entries, err := gateway.service.RecentActivity(ctx, identityID, 0)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Wallet:         NewWalletView(wallet),
		Totals:         NewTotalsView(identityID, totals),
		RecentActivity: NewEntryViews(entries),
	}, nil
}

// Credit adds Amount to StudentID on behalf of ActorID.
func (gateway *Gateway) Credit(ctx context.Context, request AdjustmentRequest) (ReceiptView, error) {
	return gateway.adjust(ctx, request, gateway.service.Credit)
}

// Penalty deducts Amount from StudentID. It never overdraws.
func (gateway *Gateway) Penalty(ctx context.Context, request AdjustmentRequest) (ReceiptView, error) {
	return gateway.adjust(ctx, request, gateway.service.Penalty)
}

// Refund returns Amount to StudentID and restocks ItemID unless it was removed.
func (gateway *Gateway) Refund(ctx context.Context, request AdjustmentRequest) (ReceiptView, error) {
	itemID, err := ledger.NewItemID(request.ItemID)
	if err != nil {
		return ReceiptView{}, err
	}
	return gateway.adjust(ctx, request, func(ctx context.Context, actorID ledger.IdentityID, studentID ledger.IdentityID, amount ledger.PositiveTokens, reason ledger.Description, metadata ledger.MetadataJSON) (ledger.Receipt, error) {
		return gateway.service.Refund(ctx, actorID, studentID, itemID, amount, reason, metadata)
	})
}

type adjustment func(ctx context.Context, actorID ledger.IdentityID, studentID ledger.IdentityID, amount ledger.PositiveTokens, reason ledger.Description, metadata ledger.MetadataJSON) (ledger.Receipt, error)

func (gateway *Gateway) adjust(ctx context.Context, request AdjustmentRequest, operation adjustment) (ReceiptView, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return ReceiptView{}, err
	}
	studentID, err := ledger.NewIdentityID(request.StudentID)
	if err != nil {
		return ReceiptView{}, err
	}
	amount, err := ledger.ParsePositiveTokens(request.Amount)
	if err != nil {
		return ReceiptView{}, err
	}
	reason, err := ledger.NewDescription(request.Reason)
	if err != nil {
		return ReceiptView{}, err
	}
	metadata, err := parseMetadata(request.Metadata)
	if err != nil {
		return ReceiptView{}, err
	}
	receipt, err := ledger.RetryOnConflict(ctx, func(ctx context.Context) (ledger.Receipt, error) {
		return operation(ctx, actorID, studentID, amount, reason, metadata)
	})
	if err != nil {
		return ReceiptView{}, err
	}
	return NewReceiptView(receipt), nil
}

// Purchase sells one unit of ItemID to StudentID at the current price.
func (gateway *Gateway) Purchase(ctx context.Context, request PurchaseRequest) (ReceiptView, error) {
	studentID, err := ledger.NewIdentityID(request.StudentID)
	if err != nil {
		return ReceiptView{}, err
	}
	itemID, err := ledger.NewItemID(request.ItemID)
	if err != nil {
		return ReceiptView{}, err
	}
	metadata, err := parseMetadata(request.Metadata)
	if err != nil {
		return ReceiptView{}, err
	}
	receipt, err := ledger.RetryOnConflict(ctx, func(ctx context.Context) (ledger.Receipt, error) {
		return gateway.service.Purchase(ctx, studentID, itemID, metadata)
	})
	if err != nil {
		return ReceiptView{}, err
	}
	return NewReceiptView(receipt), nil
}

// AddItem creates a catalog item. Active defaults to true.
func (gateway *Gateway) AddItem(ctx context.Context, request ItemRequest) (ItemView, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return ItemView{}, err
	}
	draft, err := request.draft()
	if err != nil {
		return ItemView{}, err
	}
	item, err := gateway.service.AddItem(ctx, actorID, draft)
	if err != nil {
		return ItemView{}, err
	}
	return NewItemView(item), nil
}

// UpdateItem applies the non-nil fields of the request to ItemID.
func (gateway *Gateway) UpdateItem(ctx context.Context, request ItemUpdateRequest) (ItemView, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return ItemView{}, err
	}
	itemID, err := ledger.NewItemID(request.ItemID)
	if err != nil {
		return ItemView{}, err
	}
	item, err := ledger.RetryOnConflict(ctx, func(ctx context.Context) (ledger.Item, error) {
		current, err := gateway.service.Item(ctx, itemID)
		if err != nil {
			return ledger.Item{}, err
		}
		changes, err := request.changes(current)
		if err != nil {
			return ledger.Item{}, err
		}
		return gateway.service.UpdateItem(ctx, actorID, itemID, changes)
	})
	if err != nil {
		return ItemView{}, err
	}
	return NewItemView(item), nil
}

// RemoveItem retires ItemID permanently.
func (gateway *Gateway) RemoveItem(ctx context.Context, request ItemRemovalRequest) (ItemView, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return ItemView{}, err
	}
	itemID, err := ledger.NewItemID(request.ItemID)
	if err != nil {
		return ItemView{}, err
	}
	item, err := ledger.RetryOnConflict(ctx, func(ctx context.Context) (ledger.Item, error) {
		return gateway.service.RemoveItem(ctx, actorID, itemID)
	})
	if err != nil {
		return ItemView{}, err
	}
	return NewItemView(item), nil
}

// ListItems returns the purchasable catalog, or the full catalog including
// inactive and removed items when ActorID is an admin.
func (gateway *Gateway) ListItems(ctx context.Context, request ActorRequest) (ItemList, error) {
	var (
		items []ledger.Item
		err   error
	)
	if request.ActorID == "" {
		items, err = gateway.service.AvailableItems(ctx)
	} else {
		var actorID ledger.IdentityID
		actorID, err = ledger.NewIdentityID(request.ActorID)
		if err != nil {
			return ItemList{}, err
		}
		items, err = gateway.service.CatalogItems(ctx, actorID)
	}
	if err != nil {
		return ItemList{}, err
	}
	return ItemList{Items: NewItemViews(items)}, nil
}

// RecentActivity lists entries involving IdentityID, newest first.
func (gateway *Gateway) RecentActivity(ctx context.Context, request ActivityRequest) (EntryList, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return EntryList{}, err
	}
	entries, err := gateway.service.RecentActivity(ctx, identityID, request.Limit)
	if err != nil {
		return EntryList{}, err
	}
	return EntryList{Entries: NewEntryViews(entries)}, nil
}

// LedgerActivity lists the whole ledger for an admin ActorID.
func (gateway *Gateway) LedgerActivity(ctx context.Context, request ActivityRequest) (EntryList, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return EntryList{}, err
	}
	entries, err := gateway.service.LedgerActivity(ctx, actorID, request.Limit)
	if err != nil {
		return EntryList{}, err
	}
	return EntryList{Entries: NewEntryViews(entries)}, nil
}

// RunningTotals sums credits and debits for IdentityID.
func (gateway *Gateway) RunningTotals(ctx context.Context, request IdentityRequest) (TotalsView, error) {
	identityID, err := ledger.NewIdentityID(request.IdentityID)
	if err != nil {
		return TotalsView{}, err
	}
	totals, err := gateway.service.RunningTotals(ctx, identityID)
	if err != nil {
		return TotalsView{}, err
	}
	return NewTotalsView(identityID, totals), nil
}

// AuthorizeAdmin fails unless ActorID holds the admin capability.
func (gateway *Gateway) AuthorizeAdmin(ctx context.Context, request ActorRequest) error {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return err
	}
	return gateway.service.Authorize(ctx, actorID, ledger.CapabilityAdminOperations)
}

// LowStock checks the admin capability when ActorID is set.
func (gateway *Gateway) LowStock(ctx context.Context, request LowStockRequest) (ItemList, error) {
	if request.ActorID != "" {
		if err := gateway.AuthorizeAdmin(ctx, ActorRequest{ActorID: request.ActorID}); err != nil {
			return ItemList{}, err
		}
	}
	items, err := gateway.service.LowStock(ctx, request.Threshold)
	if err != nil {
		return ItemList{}, err
	}
	return ItemList{Items: NewItemViews(items)}, nil
}

// Wallets lists every wallet for an admin ActorID.
func (gateway *Gateway) Wallets(ctx context.Context, request ActorRequest) (WalletList, error) {
	actorID, err := ledger.NewIdentityID(request.ActorID)
	if err != nil {
		return WalletList{}, err
	}
	wallets, err := gateway.service.Wallets(ctx, actorID)
	if err != nil {
		return WalletList{}, err
	}
	return WalletList{Wallets: NewWalletViews(wallets)}, nil
}
