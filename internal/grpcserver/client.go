package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/scholarcash/internal/gateway"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed caller for the scholarcash.v1.Ledger service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (client *Client) ProvisionIdentity(ctx context.Context, request gateway.ProvisionRequest) (gateway.IdentityView, error) {
	return invoke[gateway.IdentityView](ctx, client.conn, methodProvisionIdentity, request)
}

func (client *Client) GetWallet(ctx context.Context, request gateway.IdentityRequest) (gateway.WalletView, error) {
	return invoke[gateway.WalletView](ctx, client.conn, methodGetWallet, request)
}

func (client *Client) Credit(ctx context.Context, request gateway.AdjustmentRequest) (gateway.ReceiptView, error) {
	return invoke[gateway.ReceiptView](ctx, client.conn, methodCredit, request)
}

func (client *Client) Purchase(ctx context.Context, request gateway.PurchaseRequest) (gateway.ReceiptView, error) {
	return invoke[gateway.ReceiptView](ctx, client.conn, methodPurchase, request)
}

func (client *Client) Refund(ctx context.Context, request gateway.AdjustmentRequest) (gateway.ReceiptView, error) {
	return invoke[gateway.ReceiptView](ctx, client.conn, methodRefund, request)
}

func (client *Client) Penalty(ctx context.Context, request gateway.AdjustmentRequest) (gateway.ReceiptView, error) {
	return invoke[gateway.ReceiptView](ctx, client.conn, methodPenalty, request)
}

func (client *Client) AddItem(ctx context.Context, request gateway.ItemRequest) (gateway.ItemView, error) {
	return invoke[gateway.ItemView](ctx, client.conn, methodAddItem, request)
}

func (client *Client) UpdateItem(ctx context.Context, request gateway.ItemUpdateRequest) (gateway.ItemView, error) {
	return invoke[gateway.ItemView](ctx, client.conn, methodUpdateItem, request)
}

func (client *Client) RemoveItem(ctx context.Context, request gateway.ItemRemovalRequest) (gateway.ItemView, error) {
	return invoke[gateway.ItemView](ctx, client.conn, methodRemoveItem, request)
}

func (client *Client) ListItems(ctx context.Context, request gateway.ActorRequest) (gateway.ItemList, error) {
	return invoke[gateway.ItemList](ctx, client.conn, methodListItems, request)
}

func (client *Client) RecentActivity(ctx context.Context, request gateway.ActivityRequest) (gateway.EntryList, error) {
	return invoke[gateway.EntryList](ctx, client.conn, methodRecentActivity, request)
}

func (client *Client) RunningTotals(ctx context.Context, request gateway.IdentityRequest) (gateway.TotalsView, error) {
	return invoke[gateway.TotalsView](ctx, client.conn, methodRunningTotals, request)
}

func (client *Client) LowStock(ctx context.Context, request gateway.LowStockRequest) (gateway.ItemList, error) {
	return invoke[gateway.ItemList](ctx, client.conn, methodLowStock, request)
}

func (client *Client) LedgerActivity(ctx context.Context, request gateway.ActivityRequest) (gateway.EntryList, error) {
	return invoke[gateway.EntryList](ctx, client.conn, methodLedgerActivity, request)
}

func invoke[Response any](ctx context.Context, conn grpc.ClientConnInterface, method string, request any) (Response, error) {
	var response Response
	message, err := toStruct(request)
	if err != nil {
		return response, err
	}
	reply := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, message, reply); err != nil {
		return response, err
	}
	if err := fromStruct(reply, &response); err != nil {
		return response, err
	}
	return response, nil
}
