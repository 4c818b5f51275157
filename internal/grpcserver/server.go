package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/scholarcash/internal/gateway"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "scholarcash.v1.Ledger"

const (
	methodProvisionIdentity = "ProvisionIdentity"
	methodGetWallet         = "GetWallet"
	methodCredit            = "Credit"
	methodPurchase          = "Purchase"
	methodRefund            = "Refund"
	methodPenalty           = "Penalty"
	methodAddItem           = "AddItem"
	methodUpdateItem        = "UpdateItem"
	methodRemoveItem        = "RemoveItem"
	methodListItems         = "ListItems"
	methodRecentActivity    = "RecentActivity"
	methodRunningTotals     = "RunningTotals"
	methodLowStock          = "LowStock"
	methodLedgerActivity    = "LedgerActivity"
)

// LedgerHandler is implemented by LedgerServer. Requests and responses are
// google.protobuf.Struct messages carrying the gateway JSON shapes.
type LedgerHandler interface {
	ProvisionIdentity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	GetWallet(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Credit(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Purchase(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Refund(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Penalty(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	AddItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	UpdateItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	RemoveItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	ListItems(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	RecentActivity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	RunningTotals(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	LowStock(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	LedgerActivity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerHandler)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodProvisionIdentity, LedgerHandler.ProvisionIdentity),
		unaryMethod(methodGetWallet, LedgerHandler.GetWallet),
		unaryMethod(methodCredit, LedgerHandler.Credit),
		unaryMethod(methodPurchase, LedgerHandler.Purchase),
		unaryMethod(methodRefund, LedgerHandler.Refund),
		unaryMethod(methodPenalty, LedgerHandler.Penalty),
		unaryMethod(methodAddItem, LedgerHandler.AddItem),
		unaryMethod(methodUpdateItem, LedgerHandler.UpdateItem),
		unaryMethod(methodRemoveItem, LedgerHandler.RemoveItem),
		unaryMethod(methodListItems, LedgerHandler.ListItems),
		unaryMethod(methodRecentActivity, LedgerHandler.RecentActivity),
		unaryMethod(methodRunningTotals, LedgerHandler.RunningTotals),
		unaryMethod(methodLowStock, LedgerHandler.LowStock),
		unaryMethod(methodLedgerActivity, LedgerHandler.LedgerActivity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scholarcash/v1/ledger.proto",
}

// RegisterLedgerServer attaches handler to registrar.
func RegisterLedgerServer(registrar grpc.ServiceRegistrar, handler LedgerHandler) {
	registrar.RegisterService(&serviceDesc, handler)
}

func unaryMethod(name string, call func(LedgerHandler, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(structpb.Struct)
			if err := decode(request); err != nil {
				return nil, err
			}
			handler := server.(LedgerHandler)
			if interceptor == nil {
				return call(handler, ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
			return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
				return call(handler, ctx, request.(*structpb.Struct))
			})
		},
	}
}

// LedgerServer exposes the ledger gateway over gRPC.
type LedgerServer struct {
	gateway *gateway.Gateway
}

// NewLedgerServer constructs a gRPC server for the ledger gateway.
func NewLedgerServer(ledgerGateway *gateway.Gateway) *LedgerServer {
	return &LedgerServer{gateway: ledgerGateway}
}

func (server *LedgerServer) ProvisionIdentity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.ProvisionIdentity)
}

func (server *LedgerServer) GetWallet(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.Wallet)
}

func (server *LedgerServer) Credit(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.Credit)
}

func (server *LedgerServer) Purchase(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.Purchase)
}

func (server *LedgerServer) Refund(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.Refund)
}

func (server *LedgerServer) Penalty(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.Penalty)
}

func (server *LedgerServer) AddItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.AddItem)
}

func (server *LedgerServer) UpdateItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.UpdateItem)
}

func (server *LedgerServer) RemoveItem(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.RemoveItem)
}

func (server *LedgerServer) ListItems(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.ListItems)
}

func (server *LedgerServer) RecentActivity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.RecentActivity)
}

func (server *LedgerServer) RunningTotals(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.RunningTotals)
}

func (server *LedgerServer) LowStock(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.LowStock)
}

func (server *LedgerServer) LedgerActivity(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, request, server.gateway.LedgerActivity)
}

func serve[Request any, Response any](ctx context.Context, message *structpb.Struct, operation func(context.Context, Request) (Response, error)) (*structpb.Struct, error) {
	var request Request
	if err := fromStruct(message, &request); err != nil {
		return nil, status.Error(codes.InvalidArgument, gateway.ErrorInvalidRequest)
	}
	response, err := operation(ctx, request)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	encoded, err := toStruct(response)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encoded, nil
}

func mapToGRPCError(source error) error {
	code, class := gateway.Classify(source)
	switch class {
	case gateway.ClassInvalid:
		return status.Error(codes.InvalidArgument, code)
	case gateway.ClassNotFound:
		return status.Error(codes.NotFound, code)
	case gateway.ClassRejected:
		return status.Error(codes.FailedPrecondition, code)
	case gateway.ClassForbidden:
		return status.Error(codes.PermissionDenied, code)
	case gateway.ClassConflict:
		return status.Error(codes.AlreadyExists, code)
	case gateway.ClassRetryable:
		return status.Error(codes.Aborted, code)
	}
	return status.Error(codes.Internal, source.Error())
}

func toStruct(value any) (*structpb.Struct, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	message := new(structpb.Struct)
	if err := protojson.Unmarshal(payload, message); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return message, nil
}

func fromStruct(message *structpb.Struct, target any) error {
	payload, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
