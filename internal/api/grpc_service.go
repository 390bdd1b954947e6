package api

import (
	"context"
	"encoding/json"
	"fmt"

	"hotelledger/internal/models"
	"hotelledger/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const LedgerServiceName = "ledger.v1.LedgerService"

// LedgerServiceServer carries every call as a google.protobuf.Struct whose
// fields mirror the HTTP JSON bodies.
type LedgerServiceServer interface {
	FindAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Checkout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddExtra(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReceiveOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type ledgerCall func(srv LedgerServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call ledgerCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(LedgerServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LedgerServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("FindAvailable", LedgerServiceServer.FindAvailable),
		unaryHandler("CreateBooking", LedgerServiceServer.CreateBooking),
		unaryHandler("CancelBooking", LedgerServiceServer.CancelBooking),
		unaryHandler("Checkout", LedgerServiceServer.Checkout),
		unaryHandler("AddExtra", LedgerServiceServer.AddExtra),
		unaryHandler("GetBill", LedgerServiceServer.GetBill),
		unaryHandler("AddItem", LedgerServiceServer.AddItem),
		unaryHandler("PlaceOrder", LedgerServiceServer.PlaceOrder),
		unaryHandler("ReceiveOrder", LedgerServiceServer.ReceiveOrder),
		unaryHandler("DeleteItem", LedgerServiceServer.DeleteItem),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

// LedgerService adapts the ledger services to gRPC.
type LedgerService struct {
	svc *Services
}

func NewLedgerService(svc *Services) *LedgerService {
	return &LedgerService{svc: svc}
}

type idRequest struct {
	ID int64 `json:"id"`
}

type grpcCheckoutRequest struct {
	ID int64 `json:"id"`
	checkoutRequest
}

type grpcExtraRequest struct {
	BookingID int64 `json:"booking_id"`
	extraRequest
}

type grpcPlaceOrderRequest struct {
	ItemID int64 `json:"item_id"`
	placeOrderRequest
}

// fromStruct decodes the request struct into a typed request.
func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return grpcError(fmt.Errorf("%w: %v", models.ErrValidation, err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return grpcError(fmt.Errorf("%w: invalid request: %v", models.ErrValidation, err))
	}
	return nil
}

// toStruct encodes a JSON-object-shaped value as a response struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, grpcError(err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, grpcError(err)
	}
	return out, nil
}

func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(v)
}

func (s *LedgerService) FindAvailable(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req availabilityRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	rooms, err := s.svc.Availability.FindAvailable(ctx, req.HotelID, req.Start, req.End, req.MinCapacity)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"rooms": roomViews(rooms)})
}

func (s *LedgerService) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.CreateBookingRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Bookings.CreateBooking(ctx, req))
}

func (s *LedgerService) CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Bookings.CancelBooking(ctx, req.ID))
}

func (s *LedgerService) Checkout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcCheckoutRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ExpectedAmount != nil {
		return reply(s.svc.Bookings.ConfirmCheckout(ctx, req.ID, *req.ExpectedAmount))
	}
	return reply(s.svc.Bookings.Checkout(ctx, req.ID))
}

func (s *LedgerService) AddExtra(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcExtraRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Bookings.AddExtra(ctx, req.BookingID, req.Description, req.Amount))
}

func (s *LedgerService) GetBill(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Bookings.GetBill(ctx, req.ID))
}

func (s *LedgerService) AddItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req addItemRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Inventory.AddItem(ctx, req.HotelID, req.Name, req.Quantity, req.UnitPrice))
}

func (s *LedgerService) PlaceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcPlaceOrderRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Inventory.PlaceOrder(ctx, req.ItemID, req.Quantity))
}

func (s *LedgerService) ReceiveOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Inventory.ReceiveOrder(ctx, req.ID))
}

func (s *LedgerService) DeleteItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := s.svc.Inventory.DeleteItem(ctx, req.ID); err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"deleted": req.ID})
}
