package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/service"
)

const (
	metadataUserID         = "x-user-id"
	metadataIdempotencyKey = "idempotency-key"
)

// RequestServer is the request workflow exposed over gRPC. Messages are
// plain structs carrying the same JSON shapes as the REST API.
type RequestServer interface {
	CreateDeliveryRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmDeliveryRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectDeliveryRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelDeliveryRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateReturnRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmReturnRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectReturnRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelReturnRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PendingRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type GRPCHandler struct {
	workflow *service.WorkflowService
	logger   *zap.Logger
}

func NewGRPCHandler(workflow *service.WorkflowService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{workflow: workflow, logger: logger}
}

func (h *GRPCHandler) CreateDeliveryRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateDeliveryHTTPRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	created, err := h.workflow.CreateDeliveryRequest(ctx, service.DeliveryInput{ItemID: in.ItemID, TaskID: in.TaskID, Notes: in.Notes})
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(created)
}

func (h *GRPCHandler) ConfirmDeliveryRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.ConfirmDeliveryRequest)
}

func (h *GRPCHandler) RejectDeliveryRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.RejectDeliveryRequest)
}

func (h *GRPCHandler) CancelDeliveryRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.CancelDeliveryRequest)
}

func (h *GRPCHandler) CreateReturnRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateReturnHTTPRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	created, err := h.workflow.CreateReturnRequest(ctx, service.ReturnInput{ItemID: in.ItemID, Notes: in.Notes})
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(created)
}

func (h *GRPCHandler) ConfirmReturnRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.ConfirmReturnRequest)
}

func (h *GRPCHandler) RejectReturnRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.RejectReturnRequest)
}

func (h *GRPCHandler) CancelReturnRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.decide(ctx, req, h.workflow.CancelReturnRequest)
}

func (h *GRPCHandler) PendingRequests(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pending, err := h.workflow.PendingRequests(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(pending)
}

func (h *GRPCHandler) decide(ctx context.Context, req *structpb.Struct, fn func(context.Context, string) error) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := fn(ctx, id); err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"success": true, "id": id})
}

// CallerInterceptor copies the caller id and idempotency key from incoming
// metadata into the context.
func CallerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(metadataUserID); len(v) > 0 {
				ctx = domain.ContextWithUserID(ctx, v[0])
			}
			if v := md.Get(metadataIdempotencyKey); len(v) > 0 {
				ctx = domain.ContextWithIdempotencyKey(ctx, v[0])
			}
		}
		return handler(ctx, req)
	}
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrOptimisticLock):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func RegisterRequestServer(s grpc.ServiceRegistrar, srv RequestServer) {
	s.RegisterService(&RequestServiceDesc, srv)
}

func unaryHandler(method string, call func(RequestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + RequestServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RequestServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(RequestServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

const RequestServiceName = "warehouse.v1.RequestService"

var RequestServiceDesc = grpc.ServiceDesc{
	ServiceName: RequestServiceName,
	HandlerType: (*RequestServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateDeliveryRequest", RequestServer.CreateDeliveryRequest),
		unaryHandler("ConfirmDeliveryRequest", RequestServer.ConfirmDeliveryRequest),
		unaryHandler("RejectDeliveryRequest", RequestServer.RejectDeliveryRequest),
		unaryHandler("CancelDeliveryRequest", RequestServer.CancelDeliveryRequest),
		unaryHandler("CreateReturnRequest", RequestServer.CreateReturnRequest),
		unaryHandler("ConfirmReturnRequest", RequestServer.ConfirmReturnRequest),
		unaryHandler("RejectReturnRequest", RequestServer.RejectReturnRequest),
		unaryHandler("CancelReturnRequest", RequestServer.CancelReturnRequest),
		unaryHandler("PendingRequests", RequestServer.PendingRequests),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "warehouse/v1/request.proto",
}
