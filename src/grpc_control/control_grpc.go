package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service and method names of the control API. The messages are protobuf
// well-known types, so no generated code is needed.
const (
	ControlServiceName    = "stockcache.Control"
	ControlBackfillMethod = "/stockcache.Control/Backfill"
	ControlStatusMethod   = "/stockcache.Control/Status"
)

// -----------------------------------------------------------------------------
// Server side
// -----------------------------------------------------------------------------

// ControlServer is the server API for the stockcache.Control service.
type ControlServer interface {
	// Backfill loads one calendar day (YYYY-MM-DD) into the historical table.
	Backfill(ctx context.Context, date *wrapperspb.StringValue) (*structpb.Struct, error)
	// Status reports provider, subscription and storage state.
	Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&Control_ServiceDesc, srv)
}

// -----------------------------------------------------------------------------

func _Control_Backfill_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Backfill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlBackfillMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Backfill(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Status_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Control_ServiceDesc is the grpc.ServiceDesc for the stockcache.Control service.
var Control_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Backfill", Handler: _Control_Backfill_Handler},
		{MethodName: "Status", Handler: _Control_Status_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockcache/control.proto",
}

// -----------------------------------------------------------------------------
// Client side
// -----------------------------------------------------------------------------

type ControlClient interface {
	Backfill(ctx context.Context, date *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Status(ctx context.Context, req *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type controlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) ControlClient {
	return &controlClient{cc}
}

func (c *controlClient) Backfill(ctx context.Context, date *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ControlBackfillMethod, date, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Status(ctx context.Context, req *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ControlStatusMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
