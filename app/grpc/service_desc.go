package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	EntitlementServiceName = "fanbilling.v1.EntitlementService"

	isEntitledMethod        = "/" + EntitlementServiceName + "/IsEntitled"
	entitlementExpiryMethod = "/" + EntitlementServiceName + "/EntitlementExpiry"
)

// EntitlementServiceServer answers entitlement reads keyed by user id.
type EntitlementServiceServer interface {
	IsEntitled(ctx context.Context, userID *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	EntitlementExpiry(ctx context.Context, userID *wrapperspb.StringValue) (*timestamppb.Timestamp, error)
}

var EntitlementServiceDesc = grpc.ServiceDesc{
	ServiceName: EntitlementServiceName,
	HandlerType: (*EntitlementServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IsEntitled", Handler: isEntitledHandler},
		{MethodName: "EntitlementExpiry", Handler: entitlementExpiryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fanbilling/v1/entitlement.proto",
}

func RegisterEntitlementServiceServer(registrar grpc.ServiceRegistrar, srv EntitlementServiceServer) {
	registrar.RegisterService(&EntitlementServiceDesc, srv)
}

func isEntitledHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementServiceServer).IsEntitled(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: isEntitledMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EntitlementServiceServer).IsEntitled(ctx, req.(*wrapperspb.StringValue))
	})
}

func entitlementExpiryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementServiceServer).EntitlementExpiry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: entitlementExpiryMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EntitlementServiceServer).EntitlementExpiry(ctx, req.(*wrapperspb.StringValue))
	})
}

// EntitlementClient calls the entitlement service over an existing connection.
type EntitlementClient struct {
	conn grpc.ClientConnInterface
}

func NewEntitlementClient(conn grpc.ClientConnInterface) *EntitlementClient {
	return &EntitlementClient{conn: conn}
}

func (c *EntitlementClient) IsEntitled(ctx context.Context, userID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, isEntitledMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *EntitlementClient) EntitlementExpiry(ctx context.Context, userID string, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.conn.Invoke(ctx, entitlementExpiryMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
