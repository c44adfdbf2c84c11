package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "qualify.v1.Resolver"

// Full method names.
const (
	MethodResolve         = "/" + ServiceName + "/Resolve"
	MethodResolveAll      = "/" + ServiceName + "/ResolveAll"
	MethodResolveComposed = "/" + ServiceName + "/ResolveComposed"
	MethodParseContext    = "/" + ServiceName + "/ParseContext"
)

// ResolverServer is the server API for the resolver service.
type ResolverServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveComposed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ParseContext(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterResolverServer registers srv with s.
func RegisterResolverServer(s grpc.ServiceRegistrar, srv ResolverServer) {
	s.RegisterService(&ResolverServiceDesc, srv)
}

type unaryMethod func(ResolverServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts m to a grpc.MethodDesc handler.
func unaryHandler(fullMethod string, m unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(ResolverServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(ResolverServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ResolverServiceDesc describes the resolver service. Messages are
// google.protobuf.Struct, so no generated code is needed.
var ResolverServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unaryHandler(MethodResolve, ResolverServer.Resolve)},
		{MethodName: "ResolveAll", Handler: unaryHandler(MethodResolveAll, ResolverServer.ResolveAll)},
		{MethodName: "ResolveComposed", Handler: unaryHandler(MethodResolveComposed, ResolverServer.ResolveComposed)},
		{MethodName: "ParseContext", Handler: unaryHandler(MethodParseContext, ResolverServer.ParseContext)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qualify/v1/resolver.proto",
}

// ResolverClient calls the resolver service.
type ResolverClient struct {
	cc grpc.ClientConnInterface
}

// NewResolverClient creates a client over cc.
func NewResolverClient(cc grpc.ClientConnInterface) *ResolverClient {
	return &ResolverClient{cc: cc}
}

func (c *ResolverClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve calls Resolve.
func (c *ResolverClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodResolve, in, opts...)
}

// ResolveAll calls ResolveAll.
func (c *ResolverClient) ResolveAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodResolveAll, in, opts...)
}

// ResolveComposed calls ResolveComposed.
func (c *ResolverClient) ResolveComposed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodResolveComposed, in, opts...)
}

// ParseContext calls ParseContext.
func (c *ResolverClient) ParseContext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodParseContext, in, opts...)
}
