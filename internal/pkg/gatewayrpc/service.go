package gatewayrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "storefront.payment.v1.Gateway"

const (
	CreateIntentMethod = "/" + ServiceName + "/CreateIntent"
	GetIntentMethod    = "/" + ServiceName + "/GetIntent"
	SubmitIntentMethod = "/" + ServiceName + "/SubmitIntent"
	CancelIntentMethod = "/" + ServiceName + "/CancelIntent"
)

type GatewayClient interface {
	CreateIntent(ctx context.Context, in *CreateIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	GetIntent(ctx context.Context, in *GetIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	SubmitIntent(ctx context.Context, in *SubmitIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error)
	CancelIntent(ctx context.Context, in *CancelIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error)
}

type gatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient {
	return &gatewayClient{cc: cc}
}

func (c *gatewayClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*IntentResponse, error) {
	out := new(IntentResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) CreateIntent(ctx context.Context, in *CreateIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return c.invoke(ctx, CreateIntentMethod, in, opts)
}

func (c *gatewayClient) GetIntent(ctx context.Context, in *GetIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return c.invoke(ctx, GetIntentMethod, in, opts)
}

func (c *gatewayClient) SubmitIntent(ctx context.Context, in *SubmitIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return c.invoke(ctx, SubmitIntentMethod, in, opts)
}

func (c *gatewayClient) CancelIntent(ctx context.Context, in *CancelIntentRequest, opts ...grpc.CallOption) (*IntentResponse, error) {
	return c.invoke(ctx, CancelIntentMethod, in, opts)
}

// GatewayServer is implemented by payment gateways. Embed
// UnimplementedGatewayServer to stay forward compatible.
type GatewayServer interface {
	CreateIntent(context.Context, *CreateIntentRequest) (*IntentResponse, error)
	GetIntent(context.Context, *GetIntentRequest) (*IntentResponse, error)
	SubmitIntent(context.Context, *SubmitIntentRequest) (*IntentResponse, error)
	CancelIntent(context.Context, *CancelIntentRequest) (*IntentResponse, error)
}

type UnimplementedGatewayServer struct{}

func (UnimplementedGatewayServer) CreateIntent(context.Context, *CreateIntentRequest) (*IntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateIntent not implemented")
}

func (UnimplementedGatewayServer) GetIntent(context.Context, *GetIntentRequest) (*IntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetIntent not implemented")
}

func (UnimplementedGatewayServer) SubmitIntent(context.Context, *SubmitIntentRequest) (*IntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitIntent not implemented")
}

func (UnimplementedGatewayServer) CancelIntent(context.Context, *CancelIntentRequest) (*IntentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelIntent not implemented")
}

func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&Gateway_ServiceDesc, srv)
}

// unaryHandler adapts one typed server method to the generic grpc handler
// signature, running it through the server's interceptor chain.
func unaryHandler[Req any](method string, call func(GatewayServer, context.Context, *Req) (*IntentResponse, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GatewayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GatewayServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Gateway_ServiceDesc describes the gateway service for grpc.Server.RegisterService.
var Gateway_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateIntent",
			Handler:    unaryHandler(CreateIntentMethod, GatewayServer.CreateIntent),
		},
		{
			MethodName: "GetIntent",
			Handler:    unaryHandler(GetIntentMethod, GatewayServer.GetIntent),
		},
		{
			MethodName: "SubmitIntent",
			Handler:    unaryHandler(SubmitIntentMethod, GatewayServer.SubmitIntent),
		},
		{
			MethodName: "CancelIntent",
			Handler:    unaryHandler(CancelIntentMethod, GatewayServer.CancelIntent),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/payment/v1/gateway",
}
