package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors/constants"
)

// WithRequestID stores the request id for the rest of the call chain.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constants.ContextKeyRequestID, id)
}

// WithIdempotencyKey stores the idempotency key for the next outgoing call.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, constants.ContextKeyIdempotencyKey, key)
}

func RequestID(ctx context.Context) string {
	return GetMetadataValue(ctx, constants.HeaderXRequestId)
}

func IdempotencyKey(ctx context.Context) string {
	return GetMetadataValue(ctx, constants.HeaderXIdempotencyKey)
}

// PropagateClientInterceptor copies the request id and idempotency key held
// in the context onto the outgoing gRPC metadata.
func PropagateClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(ContextWithPropagatedIDs(ctx), method, req, reply, cc, opts...)
	}
}

// ContextWithPropagatedIDs returns ctx with the request id and idempotency key
// appended to its outgoing metadata, skipping empty values.
func ContextWithPropagatedIDs(ctx context.Context) context.Context {
	out, _ := metadata.FromOutgoingContext(ctx)
	for _, key := range []string{constants.HeaderXRequestId, constants.HeaderXIdempotencyKey} {
		if len(out.Get(key)) > 0 {
			continue
		}
		if v := GetMetadataValue(ctx, key); v != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, key, v)
		}
	}
	return ctx
}

// GetMetadataValue looks a key up in the typed context values first, then in
// the incoming and outgoing gRPC metadata.
func GetMetadataValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKeyFor(key)).(string); ok && v != "" {
		return v
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

func contextKeyFor(key string) any {
	switch key {
	case constants.HeaderXRequestId:
		return constants.ContextKeyRequestID
	case constants.HeaderXIdempotencyKey:
		return constants.ContextKeyIdempotencyKey
	}
	return key
}
