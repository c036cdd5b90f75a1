package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// gRPC interceptors adapting [Guard] to unary and streaming RPCs. The
// bearer credential travels in the "authorization" metadata key. As with
// the HTTP middleware, rejections are generic: a gRPC status code and a
// category message, never the specific verification failure.

// metadataAuthorization is the incoming-metadata key carrying the bearer
// credential. gRPC metadata keys are lowercase.
const metadataAuthorization = "authorization"

// interceptorOptions holds per-interceptor settings.
type interceptorOptions struct {
	minAssurance AssuranceLevel
	optional     bool
}

// InterceptorOption configures the auth interceptors.
type InterceptorOption func(*interceptorOptions)

// WithMinimumAssurance requires verified sessions to meet the given
// authenticator assurance level.
func WithMinimumAssurance(minimum AssuranceLevel) InterceptorOption {
	return func(o *interceptorOptions) { o.minAssurance = minimum }
}

// WithOptionalAuth lets credential-less requests through with the anonymous
// identity instead of rejecting them. Invalid credentials are still
// rejected.
func WithOptionalAuth() InterceptorOption {
	return func(o *interceptorOptions) { o.optional = true }
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that
// authenticates each RPC through the guard and places the identity on the
// handler context.
func UnaryServerInterceptor(guard *Guard, opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	o := buildOptions(opts)
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, guard, o)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that
// authenticates each stream through the guard. The identity is available on
// the stream's context via [IdentityFromContext].
func StreamServerInterceptor(guard *Guard, opts ...InterceptorOption) grpc.StreamServerInterceptor {
	o := buildOptions(opts)
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), guard, o)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func buildOptions(opts []InterceptorOption) interceptorOptions {
	var o interceptorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// authenticate runs the guard against the RPC's metadata and returns a
// context carrying the resulting identity.
func authenticate(ctx context.Context, guard *Guard, o interceptorOptions) (context.Context, error) {
	authorization := firstMetadataValue(ctx, metadataAuthorization)

	var (
		identity IdentityContext
		err      error
	)
	switch {
	case o.optional:
		identity, err = guard.OptionalIdentity(ctx, authorization)
	case o.minAssurance != AssuranceNone:
		identity, err = guard.RequireAssurance(ctx, authorization, o.minAssurance)
	default:
		identity, err = guard.RequireIdentity(ctx, authorization)
	}
	if err != nil {
		return nil, grpcStatusError(err)
	}

	return ContextWithIdentity(ctx, identity), nil
}

// firstMetadataValue returns the first value of an incoming-metadata key,
// or "" when absent.
func firstMetadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// grpcStatusError maps a guard failure to a generic gRPC status.
func grpcStatusError(err error) error {
	e, ok := bberr.AsError(err)
	if !ok {
		return status.Error(codes.Unauthenticated, "unauthenticated")
	}

	switch e.Code.Category() {
	case "AUTHZ":
		return status.Error(codes.PermissionDenied, "permission denied")
	case "UNAVAIL", "TIMEOUT":
		return status.Error(codes.Unavailable, "service unavailable")
	case "INT":
		return status.Error(codes.Internal, "internal error")
	default:
		return status.Error(codes.Unauthenticated, "unauthenticated")
	}
}

// wrappedServerStream overrides the stream context with one carrying the
// authenticated identity.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the authenticated context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
