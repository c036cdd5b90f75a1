package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type for context keys defined by this package,
// preventing collisions with keys defined elsewhere.
type contextKey int

const (
	identityContextKey contextKey = iota
)

// ContextWithIdentity returns a new context carrying the given identity.
// Guards call this after successful verification; handlers retrieve the
// identity with [IdentityFromContext].
func ContextWithIdentity(ctx context.Context, identity IdentityContext) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity from the context. Returns the
// identity and true if present, or a zero identity and false if the context
// passed through no guard.
func IdentityFromContext(ctx context.Context) (IdentityContext, bool) {
	identity, ok := ctx.Value(identityContextKey).(IdentityContext)
	return identity, ok
}

// MustIdentityFromContext retrieves the identity from the context, panicking
// if none is present. Use only in handlers that are guaranteed to sit behind
// a required-auth guard; prefer [IdentityFromContext] elsewhere.
func MustIdentityFromContext(ctx context.Context) IdentityContext {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; handler is not behind an auth guard")
	}
	return identity
}

// TraceIDFromContext returns the current OpenTelemetry trace id as a string,
// or "" when the context carries no recording span. Useful for correlating
// auth log lines with traces.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// SpanIDFromContext returns the current OpenTelemetry span id as a string,
// or "" when the context carries no recording span.
func SpanIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasSpanID() {
		return ""
	}
	return spanCtx.SpanID().String()
}
