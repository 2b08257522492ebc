package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/auth"
)

// ContextKey is the type for request-scoped values set by the HTTP layer.
type ContextKey string

const (
	// PrincipalContextKey holds the *auth.Principal of an authenticated admin request
	PrincipalContextKey ContextKey = "principal"

	// TraceIDKey holds the trace ID used to correlate logs and error bodies
	TraceIDKey ContextKey = "traceID"
)

// NewTraceID returns a 32 character hex trace ID.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID stores traceID in ctx. An empty traceID is replaced with a
// freshly generated one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID from ctx, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithPrincipal stores an authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipal returns the authenticated principal from ctx.
func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*auth.Principal)
	return p, ok && p != nil
}
