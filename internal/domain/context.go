package domain

import "context"

type ctxKey string

const (
	requestCtxKey ctxKey = "request_id"
	clientCtxKey  ctxKey = "client_id"
)

// ContextWithRequestID returns a new context carrying the request ID (ULID).
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithClientID tags the context with the authenticated gateway client.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientCtxKey, clientID)
}

// ClientIDFromContext returns the gateway client ID, or "" for in-process callers.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientCtxKey).(string); ok {
		return v
	}
	return ""
}
