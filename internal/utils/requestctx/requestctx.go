// Package requestctx carries per-request identifiers through context.Context
// so log lines from the handler down to the provider adapter can be joined.
package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	providerKey
)

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, requestIDKey, requestID)
}

// RequestID returns the request id, or "" when none was stored.
func RequestID(ctx context.Context) string {
	return get(ctx, requestIDKey)
}

// WithProvider stores the canonical provider name handling the request.
func WithProvider(ctx context.Context, provider string) context.Context {
	return with(ctx, providerKey, provider)
}

// Provider returns the provider name, or "".
func Provider(ctx context.Context) string {
	return get(ctx, providerKey)
}

func with(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}
