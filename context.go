package goSession

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. The gateway forwards it as
// X-Request-ID and the Manager copies it into audit metadata.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id attached by [WithRequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
