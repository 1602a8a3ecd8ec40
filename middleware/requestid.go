package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader is the metadata key consulted for an incoming request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that injects a unique request ID into the
// carrier context. An ID already present in the context or in the
// X-Request-ID metadata is preserved.
func RequestID[C Carrier]() compose.Middleware[C] {
	return RequestIDWithGenerator[C](uuid.NewString)
}

// RequestIDWithGenerator returns middleware that uses a custom ID generator.
func RequestIDWithGenerator[C Carrier](generator func() string) compose.Middleware[C] {
	return func(c C, next compose.Next) error {
		ctx := c.Context()
		if RequestIDFromContext(ctx) != "" {
			return next()
		}

		id := protocol.GetMeta(ctx, RequestIDHeader)
		if id == "" {
			id = generator()
		}
		c.SetContext(ContextWithRequestID(ctx, id))
		return next()
	}
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID returns a new context with the request ID set.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
