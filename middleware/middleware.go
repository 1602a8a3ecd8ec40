package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/onion/compose"
)

// Carrier is the shared value the built-in middleware operate on. Stages
// derive request-scoped contexts and install them with SetContext so that
// every later stage observes them.
type Carrier interface {
	Context() context.Context
	SetContext(ctx context.Context)
}

// Operator is implemented by carriers that can name the operation they
// carry, such as an HTTP route or a message method.
type Operator interface {
	Operation() string
}

// Sizer is implemented by carriers that know their payload size. A
// negative size means the size is unknown until the payload is read.
type Sizer interface {
	Size() int64
}

// BodyLimiter is implemented by carriers that can enforce a limit while
// their payload is read. SizeLimit uses it when Size is unknown.
type BodyLimiter interface {
	LimitBody(maxBytes int64)
}

func operationOf(c any) string {
	if o, ok := c.(Operator); ok {
		return o.Operation()
	}
	return "unknown"
}

// DefaultStack returns the recommended production middleware stack.
// This includes panic recovery, request ID injection, and logging.
func DefaultStack[C Carrier](logger Logger) []compose.Middleware[C] {
	return []compose.Middleware[C]{
		Recover[C](),
		RequestID[C](),
		Logging[C](logger),
	}
}

// DefaultStackWithTimeout returns the default stack with a timeout middleware.
func DefaultStackWithTimeout[C Carrier](logger Logger, timeout time.Duration) []compose.Middleware[C] {
	return []compose.Middleware[C]{
		Recover[C](),
		RequestID[C](),
		Timeout[C](timeout),
		Logging[C](logger),
	}
}
