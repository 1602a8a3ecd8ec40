package middleware

import (
	"fmt"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger Logger
	perOp  map[string]int64
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// WithOperationSizeLimit overrides the limit for one operation, for example
// an upload route that needs a larger body.
func WithOperationSizeLimit(op string, maxBytes int64) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.perOp[op] = maxBytes
	}
}

// SizeLimit returns middleware that rejects carriers whose payload exceeds
// maxBytes. Payloads of unknown size are capped through BodyLimiter, so
// reading past the limit fails downstream. Carriers that do not implement
// Sizer always pass.
func SizeLimit[C Carrier](maxBytes int64, opts ...SizeLimitOption) compose.Middleware[C] {
	cfg := &sizeLimitConfig{perOp: make(map[string]int64)}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c C, next compose.Next) error {
		s, ok := any(c).(Sizer)
		if !ok {
			return next()
		}

		op := operationOf(c)
		limit, ok := cfg.perOp[op]
		if !ok {
			limit = maxBytes
		}

		size := s.Size()
		if size < 0 {
			if bl, ok := any(c).(BodyLimiter); ok {
				bl.LimitBody(limit)
			}
			return next()
		}

		if size > limit {
			if cfg.logger != nil {
				cfg.logger.Warn("request size limit exceeded",
					F("operation", op),
					F("size", size),
					F("max", limit),
				)
			}
			return protocol.NewInvalidRequest(fmt.Sprintf("request size %d exceeds limit of %d bytes", size, limit))
		}

		return next()
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
