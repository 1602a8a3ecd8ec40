package middleware

import (
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// RateLimitOption configures the rate limiter.
type RateLimitOption[C any] func(*rateLimitConfig[C])

type rateLimitConfig[C any] struct {
	keyFunc func(C) string
	logger  Logger
}

// WithRateLimitKeyFunc sets a function to extract a rate limit key.
// This allows per-client or per-operation rate limiting.
func WithRateLimitKeyFunc[C any](fn func(C) string) RateLimitOption[C] {
	return func(o *rateLimitConfig[C]) {
		o.keyFunc = fn
	}
}

// WithRateLimitLogger sets the logger for rate limit events.
func WithRateLimitLogger[C any](l Logger) RateLimitOption[C] {
	return func(o *rateLimitConfig[C]) {
		o.logger = l
	}
}

// RateLimit returns middleware that limits invocation rate using a token
// bucket. The rate is specified as invocations per second; burst allows
// short bursts above it. Rejected invocations never reach later stages.
func RateLimit[C Carrier](rate int, burst int, opts ...RateLimitOption[C]) compose.Middleware[C] {
	cfg := &rateLimitConfig[C]{
		keyFunc: func(C) string { return "global" },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(c C, next compose.Next) error {
		key := cfg.keyFunc(c)

		if !limiter.Allow(c.Context(), key) {
			if cfg.logger != nil {
				cfg.logger.Warn("rate limit exceeded",
					F("operation", operationOf(c)),
					F("key", key),
				)
			}
			return protocol.NewRateLimited("rate limit exceeded")
		}

		return next()
	}
}

// RateLimitByOperation returns rate limiting middleware with a bucket per
// operation name.
func RateLimitByOperation[C Carrier](rate int, burst int, opts ...RateLimitOption[C]) compose.Middleware[C] {
	allOpts := append([]RateLimitOption[C]{
		WithRateLimitKeyFunc(func(c C) string { return operationOf(c) }),
	}, opts...)
	return RateLimit(rate, burst, allOpts...)
}

// RateLimitByClient returns rate limiting middleware with a bucket per
// client. clientIDFunc should extract a unique client identifier.
func RateLimitByClient[C Carrier](rate int, burst int, clientIDFunc func(C) string, opts ...RateLimitOption[C]) compose.Middleware[C] {
	allOpts := append([]RateLimitOption[C]{
		WithRateLimitKeyFunc(clientIDFunc),
	}, opts...)
	return RateLimit(rate, burst, allOpts...)
}
