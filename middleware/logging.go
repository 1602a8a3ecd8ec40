package middleware

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// Logger is the interface for structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LoggingOption configures the logging middleware.
type LoggingOption func(*loggingConfig)

type loggingConfig struct {
	skip map[string]bool
	slow time.Duration
}

// WithLogSkipOperations suppresses completion logs for the given
// operations, such as health checks. Failures are always logged.
func WithLogSkipOperations(ops ...string) LoggingOption {
	return func(o *loggingConfig) {
		for _, op := range ops {
			o.skip[op] = true
		}
	}
}

// WithLogSlowThreshold logs successful invocations slower than d at warn
// level.
func WithLogSlowThreshold(d time.Duration) LoggingOption {
	return func(o *loggingConfig) {
		o.slow = d
	}
}

// Logging returns middleware that logs every invocation once downstream
// stages have settled. Failures carrying a protocol error code also get a
// "code" field.
func Logging[C Carrier](logger Logger, opts ...LoggingOption) compose.Middleware[C] {
	cfg := &loggingConfig{skip: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c C, next compose.Next) error {
		start := time.Now()
		err := next()
		elapsed := time.Since(start)

		op := operationOf(c)
		if err == nil && cfg.skip[op] {
			return nil
		}

		fields := []Field{F("operation", op), F("duration", elapsed)}
		if requestID := RequestIDFromContext(c.Context()); requestID != "" {
			fields = append(fields, F("request_id", requestID))
		}

		switch {
		case err != nil:
			var perr *protocol.Error
			if errors.As(err, &perr) {
				fields = append(fields, F("code", perr.Code))
			}
			logger.Error("request failed", append(fields, F("error", err.Error()))...)
		case cfg.slow > 0 && elapsed > cfg.slow:
			logger.Warn("slow request", append(fields, F("threshold", cfg.slow))...)
		default:
			logger.Info("request completed", fields...)
		}
		return err
	}
}

// NopLogger is a logger that discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
