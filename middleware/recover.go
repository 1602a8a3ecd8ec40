package middleware

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// PanicHandler is called when a downstream stage panicked with a value
// that was not an error.
type PanicHandler[C any] func(c C, panicVal any, stack []byte) error

// Recover returns middleware that converts downstream panics into internal
// errors. Panics carrying an error already surface as that error and pass
// through untouched.
func Recover[C any]() compose.Middleware[C] {
	return RecoverWithHandler(defaultPanicHandler[C])
}

// RecoverWithHandler returns middleware that calls handler for downstream
// panics. This allows for custom panic handling such as logging or alerting.
func RecoverWithHandler[C any](handler PanicHandler[C]) compose.Middleware[C] {
	return func(c C, next compose.Next) error {
		err := next()

		var pe *compose.PanicError
		if errors.As(err, &pe) {
			return handler(c, pe.Value, pe.Stack)
		}
		return err
	}
}

// RecoverWithLogger returns middleware that logs the panic and its stack
// before converting it into an internal error.
func RecoverWithLogger[C any](logger Logger) compose.Middleware[C] {
	return RecoverWithHandler(func(c C, panicVal any, stack []byte) error {
		logger.Error("panic recovered",
			F("operation", operationOf(c)),
			F("panic", fmt.Sprint(panicVal)),
			F("stack", string(stack)),
		)
		return defaultPanicHandler(c, panicVal, stack)
	})
}

func defaultPanicHandler[C any](_ C, panicVal any, _ []byte) error {
	return protocol.NewInternalError(fmt.Sprintf("panic: %v", panicVal))
}
