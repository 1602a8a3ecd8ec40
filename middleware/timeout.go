package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/onion/compose"
)

// Timeout returns middleware that gives downstream stages a context with a
// deadline. Stages that honor the context return context.DeadlineExceeded
// once it passes. The parent context is restored before the stage returns,
// so upstream after-code never observes the derived one.
func Timeout[C Carrier](d time.Duration) compose.Middleware[C] {
	return func(c C, next compose.Next) error {
		parent := c.Context()
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()

		c.SetContext(ctx)
		defer c.SetContext(parent)

		return next()
	}
}
