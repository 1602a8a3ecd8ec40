// Package middleware provides built-in stages for onion pipelines.
//
// Every stage is generic over a carrier type that exposes a context. Stages
// that need request-scoped values derive a new context and install it with
// SetContext before calling next.
//
// # Basic Usage
//
// Compose stages with the compose package:
//
//	p := compose.MustCompose(
//	    middleware.Recover[*transport.Request](),
//	    middleware.RequestID[*transport.Request](),
//	    middleware.Logging[*transport.Request](logger),
//	)
//	err := p(req, endpoint)
//
// # Available Middleware
//
//   - Recover: Converts panics into internal errors
//   - RequestID: Injects unique request IDs into the context
//   - Timeout: Enforces deadlines on downstream stages
//   - Logging: Logs operation, duration and outcome
//   - RateLimit: Token bucket limiting backed by fortify
//   - SizeLimit: Rejects oversized payloads
//   - Auth: API key, bearer token and JWT authentication
//   - OTel: OpenTelemetry spans and metrics
//
// # Default Stacks
//
//	// Recover + RequestID + Logging
//	stack := middleware.DefaultStack[*transport.Request](logger)
//
//	// Recover + RequestID + Timeout + Logging
//	stack := middleware.DefaultStackWithTimeout[*transport.Request](logger, 30*time.Second)
//
// # Custom Middleware
//
// Any function with the compose.Middleware signature is a stage:
//
//	func Audit[C middleware.Carrier](sink chan<- string) compose.Middleware[C] {
//	    return func(c C, next compose.Next) error {
//	        err := next()
//	        sink <- fmt.Sprint(err)
//	        return err
//	    }
//	}
package middleware
