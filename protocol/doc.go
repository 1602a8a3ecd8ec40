// Package protocol defines the coded errors and message envelopes shared by
// middleware and transports.
//
// # Errors
//
// Middleware reject work with coded errors, and transports render them:
//
//	return protocol.NewUnauthorized("authentication required")
//
// FromError translates any failure that reaches a transport. Coded errors
// pass through, deadline errors become CodeTimeout, and everything else
// becomes CodeInternalError. HTTPStatus maps codes to HTTP status codes:
//
//	CodeInvalidRequest -> 400
//	CodeUnauthorized   -> 401
//	CodeNotFound       -> 404
//	CodeRateLimited    -> 429
//	CodeInternalError  -> 500
//	CodeUnavailable    -> 503
//	CodeTimeout        -> 504
//
// # Messages
//
// Message transports (WebSocket, stdio) exchange JSON-RPC 2.0 shaped
// envelopes:
//
//	{"jsonrpc":"2.0","id":1,"method":"echo","params":{...},"meta":{"Authorization":"Bearer t"}}
//
// # Metadata
//
// Transport-level attributes such as HTTP headers travel in the context as
// Meta, so authenticators can read them regardless of transport:
//
//	token := protocol.GetMeta(ctx, "Authorization")
package protocol
