// Package transport runs onion pipelines over network and stream
// transports.
//
// HTTP pipelines operate on *Request carriers. Message transports decode
// JSON envelopes into *Message carriers, one invocation per envelope:
//
//   - HTTP: one invocation per request, with /health and graceful drain
//   - WebSocket: one invocation per text frame
//   - Stdio: one invocation per line
//   - Gin: a pipeline mounted as gin middleware
//
// # HTTP
//
//	h := transport.NewHTTP(":8080", transport.WithShutdownDrainDelay(5*time.Second))
//	p := compose.MustCompose(
//	    middleware.Recover[*transport.Request](),
//	    transport.CORS(transport.DefaultCORSConfig()),
//	    func(req *transport.Request, next compose.Next) error {
//	        return req.JSON(http.StatusOK, map[string]string{"hello": "world"})
//	    },
//	)
//	err := h.Serve(ctx, p)
//
// A stage error becomes a JSON error body with the status mapped from its
// protocol code. A pipeline that writes nothing answers 404.
//
// # Messages
//
// Message stages reply with Message.Reply. Requests that end without a
// reply get a method-not-found error; notifications never get a response.
//
//	ws := transport.NewWebSocket(":8081")
//	err := ws.Serve(ctx, compose.MustCompose(
//	    func(m *transport.Message, next compose.Next) error {
//	        if m.Req.Method != "ping" {
//	            return next()
//	        }
//	        return m.Reply("pong")
//	    },
//	))
package transport
