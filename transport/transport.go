package transport

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// Transport is implemented by every server in this package.
type Transport interface {
	// Addr returns the transport's address description.
	Addr() string
}

// Dispatch decodes one envelope, runs p over it and returns the response
// to send back. Notifications yield nil. meta is merged under the
// envelope's own metadata.
func Dispatch(ctx context.Context, p compose.Pipeline[*Message], data []byte, meta protocol.Meta) *protocol.Response {
	req, perr := protocol.ParseRequest(data)
	if perr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return protocol.NewErrorResponse(id, perr)
	}

	m := NewMessage(protocol.ContextWithMeta(ctx, req.MetaOver(meta)), req)
	err := p.Run(m)

	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.FromError(err))
	}
	if resp := m.Response(); resp != nil {
		return resp
	}
	return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound("method not found: "+req.Method))
}
