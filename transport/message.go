package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/onion/protocol"
)

// Message is the carrier for message transports. Each decoded envelope
// becomes one Message and one pipeline invocation.
type Message struct {
	Req *protocol.Request

	ctx context.Context

	mu   sync.Mutex
	resp *protocol.Response
}

// NewMessage creates a message carrier for req.
func NewMessage(ctx context.Context, req *protocol.Request) *Message {
	return &Message{Req: req, ctx: ctx}
}

// Context returns the invocation context.
func (m *Message) Context() context.Context {
	return m.ctx
}

// SetContext replaces the invocation context.
func (m *Message) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// Operation returns the envelope method.
func (m *Message) Operation() string {
	return m.Req.Method
}

// Size returns the length of the raw params.
func (m *Message) Size() int64 {
	return int64(len(m.Req.Params))
}

// Params decodes the envelope params into v.
func (m *Message) Params(v any) error {
	if len(m.Req.Params) == 0 {
		return protocol.NewInvalidParams("missing params")
	}
	if err := json.Unmarshal(m.Req.Params, v); err != nil {
		return protocol.NewInvalidParams(err.Error())
	}
	return nil
}

// Reply records the result sent back to the peer. Only the first reply is
// kept.
func (m *Message) Reply(result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resp != nil {
		return protocol.NewInternalError("reply already sent")
	}
	m.resp = protocol.NewResponse(m.Req.ID, result)
	return nil
}

// Replied reports whether Reply has been called.
func (m *Message) Replied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resp != nil
}

// Response returns the recorded reply, or nil.
func (m *Message) Response() *protocol.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resp
}
