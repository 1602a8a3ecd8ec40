package protocol

import (
	"encoding/json"
	"net/textproto"
)

// JSONRPCVersion is the only envelope version accepted.
const JSONRPCVersion = "2.0"

// Request is the envelope message transports decode before running a
// pipeline. Meta rides along with the call and is merged over whatever
// metadata the transport itself supplies.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Meta    Meta            `json:"meta,omitempty"`
}

// ParseRequest decodes one envelope. Undecodable input is a parse error.
// A missing method or a version other than JSONRPCVersion is an invalid
// request; the partially decoded envelope is still returned so the caller
// can echo its ID.
func ParseRequest(data []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewParseError(err.Error())
	}
	if req.JSONRPC != "" && req.JSONRPC != JSONRPCVersion {
		return &req, NewInvalidRequest("unsupported jsonrpc version " + req.JSONRPC)
	}
	if req.Method == "" {
		return &req, NewInvalidRequest("missing method")
	}
	return &req, nil
}

// IsNotification reports whether the sender expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// MetaOver returns base overlaid with the envelope metadata. Envelope keys
// are canonicalized; neither input is modified.
func (r *Request) MetaOver(base Meta) Meta {
	merged := make(Meta, len(base)+len(r.Meta))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range r.Meta {
		merged[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	return merged
}

// Response is the envelope written back for a request. Exactly one of
// Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}
