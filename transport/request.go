package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/felixgeelhaar/onion/protocol"
)

// Request is the carrier HTTP pipelines run over. One Request is created
// per incoming HTTP request and shared by every stage.
type Request struct {
	// W is the response writer. It records the status written through it.
	W http.ResponseWriter
	// R is the incoming request.
	R *http.Request

	ctx    context.Context
	status *statusWriter

	mu     sync.Mutex
	values map[string]any
}

// NewRequest wraps w and r. Request headers are attached to the context
// as protocol metadata.
func NewRequest(w http.ResponseWriter, r *http.Request) *Request {
	sw := &statusWriter{ResponseWriter: w}
	return &Request{
		W:      sw,
		R:      r,
		ctx:    protocol.ContextWithMeta(r.Context(), protocol.MetaFromHeader(r.Header)),
		status: sw,
		values: make(map[string]any),
	}
}

// Context returns the invocation context.
func (r *Request) Context() context.Context {
	return r.ctx
}

// SetContext replaces the invocation context.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// Operation returns "METHOD /path".
func (r *Request) Operation() string {
	return r.R.Method + " " + r.R.URL.Path
}

// Size returns the declared body length, or -1 for chunked bodies and
// others of unknown length.
func (r *Request) Size() int64 {
	return r.R.ContentLength
}

// LimitBody makes reads past maxBytes fail and closes the connection once
// the response is sent.
func (r *Request) LimitBody(maxBytes int64) {
	// The server's own writer, so net/http can close the connection.
	r.R.Body = http.MaxBytesReader(r.status.ResponseWriter, r.R.Body, maxBytes)
}

// Set stores a value for later stages.
func (r *Request) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

// Get returns a value stored with Set.
func (r *Request) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// Written reports whether a status has been sent.
func (r *Request) Written() bool {
	return r.status.code != 0
}

// Status returns the status sent so far, or 0.
func (r *Request) Status() int {
	return r.status.code
}

// Decode reads the JSON body into v. Malformed bodies yield a parse error
// and bodies cut off by LimitBody an invalid request.
func (r *Request) Decode(v any) error {
	if err := json.NewDecoder(r.R.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return protocol.NewInvalidRequest(fmt.Sprintf("request body exceeds limit of %d bytes", tooLarge.Limit))
		case err == io.EOF:
			return protocol.NewInvalidRequest("empty body")
		}
		return protocol.NewParseError(err.Error())
	}
	return nil
}

// JSON writes v with the given status.
func (r *Request) JSON(status int, v any) error {
	r.W.Header().Set("Content-Type", "application/json")
	r.W.WriteHeader(status)
	return json.NewEncoder(r.W).Encode(v)
}

// Text writes a plain text body.
func (r *Request) Text(status int, s string) error {
	r.W.Header().Set("Content-Type", "text/plain; charset=utf-8")
	r.W.WriteHeader(status)
	_, err := io.WriteString(r.W, s)
	return err
}

// NoContent writes 204.
func (r *Request) NoContent() {
	r.W.WriteHeader(http.StatusNoContent)
}

// statusWriter remembers the first status written.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush supports streaming handlers.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
