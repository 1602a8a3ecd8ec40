package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/middleware"
	"github.com/felixgeelhaar/onion/protocol"
)

// HTTP serves a pipeline over *Request carriers.
type HTTP struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	drainDelay      time.Duration
	fallback        compose.Endpoint[*Request]
	logger          middleware.Logger

	shutdown *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.shutdownTimeout = d
	}
}

// WithShutdownDrainDelay keeps accepting requests for d after shutdown starts.
func WithShutdownDrainDelay(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drainDelay = d
	}
}

// WithFallback sets the endpoint that runs when every stage calls next.
func WithFallback(endpoint compose.Endpoint[*Request]) HTTPOption {
	return func(h *HTTP) {
		h.fallback = endpoint
	}
}

// WithHTTPLogger sets the logger for transport-level failures.
func WithHTTPLogger(l middleware.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = l
	}
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:            addr,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          middleware.NopLogger{},
	}

	for _, opt := range opts {
		opt(h)
	}

	h.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:    h.shutdownTimeout,
		DrainDelay: h.drainDelay,
	})
	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Shutdown returns the manager tracking in-flight requests.
func (h *HTTP) Shutdown() *ShutdownManager {
	return h.shutdown
}

// Handler returns an http.Handler that runs p for every request except
// GET /health. Requests arriving while the server drains get 503.
func (h *HTTP) Handler(p compose.Pipeline[*Request]) http.Handler {
	p = compose.MustCompose(Drain[*Request](h.shutdown), p.Middleware())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		status, body := http.StatusOK, "ok"
		if h.shutdown.IsDraining() {
			status, body = http.StatusServiceUnavailable, "draining"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "{\"status\":%q}\n", body)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, p)
	})
	return mux
}

func (h *HTTP) serve(w http.ResponseWriter, r *http.Request, p compose.Pipeline[*Request]) {
	req := NewRequest(w, r)

	var tail compose.Next
	if h.fallback != nil {
		tail = func() error { return h.fallback(req) }
	}

	err := p(req, tail)
	switch {
	case err != nil && req.Written():
		h.logger.Error("request failed after response was written",
			middleware.F("operation", req.Operation()),
			middleware.F("status", req.Status()),
			middleware.F("error", err.Error()),
		)
	case err != nil:
		WriteError(req, err)
	case !req.Written():
		WriteError(req, protocol.NewNotFound("no handler for "+req.Operation()))
	}
}

// ErrorBody is the JSON body written for failed requests.
type ErrorBody struct {
	Error *protocol.Error `json:"error"`
}

// WriteError maps err to a protocol error and writes it with the matching
// HTTP status.
func WriteError(req *Request, err error) {
	perr := protocol.FromError(err)
	_ = req.JSON(perr.HTTPStatus(), ErrorBody{Error: perr})
}

// Serve listens on the configured address and serves p until ctx is
// canceled. Shutdown drains in-flight requests before closing the server.
func (h *HTTP) Serve(ctx context.Context, p compose.Pipeline[*Request]) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:      h.Handler(p),
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.server = srv
	h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// The parent is already canceled; give shutdown its own budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.drainDelay+h.shutdownTimeout)
	defer cancel()

	drainErr := h.shutdown.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return drainErr
}
