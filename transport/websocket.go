package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// WebSocket serves a message pipeline over WebSocket connections. Every
// text frame is one envelope and one invocation.
type WebSocket struct {
	addr     string
	upgrader websocket.Upgrader

	readTimeout  time.Duration
	writeTimeout time.Duration
	shutdown     *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
	clients    map[*wsClient]struct{}
}

// wsClient represents a single WebSocket connection.
type wsClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithWebSocketReadTimeout sets the idle timeout between messages.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for responses.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// WithWebSocketShutdownTimeout bounds how long Serve waits for in-flight
// messages once ctx is canceled.
func WithWebSocketShutdownTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.shutdown = NewShutdownManager(ShutdownConfig{Timeout: d})
	}
}

// NewWebSocket creates a new WebSocket transport.
func NewWebSocket(addr string, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		shutdown:     NewShutdownManager(ShutdownConfig{Timeout: 5 * time.Second}),
		clients:      make(map[*wsClient]struct{}),
	}

	for _, opt := range opts {
		opt(ws)
	}

	return ws
}

// Addr returns the transport address.
func (ws *WebSocket) Addr() string {
	return ws.addr
}

// ListenAddr returns the actual address the server is listening on.
func (ws *WebSocket) ListenAddr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listenAddr
}

// Shutdown returns the manager tracking in-flight messages.
func (ws *WebSocket) Shutdown() *ShutdownManager {
	return ws.shutdown
}

// Handler returns an http.Handler that upgrades connections and runs p for
// each message. The handshake headers become metadata of every message.
// Messages arriving after shutdown began are answered with an unavailable
// error.
func (ws *WebSocket) Handler(p compose.Pipeline[*Message]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.handleConnection(r.Context(), w, r, p)
	})
}

// Serve starts the WebSocket server and blocks until ctx is canceled.
func (ws *WebSocket) Serve(ctx context.Context, p compose.Pipeline[*Message]) error {
	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: ws.Handler(p),
		// Connections outlive the upgrade request, and in-flight messages
		// must survive cancellation of ctx while draining.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	ws.mu.Lock()
	ws.listenAddr = listener.Addr().String()
	ws.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		// ctx is already done, so waiting uses a fresh one.
		_ = ws.shutdown.Shutdown(context.Background())
		ws.closeAllClients()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocket) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, p compose.Pipeline[*Message]) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, writeTimeout: ws.writeTimeout}
	meta := protocol.MetaFromHeader(r.Header)

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.readTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if err := ws.handleMessage(ctx, client, p, data, meta); err != nil {
			return
		}
	}
}

// handleMessage runs one message and writes its response. The message stays
// in flight until the response is written so shutdown never closes a
// connection with a reply pending.
func (ws *WebSocket) handleMessage(ctx context.Context, client *wsClient, p compose.Pipeline[*Message], data []byte, meta protocol.Meta) error {
	if !ws.shutdown.Track() {
		req, _ := protocol.ParseRequest(data)
		if req == nil || req.IsNotification() {
			return nil
		}
		return client.writeJSON(protocol.NewErrorResponse(req.ID, protocol.NewUnavailable("server is shutting down")))
	}
	defer ws.shutdown.Complete()

	if resp := Dispatch(ctx, p, data, meta); resp != nil {
		return client.writeJSON(resp)
	}
	return nil
}

func (ws *WebSocket) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for client := range ws.clients {
		client.close()
	}
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}
