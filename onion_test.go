package onion_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/onion"
	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/config"
	"github.com/felixgeelhaar/onion/middleware"
	"github.com/felixgeelhaar/onion/protocol"
	"github.com/felixgeelhaar/onion/transport"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = time.Second
	cfg.HTTP.DrainDelay = 0
	cfg.WebSocket.Addr = "127.0.0.1:0"
	return cfg
}

func hello(req *onion.Request, _ onion.Next) error {
	return req.JSON(http.StatusOK, map[string]string{
		"hello":      "world",
		"request_id": middleware.RequestIDFromContext(req.Context()),
	})
}

func serve(t *testing.T, app *onion.App, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h, err := app.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestNew(t *testing.T) {
	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Name = ""
		_, err := onion.New(cfg)
		assert.Error(t, err)
	})

	t.Run("installs default stack", func(t *testing.T) {
		app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		// Recover, RequestID, Logging, Timeout, SizeLimit
		assert.Equal(t, 5, app.Len())
		assert.Equal(t, "onion", app.Config().Name)
	})

	t.Run("optional stages follow config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits = config.LimitsConfig{Rate: 10, Burst: 10}
		cfg.CORS.AllowOrigins = []string{"*"}
		cfg.Telemetry.Enabled = true

		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		// Recover, RequestID, OTel, Logging, RateLimit, CORS
		assert.Equal(t, 6, app.Len())
	})
}

func TestApp_Handler(t *testing.T) {
	t.Run("serves appended stages with a request id", func(t *testing.T) {
		app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(hello)

		rec := serve(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"hello":"world"`)
		assert.NotContains(t, rec.Body.String(), `"request_id":""`)
	})

	t.Run("recovers panics as 500", func(t *testing.T) {
		app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(func(*onion.Request, onion.Next) error { panic("kaboom") })

		rec := serve(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits.MaxBodyBytes = 4
		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(hello)

		rec := serve(t, app, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too large")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects oversized chunked bodies", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits.MaxBodyBytes = 16
		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(func(req *onion.Request, _ onion.Next) error {
			var body map[string]any
			if err := req.Decode(&body); err != nil {
				return err
			}
			return req.JSON(http.StatusOK, body)
		})

		chunked := func(body string) *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			r.ContentLength = -1
			return r
		}

		rec := serve(t, app, chunked(`{"name":"`+strings.Repeat("x", 1<<20)+`"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "exceeds limit of 16 bytes")

		rec = serve(t, app, chunked(`{"a":1}`))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rate limits", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits.Rate, cfg.Limits.Burst = 1, 1
		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(hello)

		h, err := app.Handler()
		require.NoError(t, err)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})

	t.Run("timeout surfaces as 504", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits.RequestTimeout = 10 * time.Millisecond
		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(func(req *onion.Request, _ onion.Next) error {
			<-req.Context().Done()
			return req.Context().Err()
		})

		rec := serve(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("fallback and cors", func(t *testing.T) {
		cfg := testConfig()
		cfg.CORS.AllowOrigins = []string{"https://app.example.com"}
		app, err := onion.New(cfg,
			onion.WithLogger(middleware.NopLogger{}),
			onion.WithFallback(func(req *onion.Request) error {
				return protocol.NewNotFound("nothing here")
			}),
		)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/missing", nil)
		r.Header.Set("Origin", "https://app.example.com")
		rec := serve(t, app, r)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Body.String(), "nothing here")
	})

	t.Run("nil stages fail composition", func(t *testing.T) {
		app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
		require.NoError(t, err)
		app.Use(nil)

		_, err = app.Handler()
		assert.Error(t, err)
	})

	t.Run("telemetry spans", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer tp.Shutdown(context.Background())

		cfg := testConfig()
		cfg.Telemetry.Enabled = true
		app, err := onion.New(cfg, onion.WithLogger(middleware.NopLogger{}), onion.WithTracerProvider(tp))
		require.NoError(t, err)
		app.Use(hello)

		serve(t, app, httptest.NewRequest(http.MethodGet, "/items", nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "onion.GET /items", spans[0].Name)
	})
}

func TestApp_Serve(t *testing.T) {
	app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
	require.NoError(t, err)
	app.Use(hello)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Serve(ctx) }()

	require.Eventually(t, func() bool { return app.ListenAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + app.ListenAddr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + app.ListenAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeStdio(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")

	p := compose.MustCompose(func(m *onion.Message, _ onion.Next) error {
		return m.Reply("pong")
	})
	err := onion.ServeStdio(context.Background(), p,
		transport.WithStdin(in), transport.WithStdout(&out))
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"result":"pong"`)
}

func TestApp_ServeWebSocket(t *testing.T) {
	app, err := onion.New(testConfig(), onion.WithLogger(middleware.NopLogger{}))
	require.NoError(t, err)

	p := compose.MustCompose(
		middleware.RequestIDWithGenerator[*onion.Message](func() string { return "ws-1" }),
		func(m *onion.Message, _ onion.Next) error {
			return m.Reply(middleware.RequestIDFromContext(m.Context()))
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.ServeWebSocket(ctx, p) }()

	require.Eventually(t, func() bool { return app.WebSocketAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+app.WebSocketAddr()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"id"}`)))
	var resp protocol.Response
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "ws-1", resp.Result)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ServeWebSocket did not return")
	}
}
