// Package onion composes ordered middleware stacks into pipelines and
// serves them.
//
// The composition engine lives in package compose. This package wires it
// to configuration, logging and the HTTP transport:
//
//	cfg, err := config.Load(config.WithConfigFile("config.yaml"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app, err := onion.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.Use(func(req *onion.Request, next onion.Next) error {
//	    return req.JSON(http.StatusOK, map[string]string{"hello": "world"})
//	})
//
//	err = app.Serve(ctx)
package onion

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/config"
	"github.com/felixgeelhaar/onion/logger"
	"github.com/felixgeelhaar/onion/middleware"
	"github.com/felixgeelhaar/onion/transport"
)

// Request is the HTTP carrier.
type Request = transport.Request

// Message is the carrier for message transports.
type Message = transport.Message

// Next resumes the rest of a pipeline.
type Next = compose.Next

// Middleware is a stage of an HTTP pipeline.
type Middleware = compose.Middleware[*transport.Request]

// Pipeline is a composed HTTP pipeline.
type Pipeline = compose.Pipeline[*transport.Request]

// App serves a configured HTTP pipeline.
type App struct {
	cfg    config.Config
	logger middleware.Logger
	http   *transport.HTTP
	ws     *transport.WebSocket
	stack  *compose.Stack[*transport.Request]

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	fallback       compose.Endpoint[*transport.Request]
}

// Option configures an App.
type Option func(*App)

// WithLogger replaces the logger built from the log configuration.
func WithLogger(l middleware.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithTracerProvider sets the tracer provider used when telemetry is enabled.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) {
		a.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider used when telemetry is enabled.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) {
		a.meterProvider = mp
	}
}

// WithFallback sets the endpoint reached when every stage calls next.
func WithFallback(endpoint compose.Endpoint[*transport.Request]) Option {
	return func(a *App) {
		a.fallback = endpoint
	}
}

// New validates cfg and builds an App with the default stack installed:
// Recover, RequestID, OTel (when enabled), Logging, Timeout, RateLimit,
// SizeLimit and CORS, each skipped when its setting is zero.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.NewAdapter(logger.New(cfg.Log))
	}

	a.http = transport.NewHTTP(cfg.HTTP.Addr,
		transport.WithReadTimeout(cfg.HTTP.ReadTimeout),
		transport.WithWriteTimeout(cfg.HTTP.WriteTimeout),
		transport.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		transport.WithShutdownDrainDelay(cfg.HTTP.DrainDelay),
		transport.WithHTTPLogger(a.logger),
		transport.WithFallback(a.fallback),
	)
	a.ws = transport.NewWebSocket(cfg.WebSocket.Addr,
		transport.WithWebSocketReadTimeout(cfg.WebSocket.ReadTimeout),
		transport.WithWebSocketWriteTimeout(cfg.WebSocket.WriteTimeout),
	)
	a.stack = compose.Use(a.defaultStack()...)
	return a, nil
}

func (a *App) defaultStack() []Middleware {
	stack := []Middleware{
		middleware.RecoverWithLogger[*Request](a.logger),
		middleware.RequestID[*Request](),
	}

	if a.cfg.Telemetry.Enabled {
		opts := []middleware.OTelOption{middleware.WithOTelServiceName(a.cfg.Telemetry.ServiceName)}
		if a.tracerProvider != nil {
			opts = append(opts, middleware.WithTracerProvider(a.tracerProvider))
		}
		if a.meterProvider != nil {
			opts = append(opts, middleware.WithMeterProvider(a.meterProvider))
		}
		stack = append(stack, middleware.OTel[*Request](opts...))
	}

	stack = append(stack, middleware.Logging[*Request](a.logger))

	limits := a.cfg.Limits
	if limits.RequestTimeout > 0 {
		stack = append(stack, middleware.Timeout[*Request](limits.RequestTimeout))
	}
	if limits.Rate > 0 {
		stack = append(stack, middleware.RateLimit[*Request](limits.Rate, limits.Burst,
			middleware.WithRateLimitLogger[*Request](a.logger)))
	}
	if limits.MaxBodyBytes > 0 {
		stack = append(stack, middleware.SizeLimit[*Request](limits.MaxBodyBytes,
			middleware.WithSizeLimitLogger(a.logger)))
	}

	if len(a.cfg.CORS.AllowOrigins) > 0 {
		cors := transport.DefaultCORSConfig()
		cors.AllowOrigins = a.cfg.CORS.AllowOrigins
		cors.AllowCredentials = a.cfg.CORS.AllowCredentials
		stack = append(stack, transport.CORS(cors))
	}
	return stack
}

// Use appends stages after the default stack.
func (a *App) Use(stages ...Middleware) *App {
	a.stack.Append(stages...)
	return a
}

// Len returns the number of installed stages.
func (a *App) Len() int {
	return a.stack.Len()
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the App logger.
func (a *App) Logger() middleware.Logger {
	return a.logger
}

// Handler composes the installed stages and returns them as an http.Handler.
func (a *App) Handler() (http.Handler, error) {
	p, err := a.stack.Compose()
	if err != nil {
		return nil, err
	}
	return a.http.Handler(p), nil
}

// Serve composes the installed stages and serves them until ctx is
// canceled, then drains in-flight requests.
func (a *App) Serve(ctx context.Context) error {
	p, err := a.stack.Compose()
	if err != nil {
		return err
	}

	a.logger.Info("serving",
		middleware.F("name", a.cfg.Name),
		middleware.F("addr", a.cfg.HTTP.Addr),
		middleware.F("stages", a.stack.Len()),
	)
	err = a.http.Serve(ctx, p)
	a.logger.Info("stopped", middleware.F("name", a.cfg.Name))
	return err
}

// ListenAddr returns the address Serve is listening on, once started.
func (a *App) ListenAddr() string {
	return a.http.ListenAddr()
}

// ServeWebSocket runs a message pipeline on the configured WebSocket
// address until ctx is canceled.
func (a *App) ServeWebSocket(ctx context.Context, p compose.Pipeline[*Message]) error {
	a.logger.Info("serving websocket",
		middleware.F("name", a.cfg.Name),
		middleware.F("addr", a.cfg.WebSocket.Addr),
	)
	return a.ws.Serve(ctx, p)
}

// WebSocketAddr returns the address ServeWebSocket is listening on, once
// started.
func (a *App) WebSocketAddr() string {
	return a.ws.ListenAddr()
}

// ServeStdio runs a message pipeline over stdin and stdout.
// This blocks until EOF, the context is canceled or an error occurs.
func ServeStdio(ctx context.Context, p compose.Pipeline[*Message], opts ...transport.StdioOption) error {
	return transport.NewStdio(opts...).Serve(ctx, p)
}

// ServeWebSocket runs a message pipeline over WebSocket connections.
// This blocks until the context is canceled or an error occurs.
func ServeWebSocket(ctx context.Context, addr string, p compose.Pipeline[*Message], opts ...transport.WebSocketOption) error {
	return transport.NewWebSocket(addr, opts...).Serve(ctx, p)
}
