package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

const (
	instrumentationName = "github.com/felixgeelhaar/onion"
)

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	serviceName    string
	skipOperations map[string]bool
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithPropagator sets the propagator used to continue traces started by
// the caller. Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) OTelOption {
	return func(c *otelConfig) {
		c.propagator = p
	}
}

// WithOTelServiceName sets the service name for telemetry.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// WithOTelSkipOperations specifies operations to skip for tracing.
func WithOTelSkipOperations(ops ...string) OTelOption {
	return func(c *otelConfig) {
		for _, op := range ops {
			c.skipOperations[op] = true
		}
	}
}

// OTel returns middleware that opens a span around the downstream stages
// and records invocation counts, latency and errors. Trace context found in
// the request metadata (traceparent) makes the span a child of the
// caller's.
func OTel[C Carrier](opts ...OTelOption) compose.Middleware[C] {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		propagator:     otel.GetTextMapPropagator(),
		serviceName:    "onion",
		skipOperations: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)

	meter := cfg.meterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestCounter, _ := meter.Int64Counter(
		"onion.requests",
		metric.WithDescription("Total number of pipeline invocations"),
		metric.WithUnit("{request}"),
	)

	requestDuration, _ := meter.Float64Histogram(
		"onion.request.duration",
		metric.WithDescription("Duration of pipeline invocations"),
		metric.WithUnit("ms"),
	)

	errorCounter, _ := meter.Int64Counter(
		"onion.errors",
		metric.WithDescription("Total number of failed invocations"),
		metric.WithUnit("{error}"),
	)

	return func(c C, next compose.Next) error {
		op := operationOf(c)
		if cfg.skipOperations[op] {
			return next()
		}

		parent := c.Context()
		remote := cfg.propagator.Extract(parent, metaCarrier(protocol.MetaFromContext(parent)))
		ctx, span := tracer.Start(remote, "onion."+op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("onion.operation", op),
				attribute.String("service.name", cfg.serviceName),
			),
		)
		defer span.End()

		if reqID := RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(attribute.String("onion.request_id", reqID))
		}

		attrs := []attribute.KeyValue{
			attribute.String("onion.operation", op),
			attribute.String("service.name", cfg.serviceName),
		}
		requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

		start := time.Now()
		c.SetContext(ctx)
		err := next()
		c.SetContext(parent)

		elapsed := float64(time.Since(start)) / float64(time.Millisecond)
		requestDuration.Record(ctx, elapsed, metric.WithAttributes(attrs...))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			var perr *protocol.Error
			if errors.As(err, &perr) {
				span.SetAttributes(attribute.Int("onion.error_code", perr.Code))
				attrs = append(attrs, attribute.Int("onion.error_code", perr.Code))
			}
			errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}

// metaCarrier reads propagation fields from request metadata. Injection is
// not needed on the server side, so Set is a no-op.
type metaCarrier protocol.Meta

func (m metaCarrier) Get(key string) string { return protocol.Meta(m).Get(key) }
func (m metaCarrier) Set(string, string)    {}

func (m metaCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// SpanFromContext returns the current span from context.
// Returns a no-op span if no span is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttribute sets an attribute on the current span.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case []string:
		span.SetAttributes(attribute.StringSlice(key, v))
	}
}
