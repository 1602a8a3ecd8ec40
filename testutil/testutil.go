// Package testutil provides helpers for testing middleware and pipelines.
//
// It offers a minimal carrier, a thread-safe event recorder and scripted
// stages that make ordering assertions short:
//
//	func TestMyStack(t *testing.T) {
//	    rec := testutil.NewRecorder()
//	    p := compose.MustCompose(
//	        testutil.Step[*testutil.Exchange](rec, "outer"),
//	        myMiddleware,
//	        testutil.Mark[*testutil.Exchange](rec, "inner"),
//	    )
//
//	    err := p.Run(testutil.NewExchange("op"))
//	    require.NoError(t, err)
//	    assert.Equal(t, []string{"outer-before", "inner", "outer-after"}, rec.Events())
//	}
package testutil

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/onion/compose"
)

// Exchange is a minimal carrier for middleware tests. It satisfies the
// middleware Carrier interface and reports an operation name and size.
type Exchange struct {
	ctx  context.Context
	Name string
	Len  int64

	mu     sync.Mutex
	values map[string]any
}

// NewExchange creates an exchange for the named operation.
func NewExchange(name string) *Exchange {
	return &Exchange{
		ctx:    context.Background(),
		Name:   name,
		values: make(map[string]any),
	}
}

// WithContext replaces the exchange context and returns the exchange.
func (e *Exchange) WithContext(ctx context.Context) *Exchange {
	e.ctx = ctx
	return e
}

// Context returns the current context.
func (e *Exchange) Context() context.Context {
	return e.ctx
}

// SetContext replaces the current context.
func (e *Exchange) SetContext(ctx context.Context) {
	e.ctx = ctx
}

// Operation returns the operation name.
func (e *Exchange) Operation() string {
	return e.Name
}

// Size returns the payload size.
func (e *Exchange) Size() int64 {
	return e.Len
}

// Set stores a value.
func (e *Exchange) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

// Get returns a stored value.
func (e *Exchange) Get(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	return v, ok
}

// Recorder collects events from concurrent stages.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Reset discards all events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Step records name-before, runs the rest of the pipeline and records
// name-after.
func Step[C any](rec *Recorder, name string) compose.Middleware[C] {
	return func(_ C, next compose.Next) error {
		rec.Record(name + "-before")
		err := next()
		rec.Record(name + "-after")
		return err
	}
}

// Mark records name and continues.
func Mark[C any](rec *Recorder, name string) compose.Middleware[C] {
	return func(_ C, next compose.Next) error {
		rec.Record(name)
		return next()
	}
}

// Halt records name and ends the pipeline without calling next.
func Halt[C any](rec *Recorder, name string) compose.Middleware[C] {
	return func(C, compose.Next) error {
		rec.Record(name)
		return nil
	}
}

// Fail returns err without calling next.
func Fail[C any](err error) compose.Middleware[C] {
	return func(C, compose.Next) error {
		return err
	}
}

// Panic panics with v without calling next.
func Panic[C any](v any) compose.Middleware[C] {
	return func(C, compose.Next) error {
		panic(v)
	}
}

// Endpoint returns a tail that records name.
func Endpoint(rec *Recorder, name string) compose.Next {
	return func() error {
		rec.Record(name)
		return nil
	}
}
