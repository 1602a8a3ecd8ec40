package compose

import "reflect"

// Next resumes the pipeline at the following stage. It blocks until every
// downstream stage has settled and returns their result.
type Next func() error

// Middleware is one stage of a pipeline. It receives the value shared by
// all stages of an invocation and the continuation for the rest of the
// stack. Returning without calling next ends the invocation early.
type Middleware[C any] func(c C, next Next) error

// Handler is implemented by stages that carry their own state.
type Handler[C any] interface {
	Handle(c C, next Next) error
}

// Endpoint is a terminal handler bound to the end of a pipeline.
type Endpoint[C any] func(c C) error

// Pipeline is the single operation composed from a stack. The tail runs
// once every stage has called next; a nil tail is a no-op.
type Pipeline[C any] func(c C, tail Next) error

// Compose validates stack and returns the pipeline that runs it. Every
// element must be non-nil. The stack is copied, so later changes to the
// caller's slice do not affect the pipeline.
func Compose[C any](stack ...Middleware[C]) (Pipeline[C], error) {
	for i, mw := range stack {
		if mw == nil {
			return nil, notCallable(i)
		}
	}
	frozen := make([]Middleware[C], len(stack))
	copy(frozen, stack)

	return func(c C, tail Next) error {
		d := newDispatcher(frozen, c, tail)
		return d.dispatch(0)
	}, nil
}

// MustCompose is like Compose but panics if the stack is invalid.
func MustCompose[C any](stack ...Middleware[C]) Pipeline[C] {
	p, err := Compose(stack...)
	if err != nil {
		panic(err)
	}
	return p
}

// FromValues composes a stack given as an untyped slice or array. Elements
// may be a Middleware, a plain func with the same signature, a Handler or
// another Pipeline. Anything else is rejected with ErrInvalidArgument.
func FromValues[C any](stack any) (Pipeline[C], error) {
	if typed, ok := stack.([]Middleware[C]); ok {
		return Compose(typed...)
	}

	v := reflect.ValueOf(stack)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return nil, notAList()
	}

	mws := make([]Middleware[C], v.Len())
	for i := range mws {
		mw, ok := asMiddleware[C](v.Index(i).Interface())
		if !ok {
			return nil, notCallable(i)
		}
		mws[i] = mw
	}
	return Compose(mws...)
}

func asMiddleware[C any](v any) (Middleware[C], bool) {
	switch fn := v.(type) {
	case Middleware[C]:
		return fn, fn != nil
	case func(C, Next) error:
		return fn, fn != nil
	case func(C, func() error) error:
		if fn == nil {
			return nil, false
		}
		return func(c C, next Next) error { return fn(c, next) }, true
	case Pipeline[C]:
		if fn == nil {
			return nil, false
		}
		return fn.Middleware(), true
	case Handler[C]:
		if isNilValue(fn) {
			return nil, false
		}
		return fn.Handle, true
	default:
		return nil, false
	}
}

// isNilValue reports whether v holds a typed nil, which still satisfies an
// interface but panics once called.
func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Interface, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Run invokes the pipeline without a tail.
func (p Pipeline[C]) Run(c C) error {
	return p(c, nil)
}

// Go invokes the pipeline on a new goroutine. The returned channel receives
// the invocation's result and is then closed.
func (p Pipeline[C]) Go(c C, tail Next) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- p(c, tail)
	}()
	return done
}

// Middleware exposes the pipeline as a single stage of another pipeline.
// The outer continuation becomes the inner tail.
func (p Pipeline[C]) Middleware() Middleware[C] {
	return func(c C, next Next) error {
		return p(c, next)
	}
}

// Bind returns an endpoint that runs the pipeline with endpoint as tail.
func (p Pipeline[C]) Bind(endpoint Endpoint[C]) Endpoint[C] {
	return func(c C) error {
		if endpoint == nil {
			return p(c, nil)
		}
		return p(c, func() error { return endpoint(c) })
	}
}

// Chain composes stages into one stage. Chain(m1, m2, m3) runs m1, then m2,
// then m3 before handing over to whatever follows it. It panics on a nil
// stage.
func Chain[C any](stack ...Middleware[C]) Middleware[C] {
	return MustCompose(stack...).Middleware()
}

// Decorate adapts a wrapper-style middleware into a stage.
func Decorate[C any](wrap func(Endpoint[C]) Endpoint[C]) Middleware[C] {
	return func(c C, next Next) error {
		return wrap(func(C) error { return next() })(c)
	}
}
