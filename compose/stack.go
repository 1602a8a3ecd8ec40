package compose

// Stack provides a fluent API for building a middleware stack.
type Stack[C any] struct {
	middlewares []Middleware[C]
}

// Use creates a new stack starting with the given middleware.
func Use[C any](middlewares ...Middleware[C]) *Stack[C] {
	return &Stack[C]{
		middlewares: append([]Middleware[C](nil), middlewares...),
	}
}

// Append adds middleware to the end of the stack and returns the stack.
func (s *Stack[C]) Append(middlewares ...Middleware[C]) *Stack[C] {
	s.middlewares = append(s.middlewares, middlewares...)
	return s
}

// Len returns the number of stages.
func (s *Stack[C]) Len() int {
	return len(s.middlewares)
}

// Compose validates the stack and returns its pipeline. Appending to the
// stack afterwards does not change pipelines already composed.
func (s *Stack[C]) Compose() (Pipeline[C], error) {
	return Compose(s.middlewares...)
}

// Then composes the stack and binds endpoint as its tail.
func (s *Stack[C]) Then(endpoint Endpoint[C]) (Endpoint[C], error) {
	p, err := s.Compose()
	if err != nil {
		return nil, err
	}
	return p.Bind(endpoint), nil
}
