package compose

import "sync/atomic"

// dispatcher drives one pipeline invocation. It is never shared between
// invocations.
type dispatcher[C any] struct {
	stack []Middleware[C]
	c     C
	tail  Next

	// cursor is the highest index dispatched so far.
	cursor atomic.Int64
}

func newDispatcher[C any](stack []Middleware[C], c C, tail Next) *dispatcher[C] {
	d := &dispatcher[C]{stack: stack, c: c, tail: tail}
	d.cursor.Store(-1)
	return d
}

// advance moves the cursor to i. It reports false if the cursor already
// reached i, which means a continuation ran twice.
func (d *dispatcher[C]) advance(i int) bool {
	for {
		cur := d.cursor.Load()
		if int64(i) <= cur {
			return false
		}
		if d.cursor.CompareAndSwap(cur, int64(i)) {
			return true
		}
	}
}

func (d *dispatcher[C]) dispatch(i int) (err error) {
	if !d.advance(i) {
		return calledTwice(i - 1)
	}

	var stage Next
	switch {
	case i < len(d.stack):
		mw := d.stack[i]
		stage = func() error {
			return mw(d.c, func() error { return d.dispatch(i + 1) })
		}
	case d.tail != nil:
		stage = d.tail
	default:
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return stage()
}
