// Package compose turns an ordered stack of middleware into one pipeline
// that runs them in sequence over a shared value.
//
// Each stage receives the shared value and a continuation. Calling the
// continuation runs every stage after it and returns their combined result,
// so code placed before the call runs on the way in and code placed after it
// runs on the way out:
//
//	p, err := compose.Compose(
//	    func(c *State, next compose.Next) error {
//	        c.Log("a-before")
//	        err := next()
//	        c.Log("a-after")
//	        return err
//	    },
//	    func(c *State, next compose.Next) error {
//	        c.Log("b")
//	        return nil // stops the chain here
//	    },
//	)
//	err = p(state, nil)
//
// # Invocations
//
// A Pipeline is immutable and may be invoked any number of times, including
// concurrently. Every invocation owns a private cursor. Calling a
// continuation a second time within one invocation fails that call with
// ErrDoubleInvocation.
//
// The tail passed to an invocation runs once every stage has called next.
// A nil tail ends the invocation successfully.
//
// # Failures
//
// Errors returned by stages travel back up unchanged through every waiting
// next call. A panic inside a stage is recovered and returned the same way:
// a panic carrying an error surfaces as that error, any other value as a
// *PanicError.
package compose
