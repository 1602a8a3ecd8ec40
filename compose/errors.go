package compose

import (
	"fmt"
	"runtime/debug"
)

// Code classifies errors produced by the composer and dispatcher.
type Code int

const (
	// CodeInvalidArgument reports a malformed stack at composition time.
	CodeInvalidArgument Code = iota + 1
	// CodeDoubleInvocation reports a continuation called more than once.
	CodeDoubleInvocation
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeDoubleInvocation:
		return "double invocation"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is returned for misuse of the composer or of a continuation.
type Error struct {
	Code    Code
	Message string
	// Index is the stack position the error concerns, or -1. For a
	// double invocation it names the stage that owns the continuation,
	// which is not necessarily the stage that called it: a stage deeper in
	// the stack may call a continuation it was handed by an earlier one.
	Index int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("compose: %s (index %d)", e.Message, e.Index)
	}
	return "compose: " + e.Message
}

// Is implements errors.Is comparison by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument, Message: "invalid argument", Index: -1}
	ErrDoubleInvocation = &Error{Code: CodeDoubleInvocation, Message: "next() called multiple times", Index: -1}
)

func notAList() *Error {
	return &Error{Code: CodeInvalidArgument, Message: "stack must be a list", Index: -1}
}

func notCallable(i int) *Error {
	return &Error{Code: CodeInvalidArgument, Message: "stack must be composed of callables", Index: i}
}

// calledTwice reports that the continuation handed to stage ran again.
func calledTwice(stage int) *Error {
	return &Error{Code: CodeDoubleInvocation, Message: "next() called multiple times", Index: stage}
}

// PanicError carries a recovered panic whose value was not an error.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the formatted panic value.
func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}

// recovered converts a recovered panic value into the error the stage
// would have returned.
func recovered(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}
