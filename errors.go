package streams

import "fmt"

// TypeError reports misuse of the public surface: a method invoked on the
// wrong kind of object, on a released reader/writer, or on a locked stream
// from a path that requires it to be unlocked.
type TypeError struct {
	Cause   error
	Message string
}

func (e *TypeError) Error() string {
	if e.Message == "" {
		return "streams: type error"
	}
	return e.Message
}

func (e *TypeError) Unwrap() error { return e.Cause }

func newTypeError(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// RangeError reports a high-water mark or chunk size outside its allowed
// domain (negative, NaN, or infinite), or an invalid type/mode argument.
type RangeError struct {
	Cause   error
	Message string
}

func (e *RangeError) Error() string {
	if e.Message == "" {
		return "streams: range error"
	}
	return e.Message
}

func (e *RangeError) Unwrap() error { return e.Cause }

func newRangeError(format string, args ...any) *RangeError {
	return &RangeError{Message: fmt.Sprintf(format, args...)}
}

// StateError reports an operation forbidden by the current lifecycle state
// of a stream: closing or enqueueing when already closed, close-requested,
// errored, or erroring.
//
// Same shape as [TypeError]/[RangeError]; kept as a distinct type so callers
// can distinguish "you used this wrong" from "you can't do that right now"
// via errors.As.
type StateError struct {
	Cause   error
	Message string
}

func (e *StateError) Error() string {
	if e.Message == "" {
		return "streams: invalid state"
	}
	return e.Message
}

func (e *StateError) Unwrap() error { return e.Cause }

func newStateError(format string, args ...any) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an error with a message and optional cause chain.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
