// Package simerr defines the tagged error kinds the engine's components
// return at their boundaries, and the propagation helpers the Simulator
// uses to decide whether an error is locally recoverable or fatal.
package simerr

import "errors"

// Kind tags a sentinel error with the enumeration from the error-handling
// design: every component returns one of these (or wraps one) rather than
// an opaque error string.
type Kind string

const (
	KindInvalidTarget    Kind = "InvalidTarget"
	KindStructuralError  Kind = "StructuralError"
	KindModelLoadError   Kind = "ModelLoadError"
	KindUnitError        Kind = "UnitError"
	KindPartitionDiverged Kind = "PartitionDiverged"
	KindMinWindowReached Kind = "MinWindowReached"
	KindCacheError       Kind = "CacheError"
	KindUserAborted      Kind = "UserAborted"
	KindIOError          Kind = "IOError"
)

// Sentinel errors, one per kind, for errors.Is comparisons.
var (
	ErrInvalidTarget     = &Error{Kind: KindInvalidTarget, Msg: "invalid target"}
	ErrStructuralError   = &Error{Kind: KindStructuralError, Msg: "structural error"}
	ErrModelLoadError    = &Error{Kind: KindModelLoadError, Msg: "model load error"}
	ErrUnitError         = &Error{Kind: KindUnitError, Msg: "unit error"}
	ErrPartitionDiverged = &Error{Kind: KindPartitionDiverged, Msg: "partition diverged"}
	ErrMinWindowReached  = &Error{Kind: KindMinWindowReached, Msg: "minimum time window reached"}
	ErrCacheError        = &Error{Kind: KindCacheError, Msg: "cache error"}
	ErrUserAborted       = &Error{Kind: KindUserAborted, Msg: "user aborted"}
	ErrIOError           = &Error{Kind: KindIOError, Msg: "io error"}
)

// Error is a tagged error carrying the kind plus contextual fields
// (unit name, window index, iteration, partition index) so recovered
// errors can still be logged with full context per the propagation policy.
type Error struct {
	Kind      Kind
	Msg       string
	Unit      string
	Window    int
	Iteration int
	Partition int
	Wrapped   error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, simerr.ErrUnitError) to match any *Error with
// the same Kind, regardless of message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a tagged error with a message, wrapping an underlying cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Wrapped: cause}
}

// WithContext attaches unit/window/iteration/partition context used for
// logging when the error is recovered locally rather than propagated.
func (e *Error) WithContext(unit string, window, iteration, partition int) *Error {
	c := *e
	c.Unit = unit
	c.Window = window
	c.Iteration = iteration
	c.Partition = partition
	return &c
}

// Recoverable reports whether the propagation policy recovers this kind
// locally (InvalidTarget, CacheError) instead of aborting the simulation.
func Recoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindInvalidTarget || e.Kind == KindCacheError
}
