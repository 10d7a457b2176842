// Package brainyerr defines brainy's typed error taxonomy. Every
// externally visible operation returns either a typed result or a single
// *Error carrying a Kind, a message, and free-form context, so callers can
// branch on Kind instead of parsing strings.
package brainyerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories an operation can surface.
type Kind int

const (
	// InvalidArgument covers dimension mismatches, malformed predicates,
	// role collisions, and bad cursors. Never retried.
	InvalidArgument Kind = iota
	// NotFound means the referenced id does not exist. Never retried.
	NotFound
	// StorageFailure is a transient remote-storage error. Retried per
	// the caller's retry policy, surfaced only after exhaustion.
	StorageFailure
	// ConcurrencyConflict means a write lost an optimistic version
	// check. Retried once internally, then surfaced.
	ConcurrencyConflict
	// ConsensusTimeout means the leader was unreachable or a migration
	// did not commit. Surfaced; the caller decides whether to retry.
	ConsensusTimeout
	// ModeViolation covers writes on read-only instances, searches on
	// write-only instances, or any write on a frozen instance.
	ModeViolation
	// Timeout means a query exceeded its budget. Surfaced along with
	// any partial results collected so far.
	Timeout
	// Fatal means a data-integrity violation was detected (e.g. HNSW
	// graph corruption). The node should refuse further writes.
	Fatal
)

// String renders a Kind the way it appears in logs and JSON error bodies.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case StorageFailure:
		return "StorageFailure"
	case ConcurrencyConflict:
		return "ConcurrencyConflict"
	case ConsensusTimeout:
		return "ConsensusTimeout"
	case ModeViolation:
		return "ModeViolation"
	case Timeout:
		return "Timeout"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Retryable reports whether operations of this kind are worth retrying at
// all (StorageFailure and ConcurrencyConflict only; the rest are terminal
// for the current attempt).
func (k Kind) Retryable() bool {
	return k == StorageFailure || k == ConcurrencyConflict
}

// Error is brainy's single error type. Context carries structured detail
// (shard id, noun id, cursor value, etc.) useful for logging without
// being baked into Message.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext returns a copy of e with the given key/value merged into
// its Context map.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and
// reports false otherwise.
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}
