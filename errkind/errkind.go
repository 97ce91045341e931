// Package errkind classifies transport-core errors into the five kinds
// named in the error handling design: recoverable transport errors,
// recoverable codec errors, reassembly failures, session errors, and
// fatal errors. Worker loops switch on Kind instead of matching error
// strings or sentinel values.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories from the error handling design.
type Kind uint8

const (
	// Transport marks a recoverable transport error: packet send
	// EAGAIN, transient connect refusal. Retried with backoff by the
	// network worker; surfaced only as statistics.
	Transport Kind = iota
	// Codec marks a recoverable codec error: deadline exceeded,
	// bitstream overflow on a single block. Raise QP and retry once.
	Codec
	// Reassembly marks an incomplete-frame or checksum-mismatch
	// failure at the receiver. Never fatal.
	Reassembly
	// Session marks an authentication failure, version mismatch, or
	// idle timeout. Closes the session and emits a status callback.
	Session
	// Fatal marks a configuration or construction error. The engine
	// is not started.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Codec:
		return "codec"
	case Reassembly:
		return "reassembly"
	case Session:
		return "session"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can branch on
// classification without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to Transport for unclassified errors since that is
// the most conservative (retry-and-continue) treatment.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}
