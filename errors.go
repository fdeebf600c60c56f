package ariesk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error into one of a small fixed set: InvalidInput,
// ParameterMismatch, StorageError, ProtocolError, NotFound.
type Kind int

const (
	// InvalidInput covers malformed k-mers, too-short sequences, and
	// rotation-artifact shape mismatches. The offending record is the
	// caller's to skip; it is never fatal for a bulk loader.
	InvalidInput Kind = iota
	// ParameterMismatch is raised when two databases disagree on k, D,
	// or box_side during a merge. Fatal for the operation.
	ParameterMismatch
	// StorageError wraps an underlying I/O or relational failure.
	StorageError
	// ProtocolError covers malformed JSON or a missing required field
	// on the server socket.
	ProtocolError
	// NotFound means a query asked for a centroid or contig id that
	// does not exist. Empty result for search, error for introspection.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case ParameterMismatch:
		return "ParameterMismatch"
	case StorageError:
		return "StorageError"
	case ProtocolError:
		return "ProtocolError"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every AriesK package. It carries a
// Kind so callers can branch on errors.As without parsing message text.
type Error struct {
	Kind Kind
	msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given Kind, wrapping cause (if non-nil)
// with a stack trace via github.com/pkg/errors so diagnostics carry the
// same provenance the teacher's bio packages attach to storage failures.
func Errorf(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, msg: msg, Err: cause}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
