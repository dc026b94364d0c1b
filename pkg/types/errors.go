package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the outcome of a remote call so callers can decide
// whether an error is really a failure
type ErrorKind string

const (
	// ErrorKindTransient covers timeouts, 5xx responses and connection errors
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindConflict means the record already exists or is already claimed
	ErrorKindConflict ErrorKind = "conflict"
	// ErrorKindNotFound means there is nothing left to act on
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindInvalid means the input itself is malformed
	ErrorKindInvalid ErrorKind = "invalid"
)

// Error is a classified error returned by gateways, registries and ledgers
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that produced it
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Unclassified errors are transient; nil has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindTransient
}

// IsKind reports whether err is of any of the given kinds
func IsKind(err error, kinds ...ErrorKind) bool {
	k := KindOf(err)
	if k == "" {
		return false
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
