package dispatch

import (
	"errors"
	"fmt"

	"tripdispatch/internal/store"
)

// Kind classifies a dispatch failure for callers that map errors to responses.
type Kind string

const (
	ValidationError Kind = "validation"
	NotFoundError   Kind = "not_found"
	ForbiddenError  Kind = "forbidden"
	ConflictError   Kind = "conflict"
	TransientError  Kind = "transient"
)

// Error is returned for every rule violation the service detects.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *Error   { return newError(ValidationError, format, args...) }
func notFound(format string, args ...any) *Error  { return newError(NotFoundError, format, args...) }
func forbidden(format string, args ...any) *Error { return newError(ForbiddenError, format, args...) }
func conflict(format string, args ...any) *Error  { return newError(ConflictError, format, args...) }

// KindOf reports the kind of err. Store sentinels are classified too; any
// other error yields the empty kind and should be treated as internal.
func KindOf(err error) Kind {
	var de *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return de.Kind
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError
	case errors.Is(err, store.ErrConflict):
		return ConflictError
	case errors.Is(err, store.ErrTransient):
		return TransientError
	}
	return ""
}

// classify converts store sentinels into *Error, leaving *Error and unknown errors alone.
func classify(err error) error {
	var de *Error
	if err == nil || errors.As(err, &de) {
		return err
	}
	switch KindOf(err) {
	case NotFoundError:
		return &Error{Kind: NotFoundError, Message: "not found", Err: err}
	case ConflictError:
		return &Error{Kind: ConflictError, Message: "conflicts with an existing record", Err: err}
	case TransientError:
		return &Error{Kind: TransientError, Message: "storage busy, retry the request", Err: err}
	}
	return err
}
