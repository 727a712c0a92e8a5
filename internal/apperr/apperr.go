// Package apperr defines the error kinds returned by the task engine.
//
// Access failures are ordinary error values. Callers classify them with
// errors.Is / errors.As and render a message from Message.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when there is no resolved user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAccessDenied is returned both when the user lacks access and
	// when the target does not exist, so existence does not leak.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound is a store-level miss. Services convert it to
	// ErrAccessDenied before it reaches a caller.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed filter, sort or payload input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type internalError struct {
	op  string
	err error
}

func (e *internalError) Error() string { return e.op + ": " + e.err.Error() }
func (e *internalError) Unwrap() error { return e.err }

// Internal marks err as an unexpected store failure during op.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &internalError{op: op, err: err}
}

func IsInternal(err error) bool {
	var ie *internalError
	return errors.As(err, &ie)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// DenyMissing maps a store miss onto ErrAccessDenied and leaves other
// errors untouched.
func DenyMissing(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrAccessDenied
	}
	return err
}

// Message is the user-facing text for err. Anything unclassified is
// reported generically.
func Message(err error) string {
	var v *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "not authenticated"
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrNotFound):
		return "access denied"
	case errors.As(err, &v):
		return v.Error()
	default:
		return "internal error"
	}
}
