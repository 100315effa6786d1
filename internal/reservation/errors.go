package reservation

import (
	"errors"
	"fmt"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// Error kinds returned by the service.  Store implementations wrap these
// sentinels so that errors.Is works across layers.
var (
	// ErrNotFound means the listing or booking does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the request is malformed.  Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrCapacityExceeded is the normal "no availability" outcome.  Never
	// retried.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrConflict means a concurrent writer won the race on the same
	// listing.  The service retries it a bounded number of times.
	ErrConflict = errors.New("conflict")
)

// Error carries an error kind plus a human readable reason.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Reason extracts the reason attached to err, or err's text when it is not
// an *Error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// classify maps errors coming out of the model into the service taxonomy.
// Errors that already carry a kind are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, model.ErrInvalid) {
		return &Error{Kind: ErrValidation, Reason: err.Error()}
	}
	return err
}
