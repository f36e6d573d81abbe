package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownContainer is recorded when the probed container does not exist.
	ErrUnknownContainer = errors.New("unknown container")
	// ErrUnexpectedResponse is recorded when an endpoint answers with a body
	// the prober does not understand.
	ErrUnexpectedResponse = errors.New("unexpected response shape")
	// ErrHTTPStatus is recorded when an endpoint answers with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// Error describes which probe step failed.
type Error struct {
	Step string
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s probe %s: %v", e.Step, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
