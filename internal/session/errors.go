package session

import "errors"

var (
	// ErrBlocked is returned for requests an interceptor cancelled.
	ErrBlocked = errors.New("request blocked")

	// ErrInvalidProxy is returned for a proxy configuration that cannot be applied.
	ErrInvalidProxy = errors.New("invalid proxy configuration")

	// ErrDestroyed is returned for requests on a destroyed ephemeral session.
	ErrDestroyed = errors.New("session destroyed")
)
