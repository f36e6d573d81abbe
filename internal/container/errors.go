package container

import "errors"

var (
	// ErrInvalidName is returned for an empty container name.
	ErrInvalidName = errors.New("invalid container name: must not be empty")

	// ErrUnknownContainer is returned when a container has not been created.
	ErrUnknownContainer = errors.New("unknown container")
)
