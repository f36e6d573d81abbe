package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHost is returned by Set for an empty host.
	ErrEmptyHost = errors.New("host must not be empty")

	// ErrUnknownCapability is returned for a capability other than media or geo.
	ErrUnknownCapability = errors.New("unknown capability: must be \"media\" or \"geo\"")
)

// ConfigError reports a permission store that could not be read. The
// arbiter recovers from it by starting empty.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("permission store %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
