package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidTorPort is returned when the SOCKS port is outside 1-65535.
	ErrInvalidTorPort = errors.New("invalid tor port: must be between 1 and 65535")

	// ErrInvalidTorBackend is returned for an unknown tor.backend value.
	ErrInvalidTorBackend = errors.New("invalid tor backend: must be \"spawn\" or \"embedded\"")

	// ErrInvalidReadinessTimeout is returned when the readiness timeout is not positive.
	ErrInvalidReadinessTimeout = errors.New("invalid readiness timeout: must be positive")

	// ErrInvalidPollInterval is returned when the poll interval is not positive
	// or longer than the readiness timeout.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be positive and not exceed the readiness timeout")

	// ErrInvalidRetryPolicy is returned when the start throttle cannot admit any attempt.
	ErrInvalidRetryPolicy = errors.New("invalid start retry policy: burst and interval must be positive")

	// ErrInvalidProbeTimeout is returned when the probe timeout is not positive.
	ErrInvalidProbeTimeout = errors.New("invalid probe timeout: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrEmptyUserAgent is returned when no User-Agent is configured.
	ErrEmptyUserAgent = errors.New("user agent must not be empty")

	// ErrEmptyDataDir is returned when no data directory is configured.
	ErrEmptyDataDir = errors.New("data directory must not be empty")

	// ErrInvalidContainer is returned for a container entry without a name.
	ErrInvalidContainer = errors.New("invalid container: name must not be empty")

	// ErrDuplicateContainer is returned when two container entries share a name.
	ErrDuplicateContainer = errors.New("duplicate container name")
)
