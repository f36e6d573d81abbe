package routing

import "errors"

var (
	// ErrStartThrottled is returned when Tor start attempts come faster than
	// the retry policy allows.
	ErrStartThrottled = errors.New("tor start throttled: too many attempts")

	// ErrUnknownContainer is reported when routing is applied to a container
	// that has not been created.
	ErrUnknownContainer = errors.New("unknown container")
)
