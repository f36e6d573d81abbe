package page

import "errors"

var (
	// ErrEmptyInput is returned when the address bar input is blank.
	ErrEmptyInput = errors.New("empty navigation input")
	// ErrUnknownPage is returned for an id that names no open page.
	ErrUnknownPage = errors.New("unknown page")
	// ErrNoActivePage is returned when an operation targets the active page
	// and none is open.
	ErrNoActivePage = errors.New("no active page")
	// ErrNoHistory is returned when there is no history entry to move to.
	ErrNoHistory = errors.New("no history entry in that direction")
	// ErrOnionWithoutTor is returned for .onion navigation in a container
	// without Tor. Resolving the name outside Tor would leak it to DNS.
	ErrOnionWithoutTor = errors.New("onion addresses need a container with Tor enabled")
	// ErrUnsupportedScheme is returned for URLs the loader cannot fetch.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)
