package tor

import (
	"errors"
	"fmt"
)

// Process lifecycle errors. Every failure of StartAndWait is a *ProcessError
// wrapping exactly one of these, so callers can branch with errors.Is and
// still get a single error kind to treat as "anonymity unavailable".
var (
	// ErrBinaryNotFound is returned when no tor binary exists at any
	// candidate location and the bare name is not on PATH.
	ErrBinaryNotFound = errors.New("tor binary not found")

	// ErrBinaryNotExecutable is returned when the resolved binary is a
	// directory, lacks execute permission, or cannot be started.
	ErrBinaryNotExecutable = errors.New("tor binary is not executable")

	// ErrReadinessTimeout is returned when the SOCKS port does not accept
	// connections within the readiness timeout.
	ErrReadinessTimeout = errors.New("timeout waiting for tor socks port")

	// ErrUnexpectedExit is returned when the process exits before the
	// SOCKS port opened.
	ErrUnexpectedExit = errors.New("tor exited during bootstrap")

	// ErrProcessExited is passed to the exit hook when a ready process
	// goes away.
	ErrProcessExited = errors.New("tor exited")

	// ErrStartAborted is returned to a pending start when Stop is called.
	ErrStartAborted = errors.New("tor start aborted by stop")

	// ErrEmbeddedStart is returned when the embedded daemon fails to launch.
	ErrEmbeddedStart = errors.New("embedded tor failed to start")
)

// ProcessError reports a failed attempt to bring the anonymity process up.
type ProcessError struct {
	// Op is the step that failed: "resolve", "validate", "spawn", "wait"
	// or "run" for a process that died after becoming ready.
	Op string
	// Binary is the binary path or name involved, if any.
	Binary string
	// Err is one of the sentinel errors above, possibly wrapping a cause.
	Err error
}

func (e *ProcessError) Error() string {
	if e.Binary != "" {
		return fmt.Sprintf("tor %s %s: %v", e.Op, e.Binary, e.Err)
	}
	return fmt.Sprintf("tor %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Tor connectivity errors, returned by ProxyStatus.Error.
var (
	// ErrProxyNotTor is returned when the address answers but does not speak
	// SOCKS5 the way Tor does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection can be made.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the handshake times out.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when the proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// ProxyStatus is the result of a SOCKS5 handshake check.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota
	// ProxyStatusWrongType indicates the listener is not a Tor proxy.
	ProxyStatusWrongType
	// ProxyStatusCannotConnect indicates nothing listens on the address.
	ProxyStatusCannotConnect
	// ProxyStatusTimeout indicates the handshake timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
