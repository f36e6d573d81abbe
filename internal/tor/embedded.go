package tor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// EmbeddedTor launches Tor through tornago instead of spawning a binary the
// supervisor found itself. tornago blocks until the daemon has bootstrapped,
// so there is no per-line progress; the supervisor reports start and done.
type EmbeddedTor struct {
	mu             sync.Mutex
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an embedded Tor backend listening on socksAddr.
// The supervisor's fixed SOCKS address is passed here so that sessions do
// not care which backend produced the proxy.
func NewEmbeddedTor(socksAddr string, opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		socksAddr:      socksAddr,
		startupTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon and blocks until it has bootstrapped. The
// context is checked once the launch returns because tornago itself cannot
// be interrupted; a cancelled start stops the fresh daemon again.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(e.socksAddr),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return err
	}

	e.mu.Lock()
	e.process = process
	e.mu.Unlock()
	return nil
}

// Stop shuts the daemon down. It is safe to call on an unstarted or
// already stopped instance.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	process := e.process
	e.process = nil
	e.mu.Unlock()

	if process == nil {
		return nil
	}
	return process.Stop()
}

// SocksAddr returns the SOCKS address the daemon was asked to listen on.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return ""
	}
	return e.process.ControlAddr()
}

// DataDir returns the daemon's data directory, or "" when not running.
func (e *EmbeddedTor) DataDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return ""
	}
	return e.process.DataDir()
}

// IsRunning reports whether the daemon was started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process != nil
}
