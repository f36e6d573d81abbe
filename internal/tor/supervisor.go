package tor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Supervisor defaults.
const (
	DefaultPort             = 9050
	DefaultReadinessTimeout = 45 * time.Second
	DefaultPollInterval     = 250 * time.Millisecond

	// stopWait bounds how long Stop waits for a killed process to be reaped.
	stopWait = 5 * time.Second
)

// ErrDataDirectory is returned when the data directory cannot be created.
var ErrDataDirectory = errors.New("cannot create tor data directory")

// State is the lifecycle state of the anonymity process.
type State int

const (
	// StateStopped means no process is supervised and nothing was adopted.
	StateStopped State = iota
	// StateStarting means a start attempt is in flight.
	StateStarting
	// StateReady means the SOCKS port accepts connections.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = StateStopped
	case "starting":
		*s = StateStarting
	case "ready":
		*s = StateReady
	default:
		return fmt.Errorf("unknown tor state %q", text)
	}
	return nil
}

// Status is a snapshot of the supervisor.
type Status struct {
	State   State  `json:"state"`
	Port    int    `json:"port"`
	DataDir string `json:"dataDir"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	// Adopted is true when an already running listener was taken over.
	Adopted bool `json:"adopted"`
	// Embedded is true when the tornago backend is used.
	Embedded bool `json:"embedded"`
	// PID is the spawned process id, 0 when none.
	PID int `json:"pid,omitempty"`
}

// startAttempt is one in-flight StartAndWait. Concurrent callers attach
// their progress callbacks to it and wait on done.
type startAttempt struct {
	done     chan struct{}
	err      error
	aborted  bool
	watchers []ProgressFunc
}

// Supervisor owns the lifecycle of one tor process. It is the only
// process-wide singleton: browser.New creates it and Browser.Shutdown stops
// it, and every Tor-routed container shares its SOCKS endpoint.
type Supervisor struct {
	mu      sync.Mutex
	state   State
	adopted bool
	cmd     *exec.Cmd
	exited  chan struct{}
	attempt *startAttempt
	percent int
	message string

	host             string
	port             int
	dataDir          string
	binary           string
	resourcesDir     string
	vendorDir        string
	goos             string
	readinessTimeout time.Duration
	pollInterval     time.Duration
	lookPath         func(string) (string, error)
	embeddedOpts     []EmbeddedTorOption
	useEmbedded      bool
	embedded         *EmbeddedTor
	onExit           func(error)
	logger           *slog.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithPort sets the SOCKS port. Default 9050.
func WithPort(port int) SupervisorOption {
	return func(s *Supervisor) { s.port = port }
}

// WithDataDir sets the directory passed as --DataDirectory.
func WithDataDir(dir string) SupervisorOption {
	return func(s *Supervisor) { s.dataDir = dir }
}

// WithReadinessTimeout bounds StartAndWait. Default 45s.
func WithReadinessTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.readinessTimeout = d }
}

// WithPollInterval sets the delay between readiness connects. Default 250ms.
func WithPollInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.pollInterval = d }
}

// WithBinary sets a binary path or name that is tried before the bundled
// and vendor locations.
func WithBinary(path string) SupervisorOption {
	return func(s *Supervisor) { s.binary = path }
}

// WithResourcesDir sets the packaged resources directory searched for
// tor/<platform>/tor.
func WithResourcesDir(dir string) SupervisorOption {
	return func(s *Supervisor) { s.resourcesDir = dir }
}

// WithVendorDir sets the development vendor directory searched for
// tor/<platform>/tor.
func WithVendorDir(dir string) SupervisorOption {
	return func(s *Supervisor) { s.vendorDir = dir }
}

// WithEmbedded launches Tor through tornago instead of spawning a binary.
func WithEmbedded(opts ...EmbeddedTorOption) SupervisorOption {
	return func(s *Supervisor) {
		s.useEmbedded = true
		s.embeddedOpts = opts
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

// WithOnExit registers fn to be called when a process that reached Ready
// exits without Stop. fn receives a *ProcessError wrapping ErrProcessExited
// and runs on the watcher goroutine.
func WithOnExit(fn func(error)) SupervisorOption {
	return func(s *Supervisor) { s.onExit = fn }
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		host:             "127.0.0.1",
		port:             DefaultPort,
		dataDir:          filepath.Join(os.TempDir(), "unseen-tor-data"),
		goos:             runtime.GOOS,
		readinessTimeout: DefaultReadinessTimeout,
		pollInterval:     DefaultPollInterval,
		lookPath:         exec.LookPath,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.useEmbedded {
		s.embedded = NewEmbeddedTor(s.SocksAddr(), s.embeddedOpts...)
	}
	return s
}

// Port returns the SOCKS port.
func (s *Supervisor) Port() int {
	return s.port
}

// SocksAddr returns the SOCKS listener address, host:port.
func (s *Supervisor) SocksAddr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// ProxyURL returns the proxy URL sessions are configured with.
func (s *Supervisor) ProxyURL() string {
	return "socks5://" + s.SocksAddr()
}

// IsRunning reports whether a start is in flight, a process is supervised
// or a listener was adopted.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateStopped || s.cmd != nil
}

// IsReady reports whether the SOCKS port is usable.
func (s *Supervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

// Status returns a snapshot without touching the network.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state,
		Port:     s.port,
		DataDir:  s.dataDir,
		Percent:  s.percent,
		Message:  s.message,
		Adopted:  s.adopted,
		Embedded: s.embedded != nil,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	return st
}

// StartAndWait brings the process up and returns once the SOCKS port
// accepts connections. An existing listener on the port is adopted without
// spawning anything. Calling it while Ready returns at once; calling it
// while another start is in flight waits for that attempt. Every failure is
// a *ProcessError.
func (s *Supervisor) StartAndWait(ctx context.Context, onProgress ProgressFunc) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		msg := "done"
		if s.adopted {
			msg = "existing tor"
		}
		s.mu.Unlock()
		onProgress.report(100, msg)
		return nil
	case StateStarting:
		att := s.attempt
		att.watchers = append(att.watchers, onProgress)
		s.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return &ProcessError{Op: "wait", Err: fmt.Errorf("%w: %w", ErrStartAborted, ctx.Err())}
		}
	}

	att := &startAttempt{done: make(chan struct{}), watchers: []ProgressFunc{onProgress}}
	s.attempt = att
	s.state = StateStarting
	s.adopted = false
	s.percent, s.message = 0, ""
	s.mu.Unlock()

	err := s.start(ctx, att)

	s.mu.Lock()
	if s.attempt == att {
		if err != nil && s.state == StateStarting {
			s.state = StateStopped
		}
		s.attempt = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("tor start failed", "error", err)
	}
	att.err = err
	close(att.done)
	return err
}

func (s *Supervisor) start(ctx context.Context, att *startAttempt) error {
	addr := s.SocksAddr()
	if isPortOpen(ctx, addr, adoptCheckTimeout) {
		s.mu.Lock()
		if !s.current(att) {
			s.mu.Unlock()
			return s.pendingErr(att, "")
		}
		s.state = StateReady
		s.adopted = true
		s.mu.Unlock()
		s.logger.Info("adopted existing tor listener", "addr", addr)
		s.report(100, "existing tor")
		return nil
	}

	if s.embedded != nil {
		return s.startEmbedded(ctx, att)
	}
	return s.spawn(ctx, att)
}

func (s *Supervisor) spawn(ctx context.Context, att *startAttempt) error {
	bin, isPath, err := s.resolveBinary()
	if err != nil {
		return &ProcessError{Op: "resolve", Err: err}
	}

	env := os.Environ()
	if isPath {
		if err := validateBinary(bin, s.goos); err != nil {
			return &ProcessError{Op: "validate", Binary: bin, Err: err}
		}
		env = libraryPathEnv(s.goos, env, filepath.Dir(bin))
	}

	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		return &ProcessError{Op: "spawn", Binary: bin, Err: fmt.Errorf("%w: %w", ErrDataDirectory, err)}
	}

	cmd := exec.Command(bin, s.args()...) //nolint:gosec // binary comes from configuration or fixed locations
	cmd.Env = env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Op: "spawn", Binary: bin, Err: fmt.Errorf("%w: %w", ErrBinaryNotExecutable, err)}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessError{Op: "spawn", Binary: bin, Err: fmt.Errorf("%w: %w", ErrBinaryNotExecutable, err)}
	}

	exited := make(chan struct{})
	s.mu.Lock()
	owned := s.current(att)
	if owned {
		s.cmd = cmd
		s.exited = exited
	}
	s.mu.Unlock()

	go s.watch(cmd, stdout, exited)

	if !owned {
		_ = cmd.Process.Kill() //nolint:errcheck // reaped by watch
		return s.pendingErr(att, bin)
	}

	s.logger.Info("tor spawned", "binary", bin, "pid", cmd.Process.Pid, "port", s.port)
	return s.waitReady(ctx, att, cmd, exited)
}

// waitReady polls the SOCKS port until it accepts a connection. The
// reported bootstrap percent is not consulted.
func (s *Supervisor) waitReady(ctx context.Context, att *startAttempt, cmd *exec.Cmd, exited <-chan struct{}) error {
	addr := s.SocksAddr()
	deadline := time.NewTimer(s.readinessTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if isPortOpen(ctx, addr, s.pollInterval) {
			s.mu.Lock()
			if !s.current(att) || s.cmd != cmd {
				s.mu.Unlock()
				return s.pendingErr(att, cmd.Path)
			}
			s.state = StateReady
			s.mu.Unlock()
			s.logger.Info("tor ready", "addr", addr)
			s.report(100, "done")
			return nil
		}

		select {
		case <-exited:
			return s.pendingErr(att, cmd.Path)
		case <-deadline.C:
			s.kill(cmd, exited)
			return &ProcessError{Op: "wait", Binary: cmd.Path,
				Err: fmt.Errorf("%w after %s", ErrReadinessTimeout, s.readinessTimeout)}
		case <-ctx.Done():
			s.kill(cmd, exited)
			return &ProcessError{Op: "wait", Binary: cmd.Path,
				Err: fmt.Errorf("%w: %w", ErrStartAborted, ctx.Err())}
		case <-ticker.C:
		}

		s.mu.Lock()
		cur := s.current(att)
		s.mu.Unlock()
		if !cur {
			return s.pendingErr(att, cmd.Path)
		}
	}
}

func (s *Supervisor) startEmbedded(ctx context.Context, att *startAttempt) error {
	s.report(0, "starting embedded tor")
	if err := s.embedded.Start(ctx); err != nil {
		return &ProcessError{Op: "spawn", Binary: "tornago", Err: fmt.Errorf("%w: %w", ErrEmbeddedStart, err)}
	}

	s.mu.Lock()
	if !s.current(att) {
		s.mu.Unlock()
		_ = s.embedded.Stop() //nolint:errcheck // start was aborted
		return s.pendingErr(att, "tornago")
	}
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Info("embedded tor ready",
		"socksAddr", s.embedded.SocksAddr(),
		"controlAddr", s.embedded.ControlAddr(),
		"dataDir", s.embedded.DataDir(),
	)
	s.report(100, "done")
	return nil
}

// watch forwards bootstrap lines and reverts the state once the process
// exits. The exit only counts if cmd is still the supervised process.
func (s *Supervisor) watch(cmd *exec.Cmd, stdout io.Reader, exited chan struct{}) {
	defer close(exited)

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := sc.Text()
		s.logger.Debug("tor output", "line", line)
		pct, msg, ok := ParseBootstrapLine(line)
		if !ok {
			continue
		}
		s.mu.Lock()
		own := s.cmd == cmd
		s.mu.Unlock()
		if own {
			s.report(pct, msg)
		}
	}

	err := cmd.Wait()

	s.mu.Lock()
	wasReady := false
	if s.cmd == cmd {
		wasReady = s.state == StateReady
		s.cmd = nil
		s.exited = nil
		s.state = StateStopped
		s.adopted = false
	}
	onExit := s.onExit
	s.mu.Unlock()

	if !wasReady {
		s.logger.Info("tor exited", "pid", cmd.Process.Pid, "error", err)
		return
	}
	s.logger.Warn("tor exited while ready", "pid", cmd.Process.Pid, "error", err)
	if onExit != nil {
		cause := ErrProcessExited
		if err != nil {
			cause = fmt.Errorf("%w: %w", ErrProcessExited, err)
		}
		onExit(&ProcessError{Op: "run", Binary: cmd.Path, Err: cause})
	}
}

// Stop kills the supervised process and forgets an adopted listener. A
// pending start observes the stop on its next poll. Stop is idempotent.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.cmd, s.exited = nil, nil
	if s.attempt != nil {
		s.attempt.aborted = true
	}
	s.state = StateStopped
	s.adopted = false
	s.mu.Unlock()

	var err error
	if s.embedded != nil {
		err = s.embedded.Stop()
	}
	if cmd != nil {
		if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = errors.Join(err, kerr)
		}
		waitExit(exited)
		s.logger.Info("tor stopped", "pid", cmd.Process.Pid)
	}
	return err
}

// kill terminates cmd after a failed start.
func (s *Supervisor) kill(cmd *exec.Cmd, exited <-chan struct{}) {
	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd, s.exited = nil, nil
		s.state = StateStopped
	}
	s.mu.Unlock()

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to kill tor", "pid", cmd.Process.Pid, "error", err)
	}
	waitExit(exited)
}

func waitExit(exited <-chan struct{}) {
	if exited == nil {
		return
	}
	select {
	case <-exited:
	case <-time.After(stopWait):
	}
}

// current reports whether att is still the live start. Callers hold mu.
func (s *Supervisor) current(att *startAttempt) bool {
	return s.attempt == att && !att.aborted && s.state == StateStarting
}

// pendingErr explains why a pending start lost its process: an explicit
// Stop, or the process exiting by itself.
func (s *Supervisor) pendingErr(att *startAttempt, bin string) error {
	s.mu.Lock()
	aborted := att.aborted
	s.mu.Unlock()
	if aborted {
		return &ProcessError{Op: "wait", Binary: bin, Err: ErrStartAborted}
	}
	return &ProcessError{Op: "wait", Binary: bin, Err: ErrUnexpectedExit}
}

// report records progress and forwards it to the callbacks of the pending
// start. Outside a start only the recorded values change.
func (s *Supervisor) report(percent int, message string) {
	s.mu.Lock()
	s.percent, s.message = percent, message
	var watchers []ProgressFunc
	if s.attempt != nil && !s.attempt.aborted {
		watchers = append(watchers, s.attempt.watchers...)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w.report(percent, message)
	}
}

// args are the fixed command-line arguments: client isolation by SOCKS
// credentials, no exit relaying and notice logs on stdout for progress.
func (s *Supervisor) args() []string {
	return []string{
		"--DataDirectory", s.dataDir,
		"--SocksPort", strconv.Itoa(s.port) + " IsolateSOCKSAuth",
		"--ExitPolicy", "reject *:*",
		"--ClientUseIPv6", "1",
		"--Log", "notice stdout",
	}
}
