package routing

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/log"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
	"github.com/nao1215/unseen/internal/tor"
)

// fakeTor stands in for the supervisor.
type fakeTor struct {
	mu       sync.Mutex
	calls    int
	stops    int
	ready    bool
	starting int
	startErr error
	progress []int
	block    chan struct{}
}

func (f *fakeTor) StartAndWait(ctx context.Context, onProgress tor.ProgressFunc) error {
	f.mu.Lock()
	f.calls++
	f.starting++
	err, progress, block := f.startErr, f.progress, f.block
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.starting--
		f.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, p := range progress {
		onProgress(p, "bootstrapping")
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTor) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.ready = false
	return nil
}

func (f *fakeTor) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTor) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready || f.starting > 0
}

func (f *fakeTor) ProxyURL() string { return "socks5://127.0.0.1:9050" }

func (f *fakeTor) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSession records proxy changes.
type fakeSession struct {
	mu       sync.Mutex
	part     string
	proxies  []session.ProxyConfig
	clears   int
	proxyErr error
}

func (s *fakeSession) Partition() string { return s.part }
func (s *fakeSession) SetProxy(cfg session.ProxyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxyErr != nil && cfg.Mode == model.RouteTor {
		return s.proxyErr
	}
	s.proxies = append(s.proxies, cfg)
	return nil
}
func (s *fakeSession) AttachInterceptor(string, session.Interceptor) bool { return true }
func (s *fakeSession) Attached() []string                                 { return nil }
func (s *fakeSession) ClearResolverCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeSession) last() session.ProxyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.proxies) == 0 {
		return session.ProxyConfig{}
	}
	return s.proxies[len(s.proxies)-1]
}

type fixture struct {
	reg      *container.Registry
	tor      *fakeTor
	events   *event.Recorder
	sessions map[string]*fakeSession
	ctrl     *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		reg:      container.NewRegistry(),
		tor:      &fakeTor{},
		events:   &event.Recorder{},
		sessions: map[string]*fakeSession{},
	}
	var mu sync.Mutex
	sessions := func(_ context.Context, c model.Container) (session.Isolation, error) {
		mu.Lock()
		defer mu.Unlock()
		s, ok := f.sessions[c.PartitionID]
		if !ok {
			s = &fakeSession{part: c.PartitionID}
			f.sessions[c.PartitionID] = s
		}
		return s, nil
	}
	opts = append([]Option{WithEvents(f.events), WithLogger(log.Discard())}, opts...)
	f.ctrl = NewController(f.reg, sessions, f.tor, opts...)
	return f
}

func TestApplyRoutingDirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, _, err := f.reg.Ensure("Work", true); err != nil {
		t.Fatal(err)
	}

	res := f.ctrl.ApplyRouting(t.Context(), "Work")
	if res.Mode != model.RouteDirect || res.Requested || res.Error != "" {
		t.Errorf("ApplyRouting() = %+v", res)
	}
	if f.tor.startCalls() != 0 {
		t.Error("direct routing must not touch the supervisor")
	}
	s := f.sessions["persist:c-Work"]
	if s.last().Mode != model.RouteDirect || s.clears != 1 {
		t.Errorf("session proxy %+v, clears %d", s.last(), s.clears)
	}
	if len(f.events.Events()) != 0 {
		t.Errorf("unexpected events: %v", f.events.Events())
	}
}

func TestApplyRoutingTor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tor.progress = []int{10, 50, 100}
	_, _, _ = f.reg.Ensure("Work", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists

	res := f.ctrl.ApplyRouting(t.Context(), "Work")
	if res.Mode != model.RouteTor || !res.Requested || res.Error != "" || res.Degraded() {
		t.Fatalf("ApplyRouting() = %+v", res)
	}

	got := f.sessions["persist:c-Work"].last()
	want := session.TorProxy("socks5://127.0.0.1:9050", "persist:c-Work")
	if got != want {
		t.Errorf("proxy = %+v, want %+v", got, want)
	}
	if got.Bypass != session.BypassLoopback {
		t.Error("loopback must bypass the proxy")
	}

	boots := f.events.OfType(model.EventTorBoot)
	var pcts []int
	for _, ev := range boots {
		b := ev.Data.(model.TorBoot)
		if b.Container != "Work" {
			t.Errorf("boot event for %q", b.Container)
		}
		pcts = append(pcts, b.Percent)
	}
	if !slices.Equal(pcts, []int{0, 10, 50, 100}) {
		t.Errorf("boot percents = %v", pcts)
	}
	if first := boots[0].Data.(model.TorBoot); first.Message != StartingMessage {
		t.Errorf("first boot message = %q", first.Message)
	}
}

func TestApplyRoutingStartFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tor.startErr = &tor.ProcessError{Op: "resolve", Binary: "tor", Err: tor.ErrBinaryNotFound}

	// Work starts persistent with anonymity disabled.
	if _, _, err := f.reg.Ensure("Work", true); err != nil {
		t.Fatal(err)
	}
	if res := f.ctrl.ApplyRouting(t.Context(), "Work"); res.Mode != model.RouteDirect {
		t.Fatalf("initial routing = %+v", res)
	}
	if f.tor.startCalls() != 0 {
		t.Fatal("supervisor touched while anonymity disabled")
	}

	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists
	res := f.ctrl.ApplyRouting(t.Context(), "Work")

	if f.tor.startCalls() != 1 {
		t.Errorf("start attempts = %d, want 1", f.tor.startCalls())
	}
	if res.Mode != model.RouteDirect || !res.Degraded() || res.Error == "" {
		t.Errorf("ApplyRouting() = %+v, want degraded direct", res)
	}
	if got := f.sessions["persist:c-Work"].last(); got.Mode != model.RouteDirect {
		t.Errorf("session left on %q", got.Mode)
	}

	errs := f.events.OfType(model.EventTorError)
	if len(errs) != 1 {
		t.Fatalf("tor:error events = %d, want 1", len(errs))
	}
	te := errs[0].Data.(model.TorError)
	if te.Container != "Work" || te.Error == "" {
		t.Errorf("tor:error = %+v", te)
	}
}

func TestApplyRoutingProxyFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, _, _ = f.reg.Ensure("Work", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists
	f.sessions["persist:c-Work"] = &fakeSession{part: "persist:c-Work", proxyErr: session.ErrInvalidProxy}

	res := f.ctrl.ApplyRouting(t.Context(), "Work")
	if res.Mode != model.RouteDirect || res.Error == "" {
		t.Errorf("ApplyRouting() = %+v", res)
	}
	if len(f.events.OfType(model.EventTorError)) != 1 {
		t.Error("expected a tor:error event")
	}
}

func TestApplyRoutingUnknownContainer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.ctrl.ApplyRouting(t.Context(), "Ghost")
	if res.Mode != model.RouteDirect || res.Error == "" {
		t.Errorf("ApplyRouting() = %+v", res)
	}
	if len(f.sessions) != 0 {
		t.Error("no session should be created for an unknown container")
	}
}

func TestApplyRoutingFlagClearedDuringStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tor.block = make(chan struct{})
	_, _, _ = f.reg.Ensure("Work", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists

	done := make(chan model.RoutingResult, 1)
	go func() { done <- f.ctrl.ApplyRouting(t.Context(), "Work") }()

	for f.tor.startCalls() == 0 {
		time.Sleep(time.Millisecond)
	}
	_, _ = f.reg.SetAnonymity("Work", false) //nolint:errcheck // exists
	close(f.tor.block)

	res := <-done
	if res.Mode != model.RouteDirect || res.Requested || res.Error != "" {
		t.Errorf("ApplyRouting() = %+v", res)
	}
}

func TestStartThrottled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithRetryPolicy(1, time.Hour))
	f.tor.startErr = &tor.ProcessError{Op: "wait", Err: tor.ErrReadinessTimeout}
	_, _, _ = f.reg.Ensure("Work", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists

	f.ctrl.ApplyRouting(t.Context(), "Work")
	res := f.ctrl.ApplyRouting(t.Context(), "Work")

	if f.tor.startCalls() != 1 {
		t.Errorf("start attempts = %d, want 1", f.tor.startCalls())
	}
	if res.Mode != model.RouteDirect || res.Error != ErrStartThrottled.Error() {
		t.Errorf("ApplyRouting() = %+v", res)
	}
	if n := len(f.events.OfType(model.EventTorError)); n != 2 {
		t.Errorf("tor:error events = %d, want 2", n)
	}
}

func TestReadyTorIsNotThrottled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithRetryPolicy(1, time.Hour))
	_, _, _ = f.reg.Ensure("A", true)    //nolint:errcheck // valid name
	_, _, _ = f.reg.Ensure("B", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("A", true) //nolint:errcheck // exists
	_, _ = f.reg.SetAnonymity("B", true) //nolint:errcheck // exists

	for _, name := range []string{"A", "B", "A"} {
		if res := f.ctrl.ApplyRouting(t.Context(), name); res.Mode != model.RouteTor {
			t.Errorf("ApplyRouting(%s) = %+v", name, res)
		}
	}
}

func TestJoiningPendingStartIsNotThrottled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithRetryPolicy(1, time.Hour))
	f.tor.block = make(chan struct{})
	_, _, _ = f.reg.Ensure("Work", true)    //nolint:errcheck // valid name
	_, _ = f.reg.SetAnonymity("Work", true) //nolint:errcheck // exists

	const callers = 4
	results := make(chan model.RoutingResult, callers)
	go func() { results <- f.ctrl.ApplyRouting(t.Context(), "Work") }()
	for f.tor.startCalls() == 0 {
		time.Sleep(time.Millisecond)
	}
	for range callers - 1 {
		go func() { results <- f.ctrl.ApplyRouting(t.Context(), "Work") }()
	}
	for f.tor.startCalls() < callers {
		time.Sleep(time.Millisecond)
	}
	close(f.tor.block)

	for range callers {
		if res := <-results; res.Mode != model.RouteTor || res.Error != "" {
			t.Errorf("ApplyRouting() = %+v, want tor", res)
		}
	}
	s := f.sessions["persist:c-Work"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.proxies {
		if p.Mode != model.RouteTor {
			t.Errorf("proxy change %d = %+v, want tor only", i, p)
		}
	}
	if n := len(f.events.OfType(model.EventTorError)); n != 0 {
		t.Errorf("tor:error events = %d, want 0", n)
	}
}

func TestSetContainerTor(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		changed []string
		probed  []string
	)
	f := newFixture(t,
		WithOnChange(func(_ context.Context, name string) {
			mu.Lock()
			defer mu.Unlock()
			changed = append(changed, name)
		}),
		WithProber(func(_ context.Context, name string) {
			mu.Lock()
			defer mu.Unlock()
			probed = append(probed, name)
		}),
	)

	res, err := f.ctrl.SetContainerTor(t.Context(), "Bank", true)
	if err != nil {
		t.Fatal(err)
	}
	f.ctrl.Wait()

	if res.Mode != model.RouteTor {
		t.Errorf("SetContainerTor() = %+v", res)
	}
	c, ok := f.reg.Get("Bank")
	if !ok || !c.AnonymityEnabled || !c.Persistent {
		t.Errorf("container = %+v, %v", c, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(changed, []string{"Bank"}) || !slices.Equal(probed, []string{"Bank"}) {
		t.Errorf("changed %v, probed %v", changed, probed)
	}
}

func TestSetContainerTorEphemeral(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithEphemeralContainer("Private"))
	if _, err := f.ctrl.SetContainerTor(t.Context(), "Private", false); err != nil {
		t.Fatal(err)
	}
	if c, _ := f.reg.Get("Private"); c.Persistent {
		t.Error("ephemeral container created persistent")
	}
	if _, err := f.ctrl.SetContainerTor(t.Context(), "", true); !errors.Is(err, container.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestStartTorSystem(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tor.startErr = &tor.ProcessError{Op: "resolve", Err: tor.ErrBinaryNotFound}

	err := f.ctrl.StartTor(t.Context())
	if !errors.Is(err, tor.ErrBinaryNotFound) {
		t.Errorf("expected ErrBinaryNotFound, got %v", err)
	}
	errs := f.events.OfType(model.EventTorError)
	if len(errs) != 1 || errs[0].Data.(model.TorError).Container != model.SystemContainer {
		t.Errorf("tor:error events = %v", errs)
	}

	f.tor.startErr = nil
	if err := f.ctrl.StartTor(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.StopTor(); err != nil {
		t.Fatal(err)
	}
	if f.tor.IsReady() {
		t.Error("expected stopped after StopTor")
	}
}
