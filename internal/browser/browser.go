package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nao1215/unseen/internal/config"
	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/database"
	"github.com/nao1215/unseen/internal/download"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/page"
	"github.com/nao1215/unseen/internal/permission"
	"github.com/nao1215/unseen/internal/policy"
	"github.com/nao1215/unseen/internal/probe"
	"github.com/nao1215/unseen/internal/report"
	"github.com/nao1215/unseen/internal/routing"
	"github.com/nao1215/unseen/internal/session"
	"github.com/nao1215/unseen/internal/snapshot"
	"github.com/nao1215/unseen/internal/tor"
)

// ErrClosed is returned by operations on a browser after Shutdown.
var ErrClosed = errors.New("browser is shut down")

// Anonymity is the Tor backend the browser drives.
type Anonymity interface {
	routing.Anonymity
	Status() tor.Status
}

// Browser is the running browser core.
type Browser struct {
	cfg       *config.Config
	logger    *slog.Logger
	events    *event.Bus
	anonymity Anonymity
	registry  *container.Registry
	sessions  *session.Manager
	policy    *policy.Engine
	perms     *permission.Arbiter
	routing   *routing.Controller
	prober    *probe.Prober
	pages     *page.Manager
	downloads *download.Manager

	mu      sync.Mutex
	probes  map[string]model.ProbeResult
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithAnonymity replaces the Tor supervisor built from the configuration.
func WithAnonymity(a Anonymity) Option {
	return func(b *Browser) {
		b.anonymity = a
	}
}

// New builds a browser from cfg. It does not start Tor or open pages; call
// Start for that.
func New(cfg *config.Config, opts ...Option) (*Browser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	b := &Browser{
		cfg:      cfg,
		logger:   slog.Default(),
		events:   event.NewBus(),
		registry: container.NewRegistry(),
		probes:   make(map[string]model.ProbeResult),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.anonymity == nil {
		b.anonymity = newSupervisor(cfg, b.logger, b.torExited)
	}

	b.policy = policy.NewEngine(
		policy.WithUserAgent(cfg.UserAgent),
		policy.WithRuleset(b.loadRuleset()),
		policy.WithLogger(b.logger),
	)

	b.perms = permission.NewArbiter(cfg.PermissionsFile(), permission.WithLogger(b.logger))
	if err := b.perms.Reload(); err != nil {
		b.logger.Debug("permission store reset", slog.String("error", err.Error()))
	}

	b.sessions = session.NewManager(
		session.WithRoot(cfg.PartitionsDir()),
		session.WithRequestTimeout(cfg.Timeout),
		session.WithManagerLogger(b.logger),
	)
	b.sessions.OnCreate(func(s *session.Session) {
		b.policy.Attach(s)
		s.SetPermissionHandler(b.perms.Handler())
	})

	for _, cc := range cfg.Containers {
		if _, _, err := b.registry.Ensure(cc.Name, cc.Persistent); err != nil {
			return nil, fmt.Errorf("container %q: %w", cc.Name, err)
		}
	}

	b.downloads = download.NewManager(cfg.DownloadsDir,
		download.WithEvents(b.events),
		download.WithLogger(b.logger),
	)

	b.prober = probe.NewProber(b.registry, b.sessions.ForContainer,
		probe.WithEndpoints(cfg.ProbeIPURL, cfg.ProbeTorURL),
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithConcurrency(cfg.ProbeConcurrency),
		probe.WithEvents(b.events),
		probe.WithLogger(b.logger),
	)

	b.routing = routing.NewController(b.registry, b.isolation, b.anonymity,
		routing.WithEvents(b.events),
		routing.WithRetryPolicy(cfg.StartRetryBurst, cfg.StartRetryInterval),
		routing.WithEphemeralContainer(cfg.EphemeralContainer),
		routing.WithLogger(b.logger),
		routing.WithOnChange(func(ctx context.Context, name string) {
			b.pages.ReloadContainer(ctx, name)
			b.pages.PublishState()
		}),
		routing.WithProber(func(ctx context.Context, name string) {
			b.Probe(ctx, name)
		}),
	)

	b.pages = page.NewManager(b.registry, b.sessions.ForContainer,
		page.WithEvents(b.events),
		page.WithLogger(b.logger),
		page.WithURLs(cfg.StartURL, cfg.SearchURL),
		page.WithDownloads(b.downloads),
		page.WithEphemeralContainer(cfg.EphemeralContainer),
		page.WithMaxBodySize(cfg.MaxBodySize),
		page.WithRouter(b.routing.ApplyRouting),
	)

	return b, nil
}

func newSupervisor(cfg *config.Config, logger *slog.Logger, onExit func(error)) *tor.Supervisor {
	opts := []tor.SupervisorOption{
		tor.WithOnExit(onExit),
		tor.WithPort(cfg.TorPort),
		tor.WithDataDir(cfg.TorDataDir()),
		tor.WithReadinessTimeout(cfg.TorReadinessTimeout),
		tor.WithPollInterval(cfg.TorPollInterval),
		tor.WithBinary(cfg.TorBinary),
		tor.WithResourcesDir(cfg.TorResourcesDir),
		tor.WithVendorDir(cfg.TorVendorDir),
		tor.WithLogger(logger),
	}
	if cfg.TorBackend == config.BackendEmbedded {
		opts = append(opts, tor.WithEmbedded(tor.WithStartupTimeout(cfg.TorStartupTimeout)))
	}
	return tor.NewSupervisor(opts...)
}

// torExited reports a ready Tor process that went away. Containers routed
// through it fail closed until Tor is started again.
func (b *Browser) torExited(err error) {
	b.logger.Warn("tor stopped unexpectedly", slog.String("error", err.Error()))
	b.events.Publish(model.EventTorError, model.TorError{Container: model.SystemContainer, Error: err.Error()})
}

func (b *Browser) loadRuleset() policy.Ruleset {
	if b.cfg.BlocklistPath == "" {
		return nil
	}
	rs, err := policy.LoadRuleset(b.cfg.BlocklistPath)
	if err != nil {
		b.logger.Warn("block list not loaded", slog.String("path", b.cfg.BlocklistPath), slog.String("error", err.Error()))
		return nil
	}
	b.logger.Debug("block list loaded", slog.Int("domains", rs.Len()))
	return rs
}

func (b *Browser) isolation(ctx context.Context, c model.Container) (session.Isolation, error) {
	return b.sessions.ForContainer(ctx, c)
}

// Events returns the event bus.
func (b *Browser) Events() *event.Bus {
	return b.events
}

// Config returns the configuration the browser was built with.
func (b *Browser) Config() *config.Config {
	return b.cfg
}

// Start restores the saved session or opens the start page in the
// ephemeral container, then probes the ephemeral container in the
// background.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.started = true
	b.mu.Unlock()

	restored := b.restore(ctx)
	if !restored {
		if _, err := b.pages.Create(ctx, b.cfg.EphemeralContainer, ""); err != nil {
			b.logger.Warn("start page failed to load", slog.String("error", err.Error()))
		}
	}

	name := b.cfg.EphemeralContainer
	probeCtx := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Probe(probeCtx, name)
	}()
	return nil
}

// restore reopens the pages of the last session. It reports whether any
// page was restored.
func (b *Browser) restore(ctx context.Context) bool {
	snap, err := snapshot.Load(b.cfg.SessionFile())
	if err != nil {
		if !errors.Is(err, snapshot.ErrNoSnapshot) {
			b.logger.Warn("session not restored", slog.String("error", err.Error()))
		}
		return false
	}

	for _, c := range snap.Containers {
		if _, _, err := b.registry.Ensure(c.Name, c.Persistent); err != nil {
			continue
		}
		if _, err := b.registry.SetAnonymity(c.Name, c.Tor); err != nil {
			b.logger.Debug("restore anonymity flag", slog.String("container", c.Name), slog.String("error", err.Error()))
		}
	}

	// ids[i] is the page opened for snap.Tabs[i], empty when it was not created.
	ids := make([]string, len(snap.Tabs))
	restored := 0
	for i, t := range snap.Tabs {
		id, err := b.pages.Create(ctx, t.Container, t.URL)
		if err != nil {
			b.logger.Debug("restored page failed to load", slog.String("container", t.Container), slog.String("error", err.Error()))
		}
		if id != "" {
			ids[i] = id
			restored++
		}
	}
	if restored == 0 {
		return false
	}
	if i := snap.Active(); i >= 0 && ids[i] != "" {
		_ = b.pages.Activate(ids[i]) //nolint:errcheck // id was just created
	}
	b.logger.Info("session restored", slog.Int("pages", restored))
	return true
}

// Shutdown saves the session when Start was called, wipes non-persistent
// storage and stops Tor. It is safe to call more than once.
func (b *Browser) Shutdown(_ context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	var errs []error
	if started {
		if err := snapshot.Save(b.cfg.SessionFile(), snapshot.FromState(b.pages.State())); err != nil {
			errs = append(errs, err)
		}
	}

	b.routing.Wait()
	b.pages.Wait()
	b.wg.Wait()

	if err := b.sessions.ClearNonPersistent(); err != nil {
		errs = append(errs, err)
	}
	if err := b.sessions.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.anonymity.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop tor: %w", err))
	}
	b.events.Close()
	return errors.Join(errs...)
}

func (b *Browser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Containers returns the containers in creation order.
func (b *Browser) Containers() []model.Container {
	return b.registry.List()
}

// AddContainer creates a container and its session.
func (b *Browser) AddContainer(ctx context.Context, name string, persistent bool) (model.Container, error) {
	c, created, err := b.registry.Ensure(name, persistent)
	if err != nil {
		return model.Container{}, err
	}
	if _, err := b.sessions.ForContainer(ctx, c); err != nil {
		return c, err
	}
	if created {
		b.pages.PublishState()
	}
	return c, nil
}

// SetContainerTor toggles anonymity routing of a container.
func (b *Browser) SetContainerTor(ctx context.Context, name string, enabled bool) (model.RoutingResult, error) {
	if b.isClosed() {
		return model.RoutingResult{}, ErrClosed
	}
	return b.routing.SetContainerTor(ctx, name, enabled)
}

// NewPage opens a page and makes it active.
func (b *Browser) NewPage(ctx context.Context, containerName, rawURL string) (string, error) {
	return b.pages.Create(ctx, containerName, rawURL)
}

// ActivatePage makes a page active.
func (b *Browser) ActivatePage(id string) error {
	return b.pages.Activate(id)
}

// ClosePage closes a page.
func (b *Browser) ClosePage(id string) error {
	return b.pages.Close(id)
}

// Navigate loads address bar input in a page; an empty id means the active
// page.
func (b *Browser) Navigate(ctx context.Context, id, input string) (string, error) {
	return b.pages.Navigate(ctx, id, input)
}

// Back goes back in a page's history.
func (b *Browser) Back(ctx context.Context, id string) error {
	return b.pages.Back(ctx, id)
}

// Forward goes forward in a page's history.
func (b *Browser) Forward(ctx context.Context, id string) error {
	return b.pages.Forward(ctx, id)
}

// Reload reloads a page.
func (b *Browser) Reload(ctx context.Context, id string) error {
	return b.pages.Reload(ctx, id)
}

// TabState returns pages and containers.
func (b *Browser) TabState() model.TabState {
	return b.pages.State()
}

// Permission returns the stored decisions for host.
func (b *Browser) Permission(host string) model.PermissionDecision {
	return b.perms.Get(host)
}

// Permissions returns every stored decision.
func (b *Browser) Permissions() []model.PermissionDecision {
	return b.perms.All()
}

// SetPermission stores a decision. capability is "media", "geo" or
// "geolocation".
func (b *Browser) SetPermission(host, capability string, allow bool) error {
	c, err := permission.ParseCapability(capability)
	if err != nil {
		return err
	}
	return b.perms.Set(host, c, allow)
}

// Probe checks the egress route of a container and remembers the result.
func (b *Browser) Probe(ctx context.Context, name string) model.ProbeResult {
	res := b.prober.Probe(ctx, name)
	b.remember(res)
	return res
}

// ProbeAll probes every container.
func (b *Browser) ProbeAll(ctx context.Context) []model.ProbeResult {
	names := make([]string, 0, b.registry.Len())
	for _, c := range b.registry.List() {
		names = append(names, c.Name)
	}
	results := b.prober.ProbeAll(ctx, names)
	for _, res := range results {
		b.remember(res)
	}
	return results
}

func (b *Browser) remember(res model.ProbeResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes[res.Container] = res
}

// StartTor starts Tor outside any container.
func (b *Browser) StartTor(ctx context.Context) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.routing.StartTor(ctx)
}

// StopTor stops Tor. Containers with Tor enabled fail closed until it is
// started again.
func (b *Browser) StopTor() error {
	return b.routing.StopTor()
}

// TorStatus returns the supervisor status.
func (b *Browser) TorStatus() tor.Status {
	return b.anonymity.Status()
}

// PolicyStats returns the request policy counters.
func (b *Browser) PolicyStats() policy.Stats {
	return b.policy.Stats()
}

// History returns recent visits of a persistent container. Ephemeral
// containers keep no history.
func (b *Browser) History(ctx context.Context, name string, limit int) ([]database.Visit, error) {
	c, ok := b.registry.Get(name)
	if !ok {
		return nil, container.ErrUnknownContainer
	}
	s, err := b.sessions.ForContainer(ctx, c)
	if err != nil {
		return nil, err
	}
	db := s.Database()
	if db == nil {
		return nil, nil
	}
	return db.RecentVisits(ctx, limit)
}

// Report returns the current routing report with the latest probe of every
// container.
func (b *Browser) Report() *report.Report {
	b.mu.Lock()
	probes := make([]model.ProbeResult, 0, len(b.probes))
	for _, p := range b.probes {
		probes = append(probes, p)
	}
	b.mu.Unlock()
	slices.SortFunc(probes, func(x, y model.ProbeResult) int {
		return x.CheckedAt.Compare(y.CheckedAt)
	})
	return report.New(b.anonymity.Status(), b.registry.List(), probes)
}
