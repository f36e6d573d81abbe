package page

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/database"
	"github.com/nao1215/unseen/internal/document"
	"github.com/nao1215/unseen/internal/download"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
)

// DefaultMaxBodySize limits how much of a document is parsed.
const DefaultMaxBodySize = 5 * 1024 * 1024

// SessionFunc returns the session of a container, creating it on first use.
type SessionFunc func(ctx context.Context, c model.Container) (*session.Session, error)

// RouteFunc applies a container's routing before its first page loads.
type RouteFunc func(ctx context.Context, name string) model.RoutingResult

// Page is one open tab.
type Page struct {
	id        string
	container string

	mu      sync.Mutex
	history []string
	index   int
	title   string
	favicon string
	loading bool
	cancel  context.CancelFunc
	gen     uint64
}

func (p *Page) info() model.TabInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	ti := model.TabInfo{
		ID:        p.id,
		Container: p.container,
		Title:     p.title,
		Favicon:   p.favicon,
		Loading:   p.loading,
		CanBack:   p.index > 0,
		CanFwd:    p.index >= 0 && p.index < len(p.history)-1,
	}
	if p.index >= 0 {
		ti.URL = p.history[p.index]
	}
	if ti.Title == "" {
		ti.Title = model.DefaultTabTitle
	}
	return ti
}

// Manager owns the open pages.
type Manager struct {
	registry  *container.Registry
	sessions  SessionFunc
	route     RouteFunc
	downloads *download.Manager
	events    event.Publisher
	logger    *slog.Logger
	startURL  string
	searchURL string
	ephemeral string
	maxBody   int64
	now       func() time.Time

	mu     sync.RWMutex
	pages  map[string]*Page
	order  []string
	active string

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents sets the event publisher.
func WithEvents(pub event.Publisher) Option {
	return func(m *Manager) {
		if pub != nil {
			m.events = pub
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithURLs sets the start page and the search prefix. Empty values keep
// the defaults.
func WithURLs(startURL, searchURL string) Option {
	return func(m *Manager) {
		if startURL != "" {
			m.startURL = startURL
		}
		if searchURL != "" {
			m.searchURL = searchURL
		}
	}
}

// WithDownloads sets where non-displayable responses go. Without it they
// are discarded.
func WithDownloads(d *download.Manager) Option {
	return func(m *Manager) {
		m.downloads = d
	}
}

// WithRouter sets the hook that routes a container before its first page
// loads.
func WithRouter(fn RouteFunc) Option {
	return func(m *Manager) {
		m.route = fn
	}
}

// WithEphemeralContainer names the container created non-persistent when a
// page opens in an unknown container.
func WithEphemeralContainer(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.ephemeral = name
		}
	}
}

// WithMaxBodySize limits how much of a document is parsed.
func WithMaxBodySize(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBody = n
		}
	}
}

// NewManager creates a page manager.
func NewManager(reg *container.Registry, sessions SessionFunc, opts ...Option) *Manager {
	m := &Manager{
		registry:  reg,
		sessions:  sessions,
		events:    event.Discard,
		logger:    slog.Default(),
		startURL:  DefaultStartURL,
		searchURL: DefaultSearchURL,
		ephemeral: "Private",
		maxBody:   DefaultMaxBodySize,
		now:       time.Now,
		pages:     make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a page in the named container and makes it active. An empty
// container name means the ephemeral container and an empty rawURL means
// the start page. The page exists even when its first load fails; the load
// error is returned together with the page id.
func (m *Manager) Create(ctx context.Context, containerName, rawURL string) (string, error) {
	if containerName == "" {
		containerName = m.ephemeral
	}
	if _, _, err := m.registry.Ensure(containerName, containerName != m.ephemeral); err != nil {
		return "", err
	}

	target := m.startURL
	if rawURL != "" {
		var err error
		if target, err = NormalizeInput(rawURL, m.searchURL); err != nil {
			return "", err
		}
	}

	if m.route != nil {
		m.route(ctx, containerName)
	}

	p := &Page{id: uuid.NewString(), container: containerName, index: -1}
	m.mu.Lock()
	m.pages[p.id] = p
	m.order = append(m.order, p.id)
	m.active = p.id
	m.mu.Unlock()
	m.PublishState()

	return p.id, m.load(ctx, p, target, -1)
}

// Activate makes a page the active one.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	if _, ok := m.pages[id]; !ok {
		m.mu.Unlock()
		return ErrUnknownPage
	}
	m.active = id
	m.mu.Unlock()

	m.PublishState()
	return nil
}

// Close closes a page, aborting its load. Closing the active page activates
// the most recently opened remaining page.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	p, ok := m.pages[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPage
	}
	delete(m.pages, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
		if n := len(m.order); n > 0 {
			m.active = m.order[n-1]
		}
	}
	m.mu.Unlock()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	m.PublishState()
	return nil
}

// Navigate loads address bar input in a page. An empty id means the active
// page. It returns the normalized URL.
func (m *Manager) Navigate(ctx context.Context, id, input string) (string, error) {
	p, err := m.page(id)
	if err != nil {
		return "", err
	}
	target, err := NormalizeInput(input, m.searchURL)
	if err != nil {
		return "", err
	}
	return target, m.load(ctx, p, target, -1)
}

// Back loads the previous history entry.
func (m *Manager) Back(ctx context.Context, id string) error {
	return m.step(ctx, id, -1)
}

// Forward loads the next history entry.
func (m *Manager) Forward(ctx context.Context, id string) error {
	return m.step(ctx, id, 1)
}

// Reload loads the current entry again.
func (m *Manager) Reload(ctx context.Context, id string) error {
	return m.step(ctx, id, 0)
}

func (m *Manager) step(ctx context.Context, id string, delta int) error {
	p, err := m.page(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	at := p.index + delta
	if p.index < 0 || at < 0 || at >= len(p.history) {
		p.mu.Unlock()
		return ErrNoHistory
	}
	target := p.history[at]
	p.mu.Unlock()

	return m.load(ctx, p, target, at)
}

// ReloadContainer reloads every page of a container in the background so
// no page keeps using connections of a previous route. Wait blocks until
// the reloads finish.
func (m *Manager) ReloadContainer(ctx context.Context, name string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range m.pagesOf(name) {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.Reload(ctx, p.id); err != nil && !errors.Is(err, ErrNoHistory) && !errors.Is(err, ErrUnknownPage) {
				m.logger.Debug("reload failed", slog.String("page", p.id), slog.String("error", err.Error()))
			}
		}()
	}
}

// Wait blocks until background reloads and downloads have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Get returns the public view of a page.
func (m *Manager) Get(id string) (model.TabInfo, bool) {
	m.mu.RLock()
	p, ok := m.pages[id]
	m.mu.RUnlock()
	if !ok {
		return model.TabInfo{}, false
	}
	return p.info(), true
}

// List returns all pages in the order they were opened.
func (m *Manager) List() []model.TabInfo {
	m.mu.RLock()
	pages := make([]*Page, 0, len(m.order))
	for _, id := range m.order {
		pages = append(pages, m.pages[id])
	}
	m.mu.RUnlock()

	out := make([]model.TabInfo, len(pages))
	for i, p := range pages {
		out[i] = p.info()
	}
	return out
}

// Active returns the id of the active page, "" when none is open.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// State returns pages and containers as broadcast in tab:state.
func (m *Manager) State() model.TabState {
	st := model.TabState{
		ActiveTabID: m.Active(),
		Tabs:        m.List(),
	}
	for _, c := range m.registry.List() {
		st.Containers = append(st.Containers, model.ContainerState{
			Name:       c.Name,
			Tor:        c.AnonymityEnabled,
			Persistent: c.Persistent,
		})
	}
	return st
}

// PublishState broadcasts the current tab state.
func (m *Manager) PublishState() {
	m.events.Publish(model.EventTabState, m.State())
}

func (m *Manager) page(id string) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == "" {
		id = m.active
		if id == "" {
			return nil, ErrNoActivePage
		}
	}
	p, ok := m.pages[id]
	if !ok {
		return nil, ErrUnknownPage
	}
	return p, nil
}

func (m *Manager) pagesOf(name string) []*Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Page
	for _, id := range m.order {
		if p := m.pages[id]; p.container == name {
			out = append(out, p)
		}
	}
	return out
}

// fetched is the outcome of one load.
type fetched struct {
	url     string
	title   string
	favicon string
	// download is set when the response must be saved instead of shown.
	download *http.Response
	db       *database.PartitionDB
}

// load fetches target into p. at is the history index the load replaces,
// or -1 to push a new entry. A newer load on the same page supersedes this
// one: its context is cancelled and its result is dropped.
func (m *Manager) load(ctx context.Context, p *Page, target string, at int) error {
	// The load context follows ctx only until the response arrives so that
	// a download can outlive the request that started it.
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.loading = true
	p.mu.Unlock()
	m.events.Publish(model.EventLoading, model.Loading{ID: p.id, Loading: true})

	res, err := m.fetch(lctx, p.container, target)
	stop()
	if res.download != nil {
		m.startDownload(lctx, cancel, res.db, res.download)
	} else {
		cancel()
	}

	p.mu.Lock()
	current := p.gen == gen
	if current {
		p.loading = false
		p.cancel = nil
		if err == nil && res.download == nil {
			if at < 0 || at >= len(p.history) {
				p.history = append(p.history[:p.index+1], res.url)
				p.index = len(p.history) - 1
			} else {
				p.history[at] = res.url
				p.index = at
			}
			p.title = res.title
			p.favicon = res.favicon
		}
	}
	p.mu.Unlock()

	if current {
		m.events.Publish(model.EventLoading, model.Loading{ID: p.id, Loading: false})
		m.PublishState()
	}
	if err != nil {
		m.logger.Debug("page load failed",
			slog.String("page", p.id),
			slog.String("container", p.container),
			slog.String("url", target),
			slog.String("error", err.Error()))
	}
	return err
}

func (m *Manager) fetch(ctx context.Context, name, target string) (fetched, error) {
	if target == BlankURL {
		return fetched{url: BlankURL}, nil
	}

	c, ok := m.registry.Get(name)
	if !ok {
		return fetched{}, container.ErrUnknownContainer
	}
	if err := CheckNavigation(target, c.AnonymityEnabled); err != nil {
		return fetched{}, err
	}
	sess, err := m.sessions(ctx, c)
	if err != nil {
		return fetched{}, fmt.Errorf("open session: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetched{}, err
	}
	resp, err := sess.Client().Do(req)
	if err != nil {
		return fetched{}, err
	}

	if download.IsDownload(resp) {
		return fetched{download: resp, db: sess.Database()}, nil
	}
	defer resp.Body.Close()

	doc, err := document.Parse(resp.Request.URL, io.LimitReader(resp.Body, m.maxBody))
	if err != nil {
		return fetched{}, fmt.Errorf("parse %s: %w", target, err)
	}
	res := fetched{
		url:     resp.Request.URL.String(),
		title:   doc.Title,
		favicon: doc.Favicon,
	}

	if db := sess.Database(); db != nil {
		if _, err := db.RecordVisit(ctx, res.url, res.title, m.now()); err != nil {
			m.logger.Warn("failed to record visit", slog.String("container", name), slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// startDownload saves resp in the background and releases the load
// context when done. Without a download manager the body is discarded.
func (m *Manager) startDownload(ctx context.Context, done context.CancelFunc, db *database.PartitionDB, resp *http.Response) {
	if m.downloads == nil {
		resp.Body.Close()
		done()
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer done()
		_, _ = m.downloads.Save(ctx, db, resp) //nolint:errcheck // reported as download:done
	}()
}
