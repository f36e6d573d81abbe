package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/unseen/internal/database"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

// Default transport settings.
const (
	DefaultTimeout     = 120 * time.Second
	DefaultDialTimeout = 30 * time.Second
)

type namedInterceptor struct {
	id string
	ic Interceptor
}

// Session is the network and storage context of one partition.
type Session struct {
	partition  string
	persistent bool
	dir        string
	ephemeral  bool

	db       *database.PartitionDB
	jar      *partitionJar
	resolver *cachingResolver
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger

	// transport is replaced, never mutated, on proxy changes.
	transport atomic.Pointer[http.Transport]

	mu           sync.RWMutex
	proxy        ProxyConfig
	interceptors []namedInterceptor
	permission   PermissionHandler
	destroyed    bool
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the request timeout of the session client.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStorageDir records the directory holding the partition's on-disk
// state. The directory is removed by ClearStorage.
func WithStorageDir(dir string) Option {
	return func(s *Session) {
		s.dir = dir
	}
}

// WithDatabase attaches the partition database. Stored cookies are loaded
// into the jar and cookies with an expiry are written back to it.
func WithDatabase(ctx context.Context, db *database.PartitionDB) Option {
	return func(s *Session) {
		if db == nil {
			return
		}
		s.db = db
		s.jar = newPartitionJar(ctx, db, s.logger)
	}
}

// New creates a session bound to partition with direct routing and no
// interceptors.
func New(partition string, persistent bool, opts ...Option) *Session {
	s := &Session{
		partition:  partition,
		persistent: persistent,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		resolver:   newCachingResolver(DefaultDialTimeout),
		proxy:      DirectProxy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.jar == nil {
		s.jar = newPartitionJar(context.Background(), nil, s.logger)
	}
	s.transport.Store(s.directTransport())
	s.client = &http.Client{
		Transport: &interceptTransport{session: s},
		Jar:       s.jar,
		Timeout:   s.timeout,
	}
	return s
}

// Partition returns the partition identifier.
func (s *Session) Partition() string {
	return s.partition
}

// Persistent reports whether the partition keeps its storage.
func (s *Session) Persistent() bool {
	return s.persistent
}

// StorageDir returns the on-disk directory, "" when the session has none.
func (s *Session) StorageDir() string {
	return s.dir
}

// Client returns the HTTP client that applies the session's interceptors,
// cookies and route. It is shared by all callers.
func (s *Session) Client() *http.Client {
	return s.client
}

// Database returns the partition database, nil for sessions without
// on-disk storage.
func (s *Session) Database() *database.PartitionDB {
	return s.db
}

// Jar returns the session cookie jar.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// Proxy returns the current proxy configuration.
func (s *Session) Proxy() ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy
}

// SetProxy builds a transport for cfg and swaps it in. On error the
// previous route stays in place.
func (s *Session) SetProxy(cfg ProxyConfig) error {
	var next *http.Transport
	switch cfg.Mode {
	case "", model.RouteDirect:
		cfg = DirectProxy()
		next = s.directTransport()
	case model.RouteTor:
		t, err := s.socksTransport(cfg)
		if err != nil {
			return err
		}
		next = t
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidProxy, cfg.Mode)
	}

	s.mu.Lock()
	s.proxy = cfg
	prev := s.transport.Swap(next)
	s.mu.Unlock()

	if prev != nil {
		prev.CloseIdleConnections()
	}
	s.logger.Debug("proxy changed", "partition", s.partition, "mode", string(cfg.Mode))
	return nil
}

// AttachInterceptor installs ic under id once.
func (s *Session) AttachInterceptor(id string, ic Interceptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.interceptors {
		if n.id == id {
			return false
		}
	}
	s.interceptors = append(s.interceptors, namedInterceptor{id: id, ic: ic})
	return true
}

// Attached returns the attached interceptor identifiers in attachment order.
func (s *Session) Attached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.interceptors))
	for _, n := range s.interceptors {
		ids = append(ids, n.id)
	}
	return ids
}

// IsAttached reports whether id is attached.
func (s *Session) IsAttached(id string) bool {
	return slices.Contains(s.Attached(), id)
}

// ClearResolverCache drops cached name resolutions and pooled connections
// so that nothing resolved or opened before a route change is reused.
func (s *Session) ClearResolverCache() {
	s.resolver.Clear()
	if t := s.transport.Load(); t != nil {
		t.CloseIdleConnections()
	}
}

// SetPermissionHandler installs the capability request handler.
func (s *Session) SetPermissionHandler(h PermissionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = h
}

// RequestPermission asks the session's handler whether a page at origin may
// use capability. Without a handler every request is denied.
func (s *Session) RequestPermission(capability, origin string) bool {
	s.mu.RLock()
	h := s.permission
	s.mu.RUnlock()
	if h == nil {
		return false
	}
	return h(capability, hostOf(origin))
}

// NewEphemeral returns a throwaway session with the same partition, route
// and interceptors but its own cookie jar, resolver and transport. It never
// writes to disk. Callers must Destroy it.
func (s *Session) NewEphemeral() *Session {
	s.mu.RLock()
	cfg := s.proxy
	interceptors := slices.Clone(s.interceptors)
	perm := s.permission
	s.mu.RUnlock()

	e := New(s.partition, false, WithTimeout(s.timeout), WithLogger(s.logger))
	e.ephemeral = true
	e.interceptors = interceptors
	e.permission = perm
	if err := e.SetProxy(cfg); err != nil {
		// never fall back to direct for a copy of a proxied session
		e.Destroy()
	}
	return e
}

// Destroy closes the transport of an ephemeral session and rejects
// further requests on it.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	if t := s.transport.Load(); t != nil {
		t.CloseIdleConnections()
	}
	s.jar.reset()
	s.resolver.Clear()
}

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// ClearStorage drops in-memory cookies and cached state and stops writing
// cookies to disk. Removing the storage directory is up to the Manager.
func (s *Session) ClearStorage() {
	s.jar.reset()
	s.ClearResolverCache()
}

func (s *Session) directTransport() *http.Transport {
	return &http.Transport{
		// Environment proxies would bypass routing decisions.
		Proxy:                 nil,
		DialContext:           s.resolver.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (s *Session) socksTransport(cfg ProxyConfig) (*http.Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, cfg.URL)
	}
	if cfg.Bypass != "" && cfg.Bypass != BypassLoopback {
		return nil, fmt.Errorf("%w: unsupported bypass rule %q", ErrInvalidProxy, cfg.Bypass)
	}

	socks, err := tor.IsolatedDialer(u.Host, cfg.IsolationKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}

	direct := &net.Dialer{Timeout: DefaultDialTimeout}
	bypass := cfg.Bypass == BypassLoopback
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if bypass {
			if host, _, err := net.SplitHostPort(addr); err == nil && IsLoopbackHost(host) {
				return direct.DialContext(ctx, network, addr)
			}
		}
		// The hostname goes to the proxy unresolved.
		return socks.DialContext(ctx, network, addr)
	}

	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}, nil
}

// interceptTransport runs the session interceptors and then the current
// route's transport.
type interceptTransport struct {
	session *Session
}

// RoundTrip implements http.RoundTripper.
func (t *interceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s := t.session

	s.mu.RLock()
	destroyed := s.destroyed
	interceptors := s.interceptors
	s.mu.RUnlock()

	if destroyed {
		closeBody(req)
		return nil, ErrDestroyed
	}

	for _, n := range interceptors {
		if n.ic.BeforeRequest == nil {
			continue
		}
		v := n.ic.BeforeRequest(req)
		if v.Cancel {
			closeBody(req)
			s.logger.Debug("request blocked", "partition", s.partition, "interceptor", n.id, "url", req.URL.String())
			return nil, fmt.Errorf("%w by %s: %s", ErrBlocked, n.id, req.URL.Redacted())
		}
		if v.Redirect != "" {
			closeBody(req)
			return redirectResponse(req, v.Redirect), nil
		}
	}

	out := req.Clone(req.Context())
	for _, n := range interceptors {
		if n.ic.BeforeSendHeaders != nil {
			n.ic.BeforeSendHeaders(out.Header)
		}
	}
	return s.transport.Load().RoundTrip(out)
}

// redirectResponse is an internal 307 so that the method and body survive
// the redirect, matching a browser's internal redirect.
func redirectResponse(req *http.Request, location string) *http.Response {
	h := make(http.Header)
	h.Set("Location", location)
	h.Set("Non-Authoritative-Reason", "Policy")
	return &http.Response{
		Status:        "307 Internal Redirect",
		StatusCode:    http.StatusTemporaryRedirect,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// hostOf returns the host of an origin or URL, or origin itself when it
// does not parse as one.
func hostOf(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return origin
}
