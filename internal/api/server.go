package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/unseen/internal/browser"
)

// DefaultHeartbeat is the keep-alive period of the event stream.
const DefaultHeartbeat = 15 * time.Second

// ErrNotLoopback is returned when the control API is asked to listen on a
// non-loopback address.
var ErrNotLoopback = errors.New("control API must listen on a loopback address")

// Server is the control API.
type Server struct {
	browser   *browser.Browser
	engine    *gin.Engine
	logger    *slog.Logger
	rate      RateLimitConfig
	heartbeat time.Duration
	token     string
	port      atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit overrides DefaultRateLimitConfig.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(s *Server) {
		if cfg.RequestsPerSecond > 0 && cfg.Burst > 0 {
			s.rate = cfg
		}
	}
}

// WithHeartbeat sets the event stream keep-alive period.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithToken sets the bearer token clients must send. Default NewToken().
func WithToken(token string) Option {
	return func(s *Server) {
		if token != "" {
			s.token = token
		}
	}
}

// NewServer builds the router for b. Every request must come from loopback,
// name a loopback Host, carry no foreign Origin and present the token.
func NewServer(b *browser.Browser, opts ...Option) *Server {
	s := &Server{
		browser:   b,
		logger:    slog.Default(),
		rate:      DefaultRateLimitConfig(),
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.token == "" {
		s.token = NewToken()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoopbackOnly())
	router.Use(LoopbackHost(s.Port))
	router.Use(LoopbackOrigin())
	router.Use(RateLimit(s.rate))
	router.Use(BearerToken(s.token))
	router.Use(RequireJSON())
	router.Use(RequestLogger(s.logger))

	router.GET("/events", s.streamEvents)
	router.GET("/state", s.tabState)

	router.GET("/containers", s.listContainers)
	router.POST("/containers", s.addContainer)
	router.PUT("/containers/:name/tor", s.setContainerTor)
	router.GET("/containers/:name/history", s.history)

	router.POST("/pages", s.newPage)
	router.DELETE("/pages/:id", s.closePage)
	router.POST("/pages/:id/activate", s.activatePage)
	router.POST("/pages/:id/navigate", s.navigate)
	router.POST("/pages/:id/back", s.back)
	router.POST("/pages/:id/forward", s.forward)
	router.POST("/pages/:id/reload", s.reload)

	router.GET("/permissions", s.listPermissions)
	router.GET("/permissions/:host", s.getPermission)
	router.PUT("/permissions/:host", s.setPermission)

	router.POST("/probe", s.probeAll)
	router.POST("/probe/:name", s.probe)

	router.GET("/tor/status", s.torStatus)
	router.POST("/tor/start", s.startTor)
	router.POST("/tor/stop", s.stopTor)

	router.GET("/report", s.report)
	router.GET("/policy/stats", s.policyStats)

	s.engine = router
	return s
}

// Token returns the bearer token clients must send.
func (s *Server) Token() string {
	return s.token
}

// Port returns the port Serve listens on, 0 before Serve is called.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe listens on addr, which must be a loopback address, and
// serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("%w: %s", ErrNotLoopback, addr)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port)) //nolint:gosec // TCP ports fit in int32
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("control API listening", slog.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down control API: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
