package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
	"github.com/nao1215/unseen/internal/tor"
)

// StartingMessage is the first bootstrap event of every start request.
const StartingMessage = "Starting Tor…"

// Default retry policy for Tor start attempts.
const (
	DefaultRetryBurst    = 3
	DefaultRetryInterval = 10 * time.Second
)

// Anonymity is the part of the Tor supervisor the controller uses.
type Anonymity interface {
	StartAndWait(ctx context.Context, onProgress tor.ProgressFunc) error
	Stop() error
	IsReady() bool
	// IsRunning is true while a start is in flight as well as when ready.
	IsRunning() bool
	ProxyURL() string
}

// SessionFunc returns the session of a container, creating it on first use.
type SessionFunc func(ctx context.Context, c model.Container) (session.Isolation, error)

// Controller applies routing decisions to container sessions.
type Controller struct {
	registry  *container.Registry
	sessions  SessionFunc
	anonymity Anonymity
	events    event.Publisher
	limiter   *rate.Limiter
	logger    *slog.Logger
	ephemeral string
	onChange  func(ctx context.Context, name string)
	prober    func(ctx context.Context, name string)

	// mu serializes the final proxy switch with the flag re-check.
	mu sync.Mutex
	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithEvents sets the event publisher.
func WithEvents(p event.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.events = p
		}
	}
}

// WithRetryPolicy allows burst start attempts and one more every interval.
func WithRetryPolicy(burst int, interval time.Duration) Option {
	return func(c *Controller) {
		if burst > 0 && interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), burst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEphemeralContainer names the container SetContainerTor creates
// non-persistent. Any other implicitly created container is persistent.
func WithEphemeralContainer(name string) Option {
	return func(c *Controller) {
		c.ephemeral = name
	}
}

// WithOnChange registers a hook run after a live toggle has been applied,
// used to reload the container's pages and publish tab state.
func WithOnChange(fn func(ctx context.Context, name string)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithProber registers the verification run after a live toggle. It runs
// in its own goroutine.
func WithProber(fn func(ctx context.Context, name string)) Option {
	return func(c *Controller) {
		c.prober = fn
	}
}

// NewController creates a routing controller.
func NewController(reg *container.Registry, sessions SessionFunc, anonymity Anonymity, opts ...Option) *Controller {
	c := &Controller{
		registry:  reg,
		sessions:  sessions,
		anonymity: anonymity,
		events:    event.Discard,
		limiter:   rate.NewLimiter(rate.Every(DefaultRetryInterval), DefaultRetryBurst),
		logger:    slog.Default(),
		ephemeral: "Private",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ApplyRouting configures the session of the named container according to
// its anonymity flag. It never fails: when Tor cannot be used the session
// is left on direct routing, a tor:error event is published and the result
// carries the error.
func (c *Controller) ApplyRouting(ctx context.Context, name string) model.RoutingResult {
	res := model.RoutingResult{Container: name, Mode: model.RouteDirect}

	ct, ok := c.registry.Get(name)
	if !ok {
		res.Error = fmt.Errorf("%w: %q", ErrUnknownContainer, name).Error()
		return res
	}
	res.Requested = ct.AnonymityEnabled

	sess, err := c.sessions(ctx, ct)
	if err != nil {
		res.Error = err.Error()
		if ct.AnonymityEnabled {
			c.fail(name, err)
		}
		return res
	}

	var torErr error
	if ct.AnonymityEnabled {
		torErr = c.startTor(ctx, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The flag may have been turned off while Tor was starting.
	if cur, ok := c.registry.Get(name); ok && ct.AnonymityEnabled && !cur.AnonymityEnabled {
		res.Requested = false
		torErr = nil
	}

	if res.Requested && torErr == nil {
		proxyURL := c.anonymity.ProxyURL()
		if err := sess.SetProxy(session.TorProxy(proxyURL, ct.PartitionID)); err != nil {
			torErr = err
		} else {
			sess.ClearResolverCache()
			res.Mode = model.RouteTor
			res.ProxyURL = proxyURL
			c.logger.Info("container routed through tor", "container", name)
			return res
		}
	}

	if err := sess.SetProxy(session.DirectProxy()); err != nil {
		c.logger.Error("failed to set direct routing", "container", name, "error", err)
	}
	sess.ClearResolverCache()

	if res.Requested && torErr != nil {
		res.Error = torErr.Error()
		c.fail(name, torErr)
	}
	return res
}

// SetContainerTor creates the container if needed, sets its anonymity flag,
// applies routing, runs the change hook and starts a probe in the
// background.
func (c *Controller) SetContainerTor(ctx context.Context, name string, enabled bool) (model.RoutingResult, error) {
	if _, _, err := c.registry.Ensure(name, name != c.ephemeral); err != nil {
		return model.RoutingResult{}, err
	}
	if _, err := c.registry.SetAnonymity(name, enabled); err != nil {
		return model.RoutingResult{}, err
	}

	res := c.ApplyRouting(ctx, name)

	if c.onChange != nil {
		c.onChange(ctx, name)
	}
	if c.prober != nil {
		probeCtx := context.WithoutCancel(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.prober(probeCtx, name)
		}()
	}
	return res, nil
}

// StartTor starts Tor outside any container. Progress and failure events
// carry the system container name.
func (c *Controller) StartTor(ctx context.Context) error {
	if err := c.startTor(ctx, model.SystemContainer); err != nil {
		c.fail(model.SystemContainer, err)
		return err
	}
	return nil
}

// StopTor stops Tor. Containers with anonymity enabled keep their proxy
// configuration and fail closed until Tor is started again.
func (c *Controller) StopTor() error {
	return c.anonymity.Stop()
}

// Wait blocks until background probes started by SetContainerTor finish.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) startTor(ctx context.Context, name string) error {
	c.events.Publish(model.EventTorBoot, model.TorBoot{Container: name, Percent: 0, Message: StartingMessage})

	// Joining a start in flight or using a ready Tor costs no attempt.
	if !c.anonymity.IsRunning() && !c.limiter.Allow() {
		return ErrStartThrottled
	}

	return c.anonymity.StartAndWait(ctx, func(percent int, message string) {
		c.events.Publish(model.EventTorBoot, model.TorBoot{Container: name, Percent: percent, Message: message})
	})
}

func (c *Controller) fail(name string, err error) {
	c.logger.Warn("tor unavailable, using direct routing", "container", name, "error", err)
	c.events.Publish(model.EventTorError, model.TorError{Container: name, Error: describe(err)})
}

// describe returns the message shown to users for a routing failure.
func describe(err error) string {
	if errors.Is(err, ErrStartThrottled) {
		return "Tor start throttled, try again shortly"
	}
	return err.Error()
}
