package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/document"
	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
)

// Default endpoints and limits.
const (
	DefaultIPURL       = "https://api.ipify.org?format=json"
	DefaultTorURL      = "https://check.torproject.org/"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4

	// maxBody caps how much of a probe response is read.
	maxBody = 1 << 20
)

// torConfirmation is the phrase the check page shows to Tor users.
var torConfirmation = regexp.MustCompile(`(?i)Congratulations\. This browser is configured to use Tor`)

// SessionFunc returns the live session of a container.
type SessionFunc func(ctx context.Context, c model.Container) (*session.Session, error)

// Prober runs connectivity probes.
type Prober struct {
	registry    *container.Registry
	sessions    SessionFunc
	ipURL       string
	torURL      string
	timeout     time.Duration
	concurrency int
	events      event.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Prober.
type Option func(*Prober)

// WithEndpoints overrides the IP echo and Tor check URLs. Empty values keep
// the defaults.
func WithEndpoints(ipURL, torURL string) Option {
	return func(p *Prober) {
		if ipURL != "" {
			p.ipURL = ipURL
		}
		if torURL != "" {
			p.torURL = torURL
		}
	}
}

// WithTimeout bounds one probe including both requests.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithConcurrency bounds how many containers ProbeAll checks at once.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithEvents sets where container:status events go.
func WithEvents(pub event.Publisher) Option {
	return func(p *Prober) {
		if pub != nil {
			p.events = pub
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProber creates a prober for the containers of reg.
func NewProber(reg *container.Registry, sessions SessionFunc, opts ...Option) *Prober {
	p := &Prober{
		registry:    reg,
		sessions:    sessions,
		ipURL:       DefaultIPURL,
		torURL:      DefaultTorURL,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		events:      event.Discard,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks the egress route of the named container and publishes the
// result as a container:status event.
func (p *Prober) Probe(ctx context.Context, name string) model.ProbeResult {
	res := model.ProbeResult{Container: name}

	c, ok := p.registry.Get(name)
	if !ok {
		return p.finish(res, ErrUnknownContainer)
	}
	res.ExpectedAnonymity = c.AnonymityEnabled

	live, err := p.sessions(ctx, c)
	if err != nil {
		return p.finish(res, fmt.Errorf("open session: %w", err))
	}

	throwaway := live.NewEphemeral()
	err = p.run(ctx, throwaway.Client(), &res)
	throwaway.Destroy()
	return p.finish(res, err)
}

// ProbeAll probes the named containers concurrently. Results keep the order
// of names.
func (p *Prober) ProbeAll(ctx context.Context, names []string) []model.ProbeResult {
	results := make([]model.ProbeResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = p.Probe(gctx, name)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Probe never fails
	return results
}

func (p *Prober) run(ctx context.Context, client *http.Client, res *model.ProbeResult) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ip, err := p.observeIP(ctx, client)
	if err != nil {
		return err
	}
	res.ObservedIP = &ip

	isTor, err := p.observeTor(ctx, client)
	if err != nil {
		return err
	}
	res.ObservedAnonymity = &isTor
	return nil
}

func (p *Prober) observeIP(ctx context.Context, client *http.Client) (string, error) {
	body, err := get(ctx, client, p.ipURL)
	if err != nil {
		return "", &Error{Step: "ip", URL: p.ipURL, Err: err}
	}

	var echo struct {
		IP *string `json:"ip"`
	}
	if err := json.Unmarshal(body, &echo); err != nil || echo.IP == nil {
		return "", &Error{Step: "ip", URL: p.ipURL, Err: ErrUnexpectedResponse}
	}
	return *echo.IP, nil
}

func (p *Prober) observeTor(ctx context.Context, client *http.Client) (bool, error) {
	body, err := get(ctx, client, p.torURL)
	if err != nil {
		return false, &Error{Step: "tor", URL: p.torURL, Err: err}
	}
	text, err := document.Text(bytes.NewReader(body))
	if err != nil {
		return false, &Error{Step: "tor", URL: p.torURL, Err: err}
	}
	return torConfirmation.MatchString(text), nil
}

// finish records err, stamps the result and publishes it.
func (p *Prober) finish(res model.ProbeResult, err error) model.ProbeResult {
	res.Succeeded = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	res.CheckedAt = p.now()

	p.logger.Debug("probe finished",
		slog.String("container", res.Container),
		slog.String("verdict", res.Verdict()),
		slog.String("ip", res.IP()),
		slog.String("error", res.Error))
	if res.Verdict() == model.VerdictLeak {
		p.logger.Warn("anonymized container is not using Tor",
			slog.String("container", res.Container),
			slog.String("ip", res.IP()))
	}

	p.events.Publish(model.EventContainerStatus, res)
	return res
}

func get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}
