package policy

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/nao1215/unseen/internal/session"
)

// Interceptor identifiers.
const (
	IDBlocklist       = "blocklist"
	IDTrackerUpgrade  = "tracker-upgrade"
	IDHeaderSanitizer = "header-sanitizer"
)

// DefaultUserAgent is a common desktop value shared by every session.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0"

// Stats counts policy decisions since the engine was created.
type Stats struct {
	Blocked   int64 `json:"blocked"`
	Upgraded  int64 `json:"upgraded"`
	Stripped  int64 `json:"stripped"`
	Sanitized int64 `json:"sanitized"`
}

// Engine builds the policy interceptors and attaches them to sessions.
type Engine struct {
	userAgent string
	ruleset   Ruleset
	logger    *slog.Logger

	blocked   atomic.Int64
	upgraded  atomic.Int64
	stripped  atomic.Int64
	sanitized atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithUserAgent sets the User-Agent sent by every session.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithRuleset enables the block-list interceptor.
func WithRuleset(r Ruleset) Option {
	return func(e *Engine) {
		e.ruleset = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a policy engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach installs the policy interceptors on sess. Interceptors already
// attached are left alone, so calling Attach again is a no-op. It returns
// the identifiers newly attached.
func (e *Engine) Attach(sess session.Isolation) []string {
	var added []string
	if e.ruleset != nil {
		if sess.AttachInterceptor(IDBlocklist, session.Interceptor{BeforeRequest: e.blocklist}) {
			added = append(added, IDBlocklist)
		}
	}
	if sess.AttachInterceptor(IDTrackerUpgrade, session.Interceptor{BeforeRequest: e.trackerUpgrade}) {
		added = append(added, IDTrackerUpgrade)
	}
	if sess.AttachInterceptor(IDHeaderSanitizer, session.Interceptor{BeforeSendHeaders: e.sanitize}) {
		added = append(added, IDHeaderSanitizer)
	}
	if len(added) > 0 {
		e.logger.Debug("policy attached", "partition", sess.Partition(), "interceptors", added)
	}
	return added
}

// UserAgent returns the shared User-Agent.
func (e *Engine) UserAgent() string {
	return e.userAgent
}

// Stats returns the decision counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Blocked:   e.blocked.Load(),
		Upgraded:  e.upgraded.Load(),
		Stripped:  e.stripped.Load(),
		Sanitized: e.sanitized.Load(),
	}
}

func (e *Engine) blocklist(req *http.Request) session.Verdict {
	if e.ruleset.Blocks(req.URL) {
		e.blocked.Add(1)
		return session.Verdict{Cancel: true}
	}
	return session.Verdict{}
}

func (e *Engine) trackerUpgrade(req *http.Request) session.Verdict {
	if target, ok := UpgradeURL(req.URL); ok {
		e.upgraded.Add(1)
		return session.Verdict{Redirect: target}
	}
	if target, ok := StripURL(req.URL); ok {
		e.stripped.Add(1)
		return session.Verdict{Redirect: target}
	}
	return session.Verdict{}
}

func (e *Engine) sanitize(h http.Header) {
	e.sanitized.Add(1)
	SanitizeHeaders(h, e.userAgent)
}
