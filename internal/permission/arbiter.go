// Package permission keeps allow/deny decisions for sensitive page
// capabilities, keyed by exact host name.
//
// Unknown hosts are denied. Every change is written to disk before Set
// returns.
package permission

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/unseen/internal/jsonfile"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
)

// Capability is a permission a page can request.
type Capability string

const (
	// Media is camera and microphone access.
	Media Capability = "media"
	// Geo is geolocation access.
	Geo Capability = "geo"
)

// ParseCapability maps a capability or permission request name to a
// Capability. "geolocation" is the name pages request geo access with.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(s) {
	case "media":
		return Media, nil
	case "geo", "geolocation":
		return Geo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
}

// store is the on-disk document.
type store struct {
	Media map[string]bool `json:"media"`
	Geo   map[string]bool `json:"geo"`
}

func emptyStore() store {
	return store{Media: map[string]bool{}, Geo: map[string]bool{}}
}

func (s *store) table(c Capability) map[string]bool {
	if c == Media {
		return s.Media
	}
	return s.Geo
}

// Arbiter answers and records permission decisions.
type Arbiter struct {
	mu     sync.RWMutex
	path   string
	data   store
	logger *slog.Logger
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewArbiter loads the store at path. A missing or malformed store yields an
// empty arbiter.
func NewArbiter(path string, opts ...Option) *Arbiter {
	a := &Arbiter{path: path, data: emptyStore(), logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Reload(); err != nil {
		a.logger.Debug("permission store reset", "error", err)
	}
	return a
}

// Reload replaces the in-memory decisions with the file content. When the
// file cannot be used the arbiter is left empty and a *ConfigError is
// returned; a missing file is not an error.
func (a *Arbiter) Reload() error {
	var s store
	err := jsonfile.Load(a.path, &s)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = emptyStore()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &ConfigError{Path: a.path, Err: err}
	}
	for h, v := range s.Media {
		a.data.Media[h] = v
	}
	for h, v := range s.Geo {
		a.data.Geo[h] = v
	}
	return nil
}

// Path returns the store location.
func (a *Arbiter) Path() string {
	return a.path
}

// Decide reports whether host may use capability. Hosts are matched exactly,
// ignoring case.
func (a *Arbiter) Decide(c Capability, host string) bool {
	if c != Media && c != Geo {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data.table(c)[normalizeHost(host)]
}

// Set records a decision and writes the store. The in-memory decision is
// rolled back when the write fails.
func (a *Arbiter) Set(host string, c Capability, allow bool) error {
	host = normalizeHost(host)
	if host == "" {
		return ErrEmptyHost
	}
	if c != Media && c != Geo {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.data.table(c)
	prev, existed := t[host]
	t[host] = allow
	if err := jsonfile.Save(a.path, a.data); err != nil {
		if existed {
			t[host] = prev
		} else {
			delete(t, host)
		}
		return fmt.Errorf("failed to save permissions: %w", err)
	}
	a.logger.Debug("permission set", "host", host, "capability", string(c), "allow", allow)
	return nil
}

// Grant allows capability for host.
func (a *Arbiter) Grant(host string, c Capability) error {
	return a.Set(host, c, true)
}

// Deny denies capability for host.
func (a *Arbiter) Deny(host string, c Capability) error {
	return a.Set(host, c, false)
}

// Get returns both decisions for host.
func (a *Arbiter) Get(host string) model.PermissionDecision {
	host = normalizeHost(host)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return model.PermissionDecision{
		Host:  host,
		Media: a.data.Media[host],
		Geo:   a.data.Geo[host],
	}
}

// All returns the decisions of every host with a stored entry, sorted by
// host.
func (a *Arbiter) All() []model.PermissionDecision {
	a.mu.RLock()
	defer a.mu.RUnlock()

	hosts := make(map[string]struct{}, len(a.data.Media)+len(a.data.Geo))
	for h := range a.data.Media {
		hosts[h] = struct{}{}
	}
	for h := range a.data.Geo {
		hosts[h] = struct{}{}
	}

	out := make([]model.PermissionDecision, 0, len(hosts))
	for h := range hosts {
		out = append(out, model.PermissionDecision{Host: h, Media: a.data.Media[h], Geo: a.data.Geo[h]})
	}
	slices.SortFunc(out, func(x, y model.PermissionDecision) int { return strings.Compare(x.Host, y.Host) })
	return out
}

// Handler returns the permission request handler installed on sessions.
// Media and geolocation requests consult the store; any other capability is
// denied.
func (a *Arbiter) Handler() session.PermissionHandler {
	return func(capability, host string) bool {
		c, err := ParseCapability(capability)
		if err != nil {
			return false
		}
		return a.Decide(c, host)
	}
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}
