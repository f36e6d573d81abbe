package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/unseen/internal/database"
)

// cookieStore persists cookies of a persistent partition.
type cookieStore interface {
	SaveCookies(ctx context.Context, u *url.URL, cookies []*http.Cookie, now time.Time) error
	LoadCookies(ctx context.Context, now time.Time) ([]database.StoredCookie, error)
}

// partitionJar is the cookie jar of a session. The in-memory jar can be
// replaced when storage is cleared; cookies that carry an expiry are
// written through to the store when there is one.
type partitionJar struct {
	mu     sync.RWMutex
	jar    *cookiejar.Jar
	store  cookieStore
	logger *slog.Logger
}

func newMemoryJar() *cookiejar.Jar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // never fails
	return jar
}

func newPartitionJar(ctx context.Context, store cookieStore, logger *slog.Logger) *partitionJar {
	j := &partitionJar{jar: newMemoryJar(), store: store, logger: logger}
	if store == nil {
		return j
	}

	stored, err := store.LoadCookies(ctx, time.Now())
	if err != nil {
		logger.Warn("failed to load stored cookies", "error", err)
		return j
	}
	for _, sc := range stored {
		j.jar.SetCookies(sc.URL, []*http.Cookie{sc.Cookie})
	}
	return j
}

// SetCookies implements http.CookieJar.
func (j *partitionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	jar, store := j.jar, j.store
	j.mu.RUnlock()

	jar.SetCookies(u, cookies)
	if store == nil {
		return
	}
	if err := store.SaveCookies(context.Background(), u, cookies, time.Now()); err != nil {
		j.logger.Warn("failed to persist cookies", "url", u.String(), "error", err)
	}
}

// Cookies implements http.CookieJar.
func (j *partitionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// reset drops every in-memory cookie and detaches the store.
func (j *partitionJar) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = newMemoryJar()
	j.store = nil
}
