package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// resolverTTL bounds how long a lookup is reused.
const resolverTTL = time.Minute

type cachedAddrs struct {
	addrs   []string
	expires time.Time
}

// cachingResolver resolves names for direct connections and remembers the
// answers. Proxied connections never resolve locally.
type cachingResolver struct {
	mu     sync.Mutex
	cache  map[string]cachedAddrs
	lookup func(ctx context.Context, host string) ([]string, error)
	dialer *net.Dialer
	now    func() time.Time
}

func newCachingResolver(dialTimeout time.Duration) *cachingResolver {
	return &cachingResolver{
		cache:  make(map[string]cachedAddrs),
		lookup: net.DefaultResolver.LookupHost,
		dialer: &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
		now:    time.Now,
	}
}

// resolve returns the addresses of host, from the cache when fresh.
func (r *cachingResolver) resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	r.mu.Lock()
	entry, ok := r.cache[host]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expires) {
		return entry.addrs, nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[host] = cachedAddrs{addrs: addrs, expires: r.now().Add(resolverTTL)}
	r.mu.Unlock()
	return addrs, nil
}

// DialContext dials addr trying each resolved address in turn.
func (r *cachingResolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := r.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}

	var errs []error
	for _, a := range addrs {
		conn, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// Clear drops every cached answer.
func (r *cachingResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Len returns the number of cached hosts.
func (r *cachingResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
