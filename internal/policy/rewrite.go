package policy

import (
	"net"
	"net/url"
	"strings"

	"github.com/nao1215/unseen/internal/session"
)

// TrackingParams are query keys removed from every request. Keys are
// compared lowercased and unescaped.
var TrackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
}

// secureSchemes maps insecure schemes to their secure counterpart and the
// default port that is dropped on upgrade.
var secureSchemes = map[string]struct {
	scheme      string
	defaultPort string
}{
	"http": {"https", "80"},
	"ws":   {"wss", "80"},
}

// UpgradeURL returns the secure form of u when u uses an insecure scheme and
// does not point at a loopback host.
func UpgradeURL(u *url.URL) (string, bool) {
	sec, ok := secureSchemes[strings.ToLower(u.Scheme)]
	if !ok || session.IsLoopbackHost(u.Hostname()) {
		return "", false
	}

	out := *u
	out.Scheme = sec.scheme
	if u.Port() == sec.defaultPort {
		out.Host = stripPort(u.Host)
	}
	return out.String(), true
}

func stripPort(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// StripTrackingParams removes tracking parameters from a raw query. The
// remaining parameters keep their order and encoding. It reports whether
// anything was removed.
func StripTrackingParams(rawQuery string) (string, bool) {
	if rawQuery == "" {
		return rawQuery, false
	}

	parts := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if isTrackingParam(p) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == len(parts) {
		return rawQuery, false
	}
	return strings.Join(kept, "&"), true
}

func isTrackingParam(pair string) bool {
	key, _, _ := strings.Cut(pair, "=")
	if k, err := url.QueryUnescape(key); err == nil {
		key = k
	}
	_, ok := TrackingParams[strings.ToLower(key)]
	return ok
}

// StripURL returns u without tracking parameters when any were present.
func StripURL(u *url.URL) (string, bool) {
	q, changed := StripTrackingParams(u.RawQuery)
	if !changed {
		return "", false
	}
	out := *u
	out.RawQuery = q
	out.ForceQuery = false
	return out.String(), true
}

// Rewrite is the tracker-upgrade decision for one request URL: the upgraded
// URL if an upgrade applies, otherwise the stripped URL if tracking
// parameters were present. ok is false when the request may proceed as is.
func Rewrite(u *url.URL) (string, bool) {
	if target, ok := UpgradeURL(u); ok {
		return target, true
	}
	return StripURL(u)
}
