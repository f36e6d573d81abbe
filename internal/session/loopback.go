package session

import (
	"net"
	"strings"
)

// IsLoopbackHost reports whether host names this machine: localhost and
// its subdomains, 0.0.0.0 and any loopback address. host may carry IPv6
// brackets but no port.
func IsLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if h == "" {
		return false
	}
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if h == "0.0.0.0" {
		return true
	}
	if i := strings.IndexByte(h, '%'); i >= 0 {
		h = h[:i]
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
