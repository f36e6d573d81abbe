package session

import (
	"net/http"

	"github.com/nao1215/unseen/internal/model"
)

// BypassLoopback is the bypass rule that keeps loopback hosts off the proxy.
const BypassLoopback = "<-loopback>"

// ProxyConfig selects how a session reaches the network.
type ProxyConfig struct {
	Mode model.RouteMode `json:"mode"`
	// URL is the proxy endpoint, "socks5://host:port", for RouteTor.
	URL string `json:"url,omitempty"`
	// Bypass lists hosts that skip the proxy. Only BypassLoopback is
	// understood.
	Bypass string `json:"bypass,omitempty"`
	// IsolationKey is sent as SOCKS credentials so that Tor builds separate
	// circuits per key.
	IsolationKey string `json:"-"`
}

// DirectProxy is the proxy-less configuration.
func DirectProxy() ProxyConfig {
	return ProxyConfig{Mode: model.RouteDirect}
}

// TorProxy routes through the SOCKS endpoint at socksURL with loopback
// bypass and the given isolation key.
func TorProxy(socksURL, isolationKey string) ProxyConfig {
	return ProxyConfig{
		Mode:         model.RouteTor,
		URL:          socksURL,
		Bypass:       BypassLoopback,
		IsolationKey: isolationKey,
	}
}

// Verdict is what a BeforeRequest hook decides for a request. The zero
// value lets the request continue.
type Verdict struct {
	Cancel   bool
	Redirect string
}

// Interceptor hooks into every request of a session. Either hook may be nil.
type Interceptor struct {
	// BeforeRequest may cancel the request or redirect it. Hooks run in
	// attachment order and the first non-zero verdict wins.
	BeforeRequest func(req *http.Request) Verdict
	// BeforeSendHeaders may rewrite the outgoing headers.
	BeforeSendHeaders func(h http.Header)
}

// PermissionHandler decides a capability request from a page on host.
type PermissionHandler func(capability, host string) bool

// Isolation is the network side of a session as seen by the policy engine
// and the routing controller.
type Isolation interface {
	// Partition returns the partition identifier the session is bound to.
	Partition() string
	// SetProxy switches the route used by requests issued after it returns.
	SetProxy(cfg ProxyConfig) error
	// AttachInterceptor installs ic under id. It reports false and changes
	// nothing when id is already attached.
	AttachInterceptor(id string, ic Interceptor) bool
	// Attached returns the attached interceptor identifiers in order.
	Attached() []string
	// ClearResolverCache drops cached name resolutions and idle connections.
	ClearResolverCache()
}
