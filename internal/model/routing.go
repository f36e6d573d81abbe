package model

// RouteMode is how a session reaches the network.
type RouteMode string

const (
	// RouteDirect sends traffic without a proxy.
	RouteDirect RouteMode = "direct"
	// RouteTor sends traffic through the Tor SOCKS port.
	RouteTor RouteMode = "tor"
)

// RoutingResult describes the outcome of applying routing to a container.
type RoutingResult struct {
	Container string `json:"container"`
	// Requested mirrors the container's anonymity flag at the time routing
	// was applied.
	Requested bool      `json:"requested"`
	Mode      RouteMode `json:"mode"`
	ProxyURL  string    `json:"proxyUrl,omitempty"`
	// Error is set when Tor was requested but could not be used.
	Error string `json:"error,omitempty"`
}

// Degraded reports whether anonymity was requested but the session ended
// up on direct routing.
func (r RoutingResult) Degraded() bool {
	return r.Requested && r.Mode != RouteTor
}
