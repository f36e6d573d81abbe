// Package routing decides and applies the route of each container.
//
// A container with anonymity enabled is routed through the Tor SOCKS port
// once the supervisor reports ready. Every failure on that path leaves the
// session on direct routing and emits a tor:error event, so a degraded
// container is always visible to the user. The resolver cache is cleared
// after every change.
package routing
