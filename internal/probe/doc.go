// Package probe verifies the effective egress route of a container.
//
// A probe runs in a throwaway copy of the container's session: it shares the
// route and the request interceptors of the live session but has its own
// cookie jar and connections, so it leaves no trace in the user's history or
// storage. It asks an IP echo service for the observed address, then loads
// the Tor check page and looks for its confirmation phrase. Probe never
// fails; errors are recorded in the result.
package probe
