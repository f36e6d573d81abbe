// Package browser wires the isolation and routing components into one
// façade.
//
// Browser owns the Tor supervisor, the container registry, the session
// manager with its policy engine and permission arbiter, the routing
// controller, the prober, pages and downloads. Its methods are the
// capability surface the control API and the CLI expose; long-running work
// reports progress on the event bus.
package browser
