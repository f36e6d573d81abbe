// Package api serves the browser capability surface over a loopback HTTP
// control API.
//
// Requests and responses are JSON. Events published on the browser's bus
// are streamed to clients as server-sent events on GET /events.
package api
