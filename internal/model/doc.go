// Package model defines the data structures shared by the isolation and
// routing packages: containers, routing and probe results, page state and
// the events published to UI clients.
//
// The types live in their own package so that container, routing, probe and
// browser can exchange them without importing each other. All of them are
// plain values that serialize to the JSON shapes the control API emits.
package model
