// Package session implements isolation sessions: the network and storage
// context of one partition.
//
// A Session owns a cookie jar, an HTTP transport chosen by its proxy
// configuration and an ordered set of interceptors that see every request
// before it leaves. Swapping the proxy replaces the transport atomically, so
// requests already on the wire finish on the old route while new requests
// use the new one.
//
// The Isolation interface is the part of a Session the policy engine and the
// routing controller depend on.
package session
