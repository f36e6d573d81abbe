// Package tor supervises the anonymity process and talks to its SOCKS port.
//
// Supervisor owns at most one tor process. StartAndWait adopts a listener
// that is already running on the port, otherwise it resolves the binary
// (configured path, bundled resources, vendor tree, PATH), spawns it with
// client isolation and a deny-all exit policy, forwards the "Bootstrapped
// NN% (tag)" lines it prints and waits for the port to accept connections.
// The process exiting at any time moves the supervisor back to Stopped.
//
// IsolatedDialer and Client provide SOCKS5 connectivity with per-partition
// credentials, and the onion helpers validate .onion hosts before a request
// is ever sent.
package tor
