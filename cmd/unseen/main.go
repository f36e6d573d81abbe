// Package main provides the entry point for the unseen CLI.
//
// unseen is a compartmentalized browsing core: every container has its own
// cookies, cache and storage, and any container can be routed through Tor
// on its own.
//
// Usage:
//
//	unseen serve
//	unseen open https://example.com --container Work
//	unseen containers tor Work on
//
// See --help for all available options.
package main

func main() {
	Execute()
}
