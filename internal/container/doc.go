// Package container keeps the set of named browsing containers.
//
// A container is created the first time it is referenced and lives until the
// process exits. Its partition identifier is fixed at creation, so asking for
// an existing container with a different persistence returns the existing
// entry unchanged. The only mutable attribute is the anonymity flag.
package container
