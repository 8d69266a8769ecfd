// Package syncerr defines the sentinel error kinds from the error handling
// design: callers distinguish them with errors.Is, never by string matching.
package syncerr

import "errors"

var (
	// ErrContextUpdate is returned when code attempts to overwrite a
	// write-once session context field.
	ErrContextUpdate = errors.New("context: write-once field already set")

	// ErrTransport indicates a network failure while TRANSFERRING was live.
	ErrTransport = errors.New("transport: request failed")

	// ErrProtocol indicates a malformed wire payload or stage mismatch.
	ErrProtocol = errors.New("protocol: malformed payload or stage mismatch")

	// ErrIntegrity indicates an invariant breach during dequeue.
	ErrIntegrity = errors.New("integrity: invariant breach")

	// ErrCapabilityMismatch indicates a peer lacks a required capability.
	ErrCapabilityMismatch = errors.New("capability: peer missing required capability")

	// ErrNotFound indicates a lookup against a session or record that does
	// not exist in the store.
	ErrNotFound = errors.New("not found")
)
