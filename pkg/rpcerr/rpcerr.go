// Package rpcerr defines the error taxonomy of spec.md §7 as typed
// sentinels so callers can branch with errors.Is instead of string
// matching.
package rpcerr

import "errors"

var (
	// ErrTransport wraps a socket bind or I/O failure. Bind failure is
	// fatal to node construction; per-datagram send/receive failures are
	// transient and reported to the immediate caller only.
	ErrTransport = errors.New("rpcerr: transport failure")

	// ErrCodec marks a malformed inbound datagram. Non-fatal: the
	// receive loop logs and continues to the next datagram.
	ErrCodec = errors.New("rpcerr: malformed message")

	// ErrCorrelationMiss marks a response whose request-id has no
	// matching pending entry (late, duplicate, or unsolicited). Non-fatal:
	// the dispatcher logs and drops it.
	ErrCorrelationMiss = errors.New("rpcerr: response matches no pending request")

	// ErrTimeout marks a Send call whose deadline expired before a
	// matching response arrived. Reported as absence to the caller; no
	// retry happens at this layer.
	ErrTimeout = errors.New("rpcerr: response timed out")

	// ErrCapacityRejected marks a RoutingTable.Upsert that could not
	// admit a peer because its bucket was full and non-splittable.
	// Non-fatal; the caller decides whether to retry the target.
	ErrCapacityRejected = errors.New("rpcerr: routing table capacity rejected peer")
)
