// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is Parlor's delivery substrate: named endpoints
// exchanging opaque byte payloads with at-least-once, reachable-address
// delivery. The messaging layer above it adds correlation; this layer
// only moves bytes between addresses.
//
// Two implementations exist. [MemoryNetwork] is process-local and is
// what tests and single-process deployments use. [TCPNetwork] carries
// frames over TCP using a static peer table mapping addresses to
// "host:port" locations; a failed send is retried once on a fresh
// connection after a short backoff.
package transport

import (
	"context"
	"errors"
)

// Delivery is one inbound payload for a bound address.
type Delivery struct {
	// From is the sender's endpoint address.
	From string

	// Data is the opaque payload handed to Send on the other side.
	Data []byte
}

// Conn is one bound endpoint address on a Network. A Conn receives
// every payload addressed to its address and can send to any
// reachable address.
type Conn interface {
	// Send delivers data to the endpoint bound to the given address.
	// Blocks until the payload is handed off or ctx is done. Returns
	// an error when the address is unreachable.
	Send(ctx context.Context, to string, data []byte) error

	// Receive returns the channel of inbound deliveries. The channel
	// is never closed; after Close, it simply stops producing.
	Receive() <-chan Delivery

	// Close releases the address binding. Idempotent.
	Close() error
}

// Network binds endpoint addresses to Conns.
type Network interface {
	// Attach binds address and returns its Conn. Fails with
	// ErrAddressTaken if the address is already bound on this
	// Network.
	Attach(address string) (Conn, error)
}

// ErrAddressTaken is returned by Attach when the address is already
// bound. The messaging layer surfaces this as a local misuse error.
var ErrAddressTaken = errors.New("transport: address already bound")

// ErrUnreachable is returned by Send when no endpoint is bound to (or
// no peer location is known for) the destination address.
var ErrUnreachable = errors.New("transport: address unreachable")

// ErrClosed is returned by Send on a closed Conn or Network.
var ErrClosed = errors.New("transport: closed")
