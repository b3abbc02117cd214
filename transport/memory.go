// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// Compile-time interface checks.
var (
	_ Network = (*MemoryNetwork)(nil)
	_ Conn    = (*memoryConn)(nil)
)

// receiveBuffer is the per-address inbound queue depth. Senders block
// once a receiver falls this far behind.
const receiveBuffer = 256

// MemoryNetwork is a process-local Network. Deliveries never leave the
// process: Send hands the payload to the destination's receive queue
// directly. Tests and single-process deployments use this.
type MemoryNetwork struct {
	mu    sync.Mutex
	conns map[string]*memoryConn
}

// NewMemory creates an empty in-process network.
func NewMemory() *MemoryNetwork {
	return &MemoryNetwork{conns: make(map[string]*memoryConn)}
}

// Attach binds address on this network.
func (n *MemoryNetwork) Attach(address string) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.conns[address]; exists {
		return nil, ErrAddressTaken
	}
	conn := &memoryConn{
		network: n,
		address: address,
		inbox:   make(chan Delivery, receiveBuffer),
		closed:  make(chan struct{}),
	}
	n.conns[address] = conn
	return conn, nil
}

// lookup returns the conn bound to address, or nil.
func (n *MemoryNetwork) lookup(address string) *memoryConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[address]
}

// detach removes the binding if it still points at conn. A later
// Attach of the same address gets a fresh conn.
func (n *MemoryNetwork) detach(conn *memoryConn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conns[conn.address] == conn {
		delete(n.conns, conn.address)
	}
}

type memoryConn struct {
	network *MemoryNetwork
	address string
	inbox   chan Delivery

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *memoryConn) Send(ctx context.Context, to string, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	target := c.network.lookup(to)
	if target == nil {
		return ErrUnreachable
	}

	// Copy so the recipient never aliases the sender's buffer.
	payload := make([]byte, len(data))
	copy(payload, data)

	select {
	case target.inbox <- Delivery{From: c.address, Data: payload}:
		return nil
	case <-target.closed:
		return ErrUnreachable
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryConn) Receive() <-chan Delivery { return c.inbox }

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.network.detach(c)
	})
	return nil
}
