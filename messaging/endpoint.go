// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlor-chat/parlor/lib/clock"
	"github.com/parlor-chat/parlor/lib/codec"
	"github.com/parlor-chat/parlor/transport"
)

// envelope is the correlation-carrying wrapper around one payload in
// transit. ID is unique per sending endpoint and monotonically
// assigned; ResponseTo, when present, names the ID of the envelope
// this one answers.
type envelope struct {
	ID         uint64           `cbor:"id"`
	ResponseTo *uint64          `cbor:"response_to,omitempty"`
	Payload    codec.RawMessage `cbor:"payload"`
	From       string           `cbor:"from"`
}

// Handler consumes one inbound request. It runs on the dispatch loop
// goroutine: the next inbound envelope is not processed until the
// handler returns.
type Handler func(req *Request)

// Request is one inbound request envelope, handed to the dispatch
// handler. It is also the capability to answer: only the dispatch
// loop mints Requests, so holding one proves the caller is inside (or
// was handed work by) the handler for this request. The capability
// expires when the handler returns.
type Request struct {
	// Payload is the opaque request payload.
	Payload codec.RawMessage

	// From is the requester's endpoint address.
	From string

	id       uint64
	endpoint *Endpoint
	expired  atomic.Bool
}

// Respond answers the request. Fails with ErrInvalidOperation once
// the handler that received the request has returned.
func (r *Request) Respond(payload codec.RawMessage) error {
	if r.expired.Load() {
		return fmt.Errorf("%w: request already settled", ErrInvalidOperation)
	}
	e := r.endpoint
	e.mu.Lock()
	id := e.assignIDLocked()
	e.mu.Unlock()
	return e.send(context.Background(), r.From, envelope{
		ID:         id,
		ResponseTo: &r.id,
		Payload:    payload,
		From:       e.address,
	})
}

// Endpoint is one addressable participant on a transport network.
type Endpoint struct {
	address     string
	conn        transport.Conn
	clk         clock.Clock
	callTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan codec.RawMessage
	running bool
	stop    chan struct{}

	// done is closed by the dispatch loop on exit. Stopping waits on
	// it so the caller knows no handler is running afterward.
	done chan struct{}

	closeOnce sync.Once
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithClock injects the clock used for call timeouts. Tests inject
// clock.Fake.
func WithClock(clk clock.Clock) Option {
	return func(e *Endpoint) { e.clk = clk }
}

// WithLogger sets the logger for dispatch-loop events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) { e.logger = logger }
}

// WithCallTimeout bounds every Call to d. Zero (the default) means a
// call waits until the reply arrives, the context is done, or the
// endpoint stops.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Endpoint) { e.callTimeout = d }
}

// Open binds address on the network and returns the endpoint. Fails
// with ErrInvalidOperation if the address is already bound on this
// network.
func Open(network transport.Network, address string, opts ...Option) (*Endpoint, error) {
	conn, err := network.Attach(address)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrInvalidOperation, address, err)
	}
	e := &Endpoint{
		address: address,
		conn:    conn,
		clk:     clock.Real(),
		logger:  slog.Default(),
		pending: make(map[uint64]chan codec.RawMessage),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the endpoint's bound address.
func (e *Endpoint) Address() string { return e.address }

// StartDispatch begins the single sequential inbound loop. Each
// inbound request envelope invokes handler; reply envelopes resolve
// their correlated waits and never reach the handler. Fails with
// ErrInvalidOperation if the loop is already running.
func (e *Endpoint) StartDispatch(handler Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: dispatch loop already running", ErrInvalidOperation)
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.dispatchLoop(handler, e.stop, e.done)
	return nil
}

// StopDispatch halts the loop and releases every caller parked in a
// correlated wait with ErrStopped. It blocks until the loop has
// exited — when it returns, no handler is running and none will run
// again, so the caller may safely read state the handlers owned.
// Fails with ErrInvalidOperation if the loop is not running. Must not
// be called from inside the dispatch handler; that would deadlock.
func (e *Endpoint) StopDispatch() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("%w: dispatch loop not running", ErrInvalidOperation)
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	<-done
	return nil
}

// Close is the idempotent teardown: stops the dispatch loop if it is
// running (waiting for it to exit, like StopDispatch) and releases
// the address binding. Safe to call repeatedly and safe on an
// endpoint that never started, but not from inside the handler.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		var done chan struct{}
		if e.running {
			e.running = false
			close(e.stop)
			done = e.done
		}
		e.mu.Unlock()
		if done != nil {
			<-done
		}
		e.conn.Close()
	})
	return nil
}

// SendAsync wraps payload in a fresh envelope and hands it to the
// transport. No reply is awaited. Returns a communication failure if
// the transport rejects the send.
func (e *Endpoint) SendAsync(ctx context.Context, to string, payload codec.RawMessage) error {
	e.mu.Lock()
	id := e.assignIDLocked()
	e.mu.Unlock()
	return e.send(ctx, to, envelope{ID: id, Payload: payload, From: e.address})
}

// Call sends payload and blocks until the reply correlated to this
// envelope's id arrives, the configured timeout elapses, ctx is done,
// or the dispatch loop stops. Requires a running dispatch loop — the
// loop is what resolves the wait. Any number of calls may be in
// flight concurrently from different goroutines, each under its own
// id.
func (e *Endpoint) Call(ctx context.Context, to string, payload codec.RawMessage) (codec.RawMessage, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: call requires a running dispatch loop", ErrInvalidOperation)
	}
	id := e.assignIDLocked()
	replyCh := make(chan codec.RawMessage, 1)
	e.pending[id] = replyCh
	stop := e.stop
	e.mu.Unlock()

	if err := e.send(ctx, to, envelope{ID: id, Payload: payload, From: e.address}); err != nil {
		e.forget(id)
		return nil, err
	}

	var timeout <-chan time.Time
	if e.callTimeout > 0 {
		timeout = e.clk.After(e.callTimeout)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-stop:
		e.forget(id)
		return nil, ErrStopped
	case <-timeout:
		e.forget(id)
		return nil, ErrCallTimeout
	case <-ctx.Done():
		e.forget(id)
		return nil, fmt.Errorf("%w: %v", ErrCommunication, ctx.Err())
	}
}

// assignIDLocked hands out the next local envelope id. Caller holds
// e.mu.
func (e *Endpoint) assignIDLocked() uint64 {
	e.nextID++
	return e.nextID
}

// forget abandons the pending slot for id. A reply that races in
// afterward finds no waiter and is dropped.
func (e *Endpoint) forget(id uint64) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Endpoint) send(ctx context.Context, to string, env envelope) error {
	data, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("messaging: encode envelope: %w", err)
	}
	if err := e.conn.Send(ctx, to, data); err != nil {
		return fmt.Errorf("%w: send to %q: %v", ErrCommunication, to, err)
	}
	return nil
}

// dispatchLoop pulls inbound envelopes one at a time. Replies resolve
// pending waits; requests run the handler synchronously. The stop
// check at the top of each iteration takes priority over a ready
// delivery, so a stop halts the loop after at most the in-flight
// handler rather than draining a backed-up inbox first.
func (e *Endpoint) dispatchLoop(handler Handler, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		select {
		case <-stop:
			return
		case delivery := <-e.conn.Receive():
			var env envelope
			if err := codec.Unmarshal(delivery.Data, &env); err != nil {
				e.logger.Warn("malformed envelope dropped",
					"endpoint", e.address, "from", delivery.From, "error", err)
				continue
			}

			if env.ResponseTo != nil {
				e.resolve(*env.ResponseTo, env.Payload)
				continue
			}

			req := &Request{
				Payload:  env.Payload,
				From:     env.From,
				id:       env.ID,
				endpoint: e,
			}
			handler(req)
			req.expired.Store(true)
		}
	}
}

// resolve hands a reply payload to the waiter registered under id.
// The slot's channel is buffered, so the handoff never blocks the
// loop. An unmatched reply is dropped without complaint.
func (e *Endpoint) resolve(id uint64, payload codec.RawMessage) {
	e.mu.Lock()
	replyCh, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if ok {
		replyCh <- payload
	}
}
