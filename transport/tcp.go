// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/parlor-chat/parlor/lib/clock"
	"github.com/parlor-chat/parlor/lib/codec"
)

// Compile-time interface checks.
var (
	_ Network = (*TCPNetwork)(nil)
	_ Conn    = (*tcpConn)(nil)
)

// Wire format: each frame is a 5-byte header (1 byte version + 4 byte
// big-endian payload length) followed by a CBOR-encoded tcpFrame.
const (
	frameVersion      byte = 0x01
	frameHeaderLength      = 5

	// maxFrameLength bounds a single frame. Chat payloads are tiny;
	// the ceiling only guards against a corrupt or hostile stream.
	maxFrameLength = 16 * 1024 * 1024
)

// tcpFrame is the on-wire shape of one delivery.
type tcpFrame struct {
	To   string `cbor:"to"`
	From string `cbor:"from"`
	Data []byte `cbor:"data"`
}

// TCPNetwork carries deliveries over TCP. Each process runs one
// listener; a static peer table maps endpoint addresses to "host:port"
// locations. Several endpoint addresses may be bound on the same
// network — the frame's To field demultiplexes them on arrival.
//
// A failed send closes the cached connection, waits one backoff, and
// retries once on a fresh dial. Combined with the listener's
// willingness to accept reconnects at any time, this gives the
// at-least-once behavior the messaging layer assumes.
type TCPNetwork struct {
	listener net.Listener
	peers    map[string]string
	dialTO   time.Duration
	backoff  time.Duration
	clk      clock.Clock
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*tcpConn
	links map[string]*peerLink

	closeOnce sync.Once
	closed    chan struct{}
}

// TCPOption configures a TCPNetwork.
type TCPOption func(*TCPNetwork)

// WithClock injects the clock used for retry backoff. Tests inject
// clock.Fake.
func WithClock(clk clock.Clock) TCPOption {
	return func(n *TCPNetwork) { n.clk = clk }
}

// WithLogger sets the logger for connection-level events.
func WithLogger(logger *slog.Logger) TCPOption {
	return func(n *TCPNetwork) { n.logger = logger }
}

// WithDialTimeout bounds connection establishment to a peer.
func WithDialTimeout(d time.Duration) TCPOption {
	return func(n *TCPNetwork) { n.dialTO = d }
}

// WithRetryBackoff sets the pause before a failed send is retried on a
// fresh connection.
func WithRetryBackoff(d time.Duration) TCPOption {
	return func(n *TCPNetwork) { n.backoff = d }
}

// NewTCP starts a TCP network listening on listen (":0" picks a random
// port) with the given address→location peer table. The accept loop
// runs until Close.
func NewTCP(listen string, peers map[string]string, opts ...TCPOption) (*TCPNetwork, error) {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", listen, err)
	}

	network := &TCPNetwork{
		listener: listener,
		peers:    make(map[string]string, len(peers)),
		dialTO:   5 * time.Second,
		backoff:  200 * time.Millisecond,
		clk:      clock.Real(),
		logger:   slog.Default(),
		conns:    make(map[string]*tcpConn),
		links:    make(map[string]*peerLink),
		closed:   make(chan struct{}),
	}
	for address, location := range peers {
		network.peers[address] = location
	}
	for _, opt := range opts {
		opt(network)
	}

	go network.acceptLoop()
	return network, nil
}

// Addr returns the actual listen address, useful with ":0".
func (n *TCPNetwork) Addr() string { return n.listener.Addr().String() }

// Attach binds address on this network.
func (n *TCPNetwork) Attach(address string) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.conns[address]; exists {
		return nil, ErrAddressTaken
	}
	conn := &tcpConn{
		network: n,
		address: address,
		inbox:   make(chan Delivery, receiveBuffer),
		closed:  make(chan struct{}),
	}
	n.conns[address] = conn
	return conn, nil
}

// Close shuts the listener, every cached peer link, and every bound
// conn. Idempotent.
func (n *TCPNetwork) Close() error {
	n.closeOnce.Do(func() {
		close(n.closed)
		n.listener.Close()

		n.mu.Lock()
		links := make([]*peerLink, 0, len(n.links))
		for _, link := range n.links {
			links = append(links, link)
		}
		conns := make([]*tcpConn, 0, len(n.conns))
		for _, conn := range n.conns {
			conns = append(conns, conn)
		}
		n.mu.Unlock()

		for _, link := range links {
			link.shutdown()
		}
		for _, conn := range conns {
			conn.Close()
		}
	})
	return nil
}

func (n *TCPNetwork) acceptLoop() {
	for {
		netConn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
			}
			n.logger.Warn("transport accept failed", "error", err)
			continue
		}
		go n.readLoop(netConn)
	}
}

// readLoop decodes frames from one inbound socket and routes each to
// the conn bound to its To address. Frames for unbound addresses are
// dropped with a log line — the sender's retry lands the same way.
func (n *TCPNetwork) readLoop(netConn net.Conn) {
	defer netConn.Close()
	for {
		frame, err := readFrame(netConn)
		if err != nil {
			if err != io.EOF {
				select {
				case <-n.closed:
				default:
					n.logger.Warn("transport read failed",
						"remote", netConn.RemoteAddr().String(), "error", err)
				}
			}
			return
		}

		n.mu.Lock()
		conn := n.conns[frame.To]
		n.mu.Unlock()
		if conn == nil {
			n.logger.Warn("frame for unbound address dropped", "to", frame.To, "from", frame.From)
			continue
		}

		select {
		case conn.inbox <- Delivery{From: frame.From, Data: frame.Data}:
		case <-conn.closed:
		case <-n.closed:
			return
		}
	}
}

// send resolves the destination and writes one frame, retrying once on
// a fresh connection after a backoff. Local destinations short-circuit
// through the in-process queue.
func (n *TCPNetwork) send(ctx context.Context, from, to string, data []byte) error {
	n.mu.Lock()
	local := n.conns[to]
	n.mu.Unlock()
	if local != nil {
		payload := make([]byte, len(data))
		copy(payload, data)
		select {
		case local.inbox <- Delivery{From: from, Data: payload}:
			return nil
		case <-local.closed:
			return ErrUnreachable
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	location, known := n.peers[to]
	if !known {
		return fmt.Errorf("%w: no peer location for %q", ErrUnreachable, to)
	}

	frame := tcpFrame{To: to, From: from, Data: data}
	err := n.writeTo(ctx, location, frame)
	if err == nil {
		return nil
	}

	n.clk.Sleep(n.backoff)
	if retryErr := n.writeTo(ctx, location, frame); retryErr == nil {
		return nil
	}
	return fmt.Errorf("transport: send to %s (%s): %w", to, location, err)
}

// writeTo writes one frame on the cached link for location, dialing if
// needed. On failure the link is discarded so the retry dials fresh.
func (n *TCPNetwork) writeTo(ctx context.Context, location string, frame tcpFrame) error {
	link, err := n.link(ctx, location)
	if err != nil {
		return err
	}
	if err := link.write(frame); err != nil {
		n.dropLink(location, link)
		return err
	}
	return nil
}

func (n *TCPNetwork) link(ctx context.Context, location string) (*peerLink, error) {
	n.mu.Lock()
	if link, ok := n.links[location]; ok {
		n.mu.Unlock()
		return link, nil
	}
	n.mu.Unlock()

	dialer := net.Dialer{Timeout: n.dialTO}
	netConn, err := dialer.DialContext(ctx, "tcp", location)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", location, err)
	}

	link := &peerLink{conn: netConn}
	n.mu.Lock()
	if existing, ok := n.links[location]; ok {
		// Lost the dial race; keep the winner.
		n.mu.Unlock()
		netConn.Close()
		return existing, nil
	}
	n.links[location] = link
	n.mu.Unlock()
	return link, nil
}

func (n *TCPNetwork) dropLink(location string, link *peerLink) {
	n.mu.Lock()
	if n.links[location] == link {
		delete(n.links, location)
	}
	n.mu.Unlock()
	link.shutdown()
}

// peerLink is one cached outbound socket. Writes are serialized so
// frames from concurrent senders never interleave.
type peerLink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (l *peerLink) write(frame tcpFrame) error {
	payload, err := codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > maxFrameLength {
		return fmt.Errorf("frame length %d exceeds maximum %d", len(payload), maxFrameLength)
	}

	var header [frameHeaderLength]byte
	header[0] = frameVersion
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.conn.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := l.conn.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func (l *peerLink) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn.Close()
}

// readFrame reads one framed delivery from r.
func readFrame(r io.Reader) (tcpFrame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return tcpFrame{}, io.EOF
		}
		return tcpFrame{}, fmt.Errorf("read frame header: %w", err)
	}
	if header[0] != frameVersion {
		return tcpFrame{}, fmt.Errorf("unknown frame version 0x%02x", header[0])
	}
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxFrameLength {
		return tcpFrame{}, fmt.Errorf("frame length %d exceeds maximum %d", payloadLength, maxFrameLength)
	}

	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return tcpFrame{}, fmt.Errorf("read frame payload: %w", err)
	}

	var frame tcpFrame
	if err := codec.Unmarshal(payload, &frame); err != nil {
		return tcpFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

type tcpConn struct {
	network *TCPNetwork
	address string
	inbox   chan Delivery

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *tcpConn) Send(ctx context.Context, to string, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	case <-c.network.closed:
		return ErrClosed
	default:
	}
	return c.network.send(ctx, c.address, to, data)
}

func (c *tcpConn) Receive() <-chan Delivery { return c.inbox }

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.network.mu.Lock()
		if c.network.conns[c.address] == c {
			delete(c.network.conns, c.address)
		}
		c.network.mu.Unlock()
	})
	return nil
}
