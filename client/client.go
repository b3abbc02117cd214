// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/messaging"
	"github.com/parlor-chat/parlor/transport"
)

// Client is one chat session. The session's name on the wire is the
// address it dialed with; the server knows it by nothing else.
type Client struct {
	endpoint *messaging.Endpoint
	server   string
	logger   *slog.Logger

	// pushMu serializes the push callbacks between the dispatch
	// loop and Login's held-mail replay, so OnMessage and
	// OnAnnouncement never run concurrently with themselves or each
	// other.
	pushMu         sync.Mutex
	onMessage      func(chat.ChatMessage)
	onAnnouncement func(chat.RoomAnnouncement)
}

// Option configures a Client.
type Option func(*Client, *[]messaging.Option)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client, endpointOpts *[]messaging.Option) {
		c.logger = logger
		*endpointOpts = append(*endpointOpts, messaging.WithLogger(logger))
	}
}

// WithCallTimeout bounds how long each blocking method waits for the
// server's reply.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client, endpointOpts *[]messaging.Option) {
		*endpointOpts = append(*endpointOpts, messaging.WithCallTimeout(d))
	}
}

// OnMessage sets the callback for room chatter pushed to this client.
func OnMessage(fn func(chat.ChatMessage)) Option {
	return func(c *Client, _ *[]messaging.Option) { c.onMessage = fn }
}

// OnAnnouncement sets the callback for membership announcements
// (JOIN, LEAVE, DISCONNECT) in the client's rooms.
func OnAnnouncement(fn func(chat.RoomAnnouncement)) Option {
	return func(c *Client, _ *[]messaging.Option) { c.onAnnouncement = fn }
}

// Dial binds address on the network and starts receiving. The session
// is connected but anonymous until [Client.Login].
func Dial(network transport.Network, address, server string, opts ...Option) (*Client, error) {
	c := &Client{
		server: server,
		logger: slog.Default(),
	}
	var endpointOpts []messaging.Option
	for _, opt := range opts {
		opt(c, &endpointOpts)
	}

	endpoint, err := messaging.Open(network, address, endpointOpts...)
	if err != nil {
		return nil, err
	}
	if err := endpoint.StartDispatch(c.receive); err != nil {
		endpoint.Close()
		return nil, err
	}
	c.endpoint = endpoint
	return c, nil
}

// Who returns the session's wire name.
func (c *Client) Who() string { return c.endpoint.Address() }

// Close tears the session down without telling the server. The server
// will keep holding room mail until the next login. Idempotent.
func (c *Client) Close() error {
	if err := c.endpoint.StopDispatch(); err != nil {
		c.logger.Debug("stopping dispatch", "error", err)
	}
	return c.endpoint.Close()
}

// Login announces presence. Mail held while the client was offline is
// replayed through the push callbacks, oldest first, before Login
// returns. The replay batch is delivered without interleaving: live
// pushes arriving during the replay wait until it finishes.
func (c *Client) Login(ctx context.Context) error {
	reply, err := call[chat.LoginReply](ctx, c, chat.LoginRequest{Who: c.Who()})
	if err != nil {
		return err
	}
	if len(reply.Held) == 0 {
		return nil
	}

	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	for _, raw := range reply.Held {
		message, err := chat.Decode(raw)
		if err != nil {
			c.logger.Warn("malformed held message dropped", "error", err)
			continue
		}
		c.deliverLocked(message)
	}
	return nil
}

// Logout withdraws presence. Room membership is retained server-side;
// the session stays usable for queries and a later Login.
func (c *Client) Logout(ctx context.Context) error {
	_, err := call[chat.LogoutReply](ctx, c, chat.LogoutRequest{Who: c.Who()})
	return err
}

// JoinRoom joins a room, creating it if it does not exist. Fails with
// [chat.CodeAlreadyInRoom] when already a member.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	reply, err := call[chat.JoinRoomReply](ctx, c, chat.JoinRoomRequest{Who: c.Who(), Room: room})
	if err != nil {
		return err
	}
	return reply.Err()
}

// LeaveRoom leaves a room. Fails with [chat.CodeNotInRoom] when not a
// member.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	reply, err := call[chat.LeaveRoomReply](ctx, c, chat.LeaveRoomRequest{Who: c.Who(), Room: room})
	if err != nil {
		return err
	}
	return reply.Err()
}

// Send posts text to a room the client belongs to. The reply only
// confirms the server accepted the message; delivery to the other
// members is asynchronous. The sender never receives its own message.
func (c *Client) Send(ctx context.Context, room, text string) error {
	reply, err := call[chat.ChatReply](ctx, c, chat.ChatMessage{From: c.Who(), Room: room, Text: text})
	if err != nil {
		return err
	}
	return reply.Err()
}

// AllRooms lists every room with at least one online member.
func (c *Client) AllRooms(ctx context.Context) ([]string, error) {
	reply, err := call[chat.AllRoomsReply](ctx, c, chat.AllRoomsRequest{})
	if err != nil {
		return nil, err
	}
	return reply.Rooms, nil
}

// MyRooms lists every room this client belongs to, online or not.
func (c *Client) MyRooms(ctx context.Context) ([]string, error) {
	reply, err := call[chat.MyRoomsReply](ctx, c, chat.MyRoomsRequest{Who: c.Who()})
	if err != nil {
		return nil, err
	}
	return reply.Rooms, nil
}

// RoomClients lists the online members of room. Fails with
// [chat.CodeNoSuchRoom] only when no such room exists; an existing
// room where everyone is offline yields an empty list.
func (c *Client) RoomClients(ctx context.Context, room string) ([]string, error) {
	reply, err := call[chat.RoomClientsReply](ctx, c, chat.RoomClientsRequest{Room: room})
	if err != nil {
		return nil, err
	}
	if !reply.Found {
		return nil, &chat.Error{Code: chat.CodeNoSuchRoom}
	}
	return reply.Clients, nil
}

// call runs one request/reply exchange and asserts the reply shape.
func call[R any, PR interface {
	*R
	chat.Message
}](ctx context.Context, c *Client, request chat.Message) (*R, error) {
	encoded, err := chat.Encode(request)
	if err != nil {
		return nil, fmt.Errorf("client: encoding %s: %w", request.Kind(), err)
	}
	raw, err := c.endpoint.Call(ctx, c.server, encoded)
	if err != nil {
		return nil, err
	}
	message, err := chat.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("client: decoding reply to %s: %w", request.Kind(), err)
	}
	reply, ok := message.(PR)
	if !ok {
		return nil, fmt.Errorf("client: protocol violation: %s answered with %s",
			request.Kind(), message.Kind())
	}
	return reply, nil
}

// receive routes one pushed message to the right callback. Requests
// never arrive here: the server only pushes chatter and
// announcements.
func (c *Client) receive(req *messaging.Request) {
	message, err := chat.Decode(req.Payload)
	if err != nil {
		c.logger.Warn("malformed push dropped", "from", req.From, "error", err)
		return
	}
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	c.deliverLocked(message)
}

// deliverLocked invokes the callback for one decoded push. Caller
// holds pushMu.
func (c *Client) deliverLocked(message chat.Message) {
	switch m := message.(type) {
	case *chat.ChatMessage:
		if c.onMessage != nil {
			c.onMessage(*m)
		}
	case *chat.RoomAnnouncement:
		if c.onAnnouncement != nil {
			c.onAnnouncement(*m)
		}
	default:
		c.logger.Warn("unexpected push kind", "kind", message.Kind())
	}
}
