// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/lib/codec"
	"github.com/parlor-chat/parlor/messaging"
	"github.com/parlor-chat/parlor/transport"
)

// Server is one chat server bound to an address. Create with New,
// run with Start, and retire with Stop — Stop persists the snapshot
// (when a state directory is configured), so a later New under the
// same address resumes where this one left off.
type Server struct {
	endpoint *messaging.Endpoint
	state    *serverState
	stateDir string
	logger   *slog.Logger

	// broadcasts tracks in-flight fan-out goroutines so Stop can
	// wait for deliveries already decided.
	broadcasts sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New opens the server's endpoint on the network and restores state
// from the snapshot in stateDir, if one exists. An empty stateDir
// disables persistence. Restored clients start offline — presence
// never survives a restart.
func New(network transport.Network, address, stateDir string, opts ...Option) (*Server, error) {
	s := &Server{
		stateDir: stateDir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := loadSnapshot(stateDir)
	if err != nil {
		return nil, fmt.Errorf("server: restoring snapshot: %w", err)
	}
	s.state = state

	endpoint, err := messaging.Open(network, address, messaging.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.endpoint = endpoint
	return s, nil
}

// Address returns the server's endpoint address.
func (s *Server) Address() string { return s.endpoint.Address() }

// Start begins processing requests. Non-blocking.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: server already started", messaging.ErrInvalidOperation)
	}
	if err := s.endpoint.StartDispatch(s.handle); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Stop halts request processing, waits out in-flight broadcast
// deliveries, writes the snapshot, and releases the address binding.
// A stopped server cannot be restarted; create a new one.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	// StopDispatch returns only after the dispatch loop has exited,
	// so past this point no handler mutates the state or adds to
	// broadcasts, and the snapshot below reads a quiescent state.
	if started {
		if err := s.endpoint.StopDispatch(); err != nil {
			s.logger.Warn("stopping dispatch", "error", err)
		}
	}
	s.broadcasts.Wait()

	if err := saveSnapshot(s.stateDir, s.state); err != nil {
		s.endpoint.Close()
		return fmt.Errorf("server: writing snapshot: %w", err)
	}
	return s.endpoint.Close()
}

// handle runs one request to completion: transition, reply, and
// broadcast-set decision, all before the next request is read.
func (s *Server) handle(req *messaging.Request) {
	message, err := chat.Decode(req.Payload)
	if err != nil {
		s.logger.Warn("malformed request dropped", "from", req.From, "error", err)
		return
	}

	switch m := message.(type) {
	case *chat.LoginRequest:
		s.handleLogin(m, req)
	case *chat.LogoutRequest:
		s.handleLogout(m, req)
	case *chat.JoinRoomRequest:
		s.handleJoin(m, req)
	case *chat.LeaveRoomRequest:
		s.handleLeave(m, req)
	case *chat.ChatMessage:
		s.handleChat(m, req)
	case *chat.AllRoomsRequest:
		s.reply(req, chat.AllRoomsReply{Rooms: s.state.roomsWithOnlineMembers()})
	case *chat.MyRoomsRequest:
		s.reply(req, chat.MyRoomsReply{Rooms: s.state.roomsOf(m.Who)})
	case *chat.RoomClientsRequest:
		clients, found := s.state.roomClients(m.Room)
		s.reply(req, chat.RoomClientsReply{Clients: clients, Found: found})
	default:
		// Reply shapes and announcements are never valid requests.
		// The catalogue is closed; anything else decoding successfully
		// but landing here is a peer speaking the wrong direction.
		s.logger.Error("unexpected request kind", "kind", message.Kind(), "from", req.From)
	}
}

func (s *Server) handleLogin(m *chat.LoginRequest, req *messaging.Request) {
	held, joins := s.state.login(m.Who)
	s.reply(req, chat.LoginReply{Held: held})
	for _, b := range joins {
		s.announce(b, chat.RoomAnnouncement{
			Who: m.Who, Room: b.room, Announcement: chat.AnnounceJoin,
		})
	}
}

func (s *Server) handleLogout(m *chat.LogoutRequest, req *messaging.Request) {
	disconnects := s.state.logout(m.Who)
	s.reply(req, chat.LogoutReply{})
	for _, b := range disconnects {
		s.announce(b, chat.RoomAnnouncement{
			Who: m.Who, Room: b.room, Announcement: chat.AnnounceDisconnect,
		})
	}
}

func (s *Server) handleJoin(m *chat.JoinRoomRequest, req *messaging.Request) {
	recipients, code := s.state.join(m.Who, m.Room)
	s.reply(req, chat.JoinRoomReply{Error: code})
	if code != "" {
		return
	}
	s.announce(roomBroadcast{room: m.Room, recipients: recipients}, chat.RoomAnnouncement{
		Who: m.Who, Room: m.Room, Announcement: chat.AnnounceJoin,
	})
}

func (s *Server) handleLeave(m *chat.LeaveRoomRequest, req *messaging.Request) {
	recipients, deleted, code := s.state.leave(m.Who, m.Room)
	s.reply(req, chat.LeaveRoomReply{Error: code})
	if code != "" || deleted {
		return
	}
	s.announce(roomBroadcast{room: m.Room, recipients: recipients}, chat.RoomAnnouncement{
		Who: m.Who, Room: m.Room, Announcement: chat.AnnounceLeave,
	})
}

func (s *Server) handleChat(m *chat.ChatMessage, req *messaging.Request) {
	recipients, offline, code := s.state.chat(m.From, m.Room)
	s.reply(req, chat.ChatReply{Error: code})
	if code != "" {
		return
	}

	encoded, err := chat.Encode(*m)
	if err != nil {
		s.logger.Error("encoding chat broadcast", "room", m.Room, "error", err)
		return
	}
	for _, member := range offline {
		member.held = append(member.held, encoded)
	}
	s.fanOut(recipients, encoded)
}

// reply answers the request being handled. Failures are logged, not
// surfaced — the requester's own timeout/stop handling covers a lost
// reply.
func (s *Server) reply(req *messaging.Request, message chat.Message) {
	encoded, err := chat.Encode(message)
	if err != nil {
		s.logger.Error("encoding reply", "kind", message.Kind(), "error", err)
		return
	}
	if err := req.Respond(encoded); err != nil {
		s.logger.Warn("sending reply", "to", req.From, "kind", message.Kind(), "error", err)
	}
}

func (s *Server) announce(b roomBroadcast, announcement chat.RoomAnnouncement) {
	encoded, err := chat.Encode(announcement)
	if err != nil {
		s.logger.Error("encoding announcement", "room", b.room, "error", err)
		return
	}
	s.fanOut(b.recipients, encoded)
}

// fanOut delivers one encoded message to each recipient on its own
// goroutine. The recipient set was decided synchronously by the
// triggering transition; only the delivery is concurrent, so a slow
// recipient never stalls the dispatch loop.
func (s *Server) fanOut(recipients []string, encoded codec.RawMessage) {
	for _, recipient := range recipients {
		s.broadcasts.Add(1)
		go func(to string) {
			defer s.broadcasts.Done()
			if err := s.endpoint.SendAsync(context.Background(), to, encoded); err != nil {
				s.logger.Warn("broadcast delivery failed", "to", to, "error", err)
			}
		}(recipient)
	}
}

// Clean discards the snapshot in stateDir so the next server starts
// empty. Call it on a stopped server's state directory; a missing
// snapshot is not an error.
func Clean(stateDir string) error {
	return removeSnapshot(stateDir)
}
