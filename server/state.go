// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/lib/codec"
)

// clientRecord is everything the server knows about one client. Born
// on first login or first reference, never destroyed — logout only
// flips online, so membership survives for the next login.
type clientRecord struct {
	address string
	online  bool

	// rooms is the set of room names the client belongs to, online
	// or not.
	rooms map[string]struct{}

	// held queues encoded messages that arrived while the client was
	// offline, oldest first. Drained into the login reply.
	held []codec.RawMessage
}

// roomRecord is one room's dual membership view. Invariant:
// online ⊆ all. A room exists only while all is non-empty.
type roomRecord struct {
	name   string
	all    map[string]struct{}
	online map[string]struct{}
}

// serverState is the authoritative client and room bookkeeping. Owned
// exclusively by the dispatch loop; nothing else reads or writes it.
//
// Index invariants: a name keys onlineRooms iff that room's online
// set is non-empty, and keys allRooms iff its all set is non-empty.
type serverState struct {
	clients     map[string]*clientRecord
	allRooms    map[string]*roomRecord
	onlineRooms map[string]*roomRecord
}

func newServerState() *serverState {
	return &serverState{
		clients:     make(map[string]*clientRecord),
		allRooms:    make(map[string]*roomRecord),
		onlineRooms: make(map[string]*roomRecord),
	}
}

// client returns the record for address, creating it on first
// reference.
func (s *serverState) client(address string) *clientRecord {
	record, ok := s.clients[address]
	if !ok {
		record = &clientRecord{
			address: address,
			rooms:   make(map[string]struct{}),
		}
		s.clients[address] = record
	}
	return record
}

// roomBroadcast is one room's recipient set, decided at transition
// time. Membership changes after the decision must not affect it.
type roomBroadcast struct {
	room       string
	recipients []string
}

// othersOnline snapshots the online members of room excluding who.
func (r *roomRecord) othersOnline(who string) []string {
	others := make([]string, 0, len(r.online))
	for member := range r.online {
		if member != who {
			others = append(others, member)
		}
	}
	return others
}

// login marks who online and re-surfaces it in every room it already
// belongs to. Returns the held mailbox (drained) and one JOIN
// broadcast set per affected room.
func (s *serverState) login(who string) (held []codec.RawMessage, joins []roomBroadcast) {
	record := s.client(who)
	record.online = true

	for name := range record.rooms {
		room := s.allRooms[name]
		room.online[who] = struct{}{}
		s.onlineRooms[name] = room
		if others := room.othersOnline(who); len(others) > 0 {
			joins = append(joins, roomBroadcast{room: name, recipients: others})
		}
	}

	held = record.held
	record.held = nil
	return held, joins
}

// logout marks who offline. Room membership is retained. Returns one
// DISCONNECT broadcast set per room the client belongs to.
func (s *serverState) logout(who string) (disconnects []roomBroadcast) {
	record := s.client(who)
	record.online = false

	for name := range record.rooms {
		room := s.allRooms[name]
		delete(room.online, who)
		if len(room.online) == 0 {
			delete(s.onlineRooms, name)
		}
		if others := room.othersOnline(who); len(others) > 0 {
			disconnects = append(disconnects, roomBroadcast{room: name, recipients: others})
		}
	}
	return disconnects
}

// join adds who to room, creating the room if absent. Fails with
// CodeAlreadyInRoom (state unchanged) when who is already a member.
func (s *serverState) join(who, roomName string) (recipients []string, code chat.ErrorCode) {
	record := s.client(who)
	if _, member := record.rooms[roomName]; member {
		return nil, chat.CodeAlreadyInRoom
	}

	room, ok := s.allRooms[roomName]
	if !ok {
		room = &roomRecord{
			name:   roomName,
			all:    make(map[string]struct{}),
			online: make(map[string]struct{}),
		}
		s.allRooms[roomName] = room
	}

	record.rooms[roomName] = struct{}{}
	room.all[who] = struct{}{}
	room.online[who] = struct{}{}
	s.onlineRooms[roomName] = room

	return room.othersOnline(who), ""
}

// leave removes who from room. The room is destroyed the instant its
// full membership reaches zero. Fails with CodeNotInRoom (state
// unchanged) when who is not a member. The LEAVE broadcast is skipped
// when the room was deleted — there is nobody left to tell.
func (s *serverState) leave(who, roomName string) (recipients []string, deleted bool, code chat.ErrorCode) {
	record := s.client(who)
	if _, member := record.rooms[roomName]; !member {
		return nil, false, chat.CodeNotInRoom
	}

	room := s.allRooms[roomName]
	delete(record.rooms, roomName)
	delete(room.all, who)
	delete(room.online, who)
	if len(room.online) == 0 {
		delete(s.onlineRooms, roomName)
	}
	if len(room.all) == 0 {
		delete(s.allRooms, roomName)
		return nil, true, ""
	}

	return room.othersOnline(who), false, ""
}

// chat validates that who may speak in room and decides delivery: the
// other online members get the message now, the offline members get
// it held for their next login. Membership is only read, never
// changed.
func (s *serverState) chat(who, roomName string) (recipients []string, offline []*clientRecord, code chat.ErrorCode) {
	record := s.client(who)
	if _, member := record.rooms[roomName]; !member {
		return nil, nil, chat.CodeNotInRoom
	}

	room := s.allRooms[roomName]
	for member := range room.all {
		if member == who {
			continue
		}
		if _, isOnline := room.online[member]; isOnline {
			recipients = append(recipients, member)
		} else {
			offline = append(offline, s.client(member))
		}
	}
	return recipients, offline, ""
}

// roomsWithOnlineMembers lists the onlineRooms index keys.
func (s *serverState) roomsWithOnlineMembers() []string {
	rooms := make([]string, 0, len(s.onlineRooms))
	for name := range s.onlineRooms {
		rooms = append(rooms, name)
	}
	return rooms
}

// roomsOf lists every room who belongs to, online or not.
func (s *serverState) roomsOf(who string) []string {
	record := s.client(who)
	rooms := make([]string, 0, len(record.rooms))
	for name := range record.rooms {
		rooms = append(rooms, name)
	}
	return rooms
}

// roomClients lists the online members of room. found is false when
// the room does not exist at all.
func (s *serverState) roomClients(roomName string) (clients []string, found bool) {
	room, ok := s.allRooms[roomName]
	if !ok {
		return nil, false
	}
	clients = make([]string, 0, len(room.online))
	for member := range room.online {
		clients = append(clients, member)
	}
	return clients, true
}
