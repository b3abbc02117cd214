// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"

	"github.com/parlor-chat/parlor/lib/codec"
)

// Kind tags one catalogue shape on the wire.
type Kind string

// The complete catalogue. Anything outside this set is a protocol
// violation.
const (
	KindLoginRequest       Kind = "login"
	KindLoginReply         Kind = "login_reply"
	KindLogoutRequest      Kind = "logout"
	KindLogoutReply        Kind = "logout_reply"
	KindJoinRoomRequest    Kind = "join_room"
	KindJoinRoomReply      Kind = "join_room_reply"
	KindLeaveRoomRequest   Kind = "leave_room"
	KindLeaveRoomReply     Kind = "leave_room_reply"
	KindChatMessage        Kind = "chat_message"
	KindChatReply          Kind = "chat_reply"
	KindRoomAnnouncement   Kind = "room_announcement"
	KindAllRoomsRequest    Kind = "all_rooms"
	KindAllRoomsReply      Kind = "all_rooms_reply"
	KindMyRoomsRequest     Kind = "my_rooms"
	KindMyRoomsReply       Kind = "my_rooms_reply"
	KindRoomClientsRequest Kind = "room_clients"
	KindRoomClientsReply   Kind = "room_clients_reply"
)

// Message is one catalogue shape. The union is closed: only types in
// this package implement it, and Decode covers them all.
type Message interface {
	Kind() Kind
	catalogue()
}

// LoginRequest marks the sender online. The reply replays content
// held while the sender was offline.
type LoginRequest struct {
	Who string `cbor:"who"`
}

// LoginReply acknowledges a login. Held carries the encoded messages
// queued for the client while it was offline, oldest first; the
// client replays them through its normal inbound routing before the
// login call returns.
type LoginReply struct {
	Held []codec.RawMessage `cbor:"held,omitempty"`
}

// LogoutRequest marks the sender offline. Room memberships are
// retained for the next login.
type LogoutRequest struct {
	Who string `cbor:"who"`
}

// LogoutReply acknowledges a logout, letting the client stop its
// dispatch loop knowing the server has flipped it offline.
type LogoutReply struct{}

// JoinRoomRequest adds the sender to a room, creating it if absent.
type JoinRoomRequest struct {
	Who  string `cbor:"who"`
	Room string `cbor:"room"`
}

// JoinRoomReply carries CodeAlreadyInRoom when the sender was already
// a member.
type JoinRoomReply struct {
	Error ErrorCode `cbor:"error,omitempty"`
}

// Err translates the reply into a typed error, nil on success.
func (r JoinRoomReply) Err() error { return errorFor(r.Error) }

// LeaveRoomRequest removes the sender from a room.
type LeaveRoomRequest struct {
	Who  string `cbor:"who"`
	Room string `cbor:"room"`
}

// LeaveRoomReply carries CodeNotInRoom when the sender was not a
// member.
type LeaveRoomReply struct {
	Error ErrorCode `cbor:"error,omitempty"`
}

// Err translates the reply into a typed error, nil on success.
func (r LeaveRoomReply) Err() error { return errorFor(r.Error) }

// ChatMessage is chat text for a room. Client→server it is a request
// (answered by ChatReply); server→client it is the forwarded copy
// delivered to every other online member.
type ChatMessage struct {
	From string `cbor:"from"`
	Room string `cbor:"room"`
	Text string `cbor:"text"`
}

// ChatReply carries CodeNotInRoom when the sender is not a member of
// the room it tried to speak in.
type ChatReply struct {
	Error ErrorCode `cbor:"error,omitempty"`
}

// Err translates the reply into a typed error, nil on success.
func (r ChatReply) Err() error { return errorFor(r.Error) }

// AnnouncementKind says what a RoomAnnouncement announces.
type AnnouncementKind string

const (
	AnnounceJoin       AnnouncementKind = "JOIN"
	AnnounceLeave      AnnouncementKind = "LEAVE"
	AnnounceDisconnect AnnouncementKind = "DISCONNECT"
)

// RoomAnnouncement is a server-originated presence notice about
// another member of a room. It has no reply.
type RoomAnnouncement struct {
	Who          string           `cbor:"who"`
	Room         string           `cbor:"room"`
	Announcement AnnouncementKind `cbor:"announcement"`
}

// AllRoomsRequest asks for every room with at least one online member.
type AllRoomsRequest struct{}

// AllRoomsReply lists room names, unordered.
type AllRoomsReply struct {
	Rooms []string `cbor:"rooms,omitempty"`
}

// MyRoomsRequest asks for every room the sender has joined, online or
// not.
type MyRoomsRequest struct {
	Who string `cbor:"who"`
}

// MyRoomsReply lists room names, unordered.
type MyRoomsReply struct {
	Rooms []string `cbor:"rooms,omitempty"`
}

// RoomClientsRequest asks for the online members of one room. The
// sender does not have to be a member.
type RoomClientsRequest struct {
	Room string `cbor:"room"`
}

// RoomClientsReply lists the online members of the room. Found is
// false when the room does not exist at all, distinguishing that from
// an existing room where everyone is offline.
type RoomClientsReply struct {
	Clients []string `cbor:"clients,omitempty"`
	Found   bool     `cbor:"found"`
}

func (LoginRequest) Kind() Kind        { return KindLoginRequest }
func (LoginReply) Kind() Kind          { return KindLoginReply }
func (LogoutRequest) Kind() Kind       { return KindLogoutRequest }
func (LogoutReply) Kind() Kind         { return KindLogoutReply }
func (JoinRoomRequest) Kind() Kind     { return KindJoinRoomRequest }
func (JoinRoomReply) Kind() Kind       { return KindJoinRoomReply }
func (LeaveRoomRequest) Kind() Kind    { return KindLeaveRoomRequest }
func (LeaveRoomReply) Kind() Kind      { return KindLeaveRoomReply }
func (ChatMessage) Kind() Kind         { return KindChatMessage }
func (ChatReply) Kind() Kind           { return KindChatReply }
func (RoomAnnouncement) Kind() Kind    { return KindRoomAnnouncement }
func (AllRoomsRequest) Kind() Kind     { return KindAllRoomsRequest }
func (AllRoomsReply) Kind() Kind       { return KindAllRoomsReply }
func (MyRoomsRequest) Kind() Kind      { return KindMyRoomsRequest }
func (MyRoomsReply) Kind() Kind        { return KindMyRoomsReply }
func (RoomClientsRequest) Kind() Kind  { return KindRoomClientsRequest }
func (RoomClientsReply) Kind() Kind    { return KindRoomClientsReply }

func (LoginRequest) catalogue()       {}
func (LoginReply) catalogue()         {}
func (LogoutRequest) catalogue()      {}
func (LogoutReply) catalogue()        {}
func (JoinRoomRequest) catalogue()    {}
func (JoinRoomReply) catalogue()      {}
func (LeaveRoomRequest) catalogue()   {}
func (LeaveRoomReply) catalogue()     {}
func (ChatMessage) catalogue()        {}
func (ChatReply) catalogue()          {}
func (RoomAnnouncement) catalogue()   {}
func (AllRoomsRequest) catalogue()    {}
func (AllRoomsReply) catalogue()      {}
func (MyRoomsRequest) catalogue()     {}
func (MyRoomsReply) catalogue()       {}
func (RoomClientsRequest) catalogue() {}
func (RoomClientsReply) catalogue()   {}

// wireMessage is the kind-tagged wrapper every Message travels in.
type wireMessage struct {
	Kind Kind             `cbor:"kind"`
	Body codec.RawMessage `cbor:"body"`
}

// Encode wraps m in its kind tag and returns the CBOR bytes, ready to
// ride in a messaging envelope or a held mailbox.
func Encode(m Message) (codec.RawMessage, error) {
	body, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("chat: encode %s body: %w", m.Kind(), err)
	}
	data, err := codec.Marshal(wireMessage{Kind: m.Kind(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("chat: encode %s wrapper: %w", m.Kind(), err)
	}
	return codec.RawMessage(data), nil
}

// Decode maps raw bytes back to the concrete catalogue shape. A kind
// outside the catalogue is a protocol violation and decodes to an
// error, never to a silently-ignored value.
func Decode(raw codec.RawMessage) (Message, error) {
	var wire wireMessage
	if err := codec.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("chat: decode wrapper: %w", err)
	}

	var message Message
	switch wire.Kind {
	case KindLoginRequest:
		message = &LoginRequest{}
	case KindLoginReply:
		message = &LoginReply{}
	case KindLogoutRequest:
		message = &LogoutRequest{}
	case KindLogoutReply:
		message = &LogoutReply{}
	case KindJoinRoomRequest:
		message = &JoinRoomRequest{}
	case KindJoinRoomReply:
		message = &JoinRoomReply{}
	case KindLeaveRoomRequest:
		message = &LeaveRoomRequest{}
	case KindLeaveRoomReply:
		message = &LeaveRoomReply{}
	case KindChatMessage:
		message = &ChatMessage{}
	case KindChatReply:
		message = &ChatReply{}
	case KindRoomAnnouncement:
		message = &RoomAnnouncement{}
	case KindAllRoomsRequest:
		message = &AllRoomsRequest{}
	case KindAllRoomsReply:
		message = &AllRoomsReply{}
	case KindMyRoomsRequest:
		message = &MyRoomsRequest{}
	case KindMyRoomsReply:
		message = &MyRoomsReply{}
	case KindRoomClientsRequest:
		message = &RoomClientsRequest{}
	case KindRoomClientsReply:
		message = &RoomClientsReply{}
	default:
		return nil, fmt.Errorf("chat: protocol violation: unknown message kind %q", wire.Kind)
	}

	if err := codec.Unmarshal(wire.Body, message); err != nil {
		return nil, fmt.Errorf("chat: decode %s body: %w", wire.Kind, err)
	}
	return message, nil
}
