// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/parlor-chat/parlor/lib/codec"
)

func TestEncodeDecodeChatMessage(t *testing.T) {
	raw, err := Encode(ChatMessage{From: "alice", Room: "lobby", Text: "hi"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	message, ok := decoded.(*ChatMessage)
	if !ok {
		t.Fatalf("decoded %T, want *ChatMessage", decoded)
	}
	if message.From != "alice" || message.Room != "lobby" || message.Text != "hi" {
		t.Errorf("decoded %+v", message)
	}
}

func TestDecodeCoversEveryKind(t *testing.T) {
	// One instance per catalogue shape; each must survive the wire
	// and come back as its own concrete type.
	messages := []Message{
		LoginRequest{Who: "a"},
		LoginReply{},
		LogoutRequest{Who: "a"},
		LogoutReply{},
		JoinRoomRequest{Who: "a", Room: "r"},
		JoinRoomReply{Error: CodeAlreadyInRoom},
		LeaveRoomRequest{Who: "a", Room: "r"},
		LeaveRoomReply{},
		ChatMessage{From: "a", Room: "r", Text: "t"},
		ChatReply{Error: CodeNotInRoom},
		RoomAnnouncement{Who: "a", Room: "r", Announcement: AnnounceDisconnect},
		AllRoomsRequest{},
		AllRoomsReply{Rooms: []string{"r"}},
		MyRoomsRequest{Who: "a"},
		MyRoomsReply{Rooms: []string{"r"}},
		RoomClientsRequest{Room: "r"},
		RoomClientsReply{Clients: []string{"a"}, Found: true},
	}
	for _, in := range messages {
		raw, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode %s: %v", in.Kind(), err)
		}
		out, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode %s: %v", in.Kind(), err)
		}
		if out.Kind() != in.Kind() {
			t.Errorf("kind %s decoded as %s", in.Kind(), out.Kind())
		}
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	body, _ := codec.Marshal(struct{}{})
	raw, err := codec.Marshal(wireMessage{Kind: "telepathy", Body: body})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = Decode(codec.RawMessage(raw))
	if err == nil {
		t.Fatal("Decode accepted an unknown kind")
	}
	if !strings.Contains(err.Error(), "protocol violation") {
		t.Errorf("error %v does not name the protocol violation", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(codec.RawMessage([]byte{0xff, 0x00})); err == nil {
		t.Fatal("Decode accepted garbage bytes")
	}
}

func TestReplyErrTranslation(t *testing.T) {
	if err := (JoinRoomReply{}).Err(); err != nil {
		t.Errorf("empty code yielded error %v", err)
	}

	err := (JoinRoomReply{Error: CodeAlreadyInRoom}).Err()
	if !IsError(err, CodeAlreadyInRoom) {
		t.Errorf("IsError(AlreadyInRoom) = false for %v", err)
	}
	if IsError(err, CodeNotInRoom) {
		t.Error("IsError matched the wrong code")
	}

	var chatErr *Error
	if !errors.As(err, &chatErr) {
		t.Fatalf("errors.As failed for %v", err)
	}
	if chatErr.Code != CodeAlreadyInRoom {
		t.Errorf("code = %s", chatErr.Code)
	}
}

func TestHeldMessagesNestInsideLoginReply(t *testing.T) {
	held, err := Encode(ChatMessage{From: "bob", Room: "lobby", Text: "missed you"})
	if err != nil {
		t.Fatalf("Encode held: %v", err)
	}
	raw, err := Encode(LoginReply{Held: []codec.RawMessage{held}})
	if err != nil {
		t.Fatalf("Encode reply: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	reply := decoded.(*LoginReply)
	if len(reply.Held) != 1 {
		t.Fatalf("held count = %d", len(reply.Held))
	}
	inner, err := Decode(reply.Held[0])
	if err != nil {
		t.Fatalf("Decode held: %v", err)
	}
	message := inner.(*ChatMessage)
	if message.Text != "missed you" {
		t.Errorf("held text = %q", message.Text)
	}
}
