// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sort"
	"testing"

	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/lib/codec"
)

// checkInvariants asserts the structural invariants every transition
// must preserve: online ⊆ all per room, index keys match emptiness,
// and the per-client room sets mirror the per-room member sets.
func checkInvariants(t *testing.T, s *serverState) {
	t.Helper()

	for name, room := range s.allRooms {
		if len(room.all) == 0 {
			t.Errorf("room %q indexed in allRooms with no members", name)
		}
		for member := range room.online {
			if _, ok := room.all[member]; !ok {
				t.Errorf("room %q: %q online but not a member", name, member)
			}
		}
		indexed := false
		if indexedRoom, ok := s.onlineRooms[name]; ok {
			indexed = true
			if indexedRoom != room {
				t.Errorf("room %q: onlineRooms holds a different record", name)
			}
		}
		if want := len(room.online) > 0; indexed != want {
			t.Errorf("room %q: onlineRooms presence = %v, want %v", name, indexed, want)
		}
		for member := range room.all {
			client, ok := s.clients[member]
			if !ok {
				t.Errorf("room %q member %q has no client record", name, member)
				continue
			}
			if _, ok := client.rooms[name]; !ok {
				t.Errorf("room %q member %q does not list the room", name, member)
			}
		}
	}

	for name := range s.onlineRooms {
		if _, ok := s.allRooms[name]; !ok {
			t.Errorf("room %q in onlineRooms but not allRooms", name)
		}
	}

	for address, client := range s.clients {
		for name := range client.rooms {
			room, ok := s.allRooms[name]
			if !ok {
				t.Errorf("client %q lists unknown room %q", address, name)
				continue
			}
			if _, ok := room.all[address]; !ok {
				t.Errorf("client %q lists room %q but is not a member", address, name)
			}
			_, memberOnline := room.online[address]
			if memberOnline != client.online {
				t.Errorf("client %q online=%v but room %q online set says %v",
					address, client.online, name, memberOnline)
			}
		}
	}
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	a, b = sorted(a), sorted(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestJoinCreatesRoom(t *testing.T) {
	s := newServerState()
	s.login("alice")

	recipients, code := s.join("alice", "lobby")
	if code != "" {
		t.Fatalf("join returned code %q", code)
	}
	if len(recipients) != 0 {
		t.Fatalf("first join announced to %v, want nobody", recipients)
	}
	if _, ok := s.allRooms["lobby"]; !ok {
		t.Fatal("room not created")
	}
	if _, ok := s.onlineRooms["lobby"]; !ok {
		t.Fatal("room with an online member missing from onlineRooms")
	}
	checkInvariants(t, s)
}

func TestJoinAlreadyInRoom(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.join("alice", "lobby")

	recipients, code := s.join("alice", "lobby")
	if code != chat.CodeAlreadyInRoom {
		t.Fatalf("code = %q, want %q", code, chat.CodeAlreadyInRoom)
	}
	if recipients != nil {
		t.Fatalf("failed join produced recipients %v", recipients)
	}
	if len(s.allRooms["lobby"].all) != 1 {
		t.Fatal("failed join changed membership")
	}
	checkInvariants(t, s)
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")

	recipients, code := s.join("bob", "lobby")
	if code != "" {
		t.Fatalf("join returned code %q", code)
	}
	if !equalSets(recipients, []string{"alice"}) {
		t.Fatalf("recipients = %v, want [alice]", recipients)
	}
	checkInvariants(t, s)
}

func TestLeaveNotInRoom(t *testing.T) {
	s := newServerState()
	s.login("alice")

	_, _, code := s.leave("alice", "lobby")
	if code != chat.CodeNotInRoom {
		t.Fatalf("code = %q, want %q", code, chat.CodeNotInRoom)
	}
	checkInvariants(t, s)
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.join("alice", "lobby")

	recipients, deleted, code := s.leave("alice", "lobby")
	if code != "" {
		t.Fatalf("leave returned code %q", code)
	}
	if !deleted {
		t.Fatal("room with no members left should be deleted")
	}
	if len(recipients) != 0 {
		t.Fatalf("deleted room produced recipients %v", recipients)
	}
	if _, ok := s.allRooms["lobby"]; ok {
		t.Fatal("room still in allRooms")
	}
	if _, ok := s.onlineRooms["lobby"]; ok {
		t.Fatal("room still in onlineRooms")
	}
	checkInvariants(t, s)
}

func TestLeaveKeepsRoomForOfflineMembers(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")
	s.logout("bob")

	// Alice leaves; bob is offline but still a member, so the room
	// survives and nobody hears the announcement.
	recipients, deleted, code := s.leave("alice", "lobby")
	if code != "" || deleted {
		t.Fatalf("leave = (deleted=%v, code=%q)", deleted, code)
	}
	if len(recipients) != 0 {
		t.Fatalf("recipients = %v, want none (bob is offline)", recipients)
	}
	if _, ok := s.allRooms["lobby"]; !ok {
		t.Fatal("room deleted while an offline member remains")
	}
	if _, ok := s.onlineRooms["lobby"]; ok {
		t.Fatal("room with nobody online still in onlineRooms")
	}
	checkInvariants(t, s)
}

func TestLogoutRetainsMembership(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")

	disconnects := s.logout("alice")
	if len(disconnects) != 1 || disconnects[0].room != "lobby" {
		t.Fatalf("disconnect broadcasts = %v", disconnects)
	}
	if !equalSets(disconnects[0].recipients, []string{"bob"}) {
		t.Fatalf("recipients = %v, want [bob]", disconnects[0].recipients)
	}
	if _, ok := s.clients["alice"].rooms["lobby"]; !ok {
		t.Fatal("logout dropped room membership")
	}
	checkInvariants(t, s)
}

func TestLoginResurfacesRooms(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")
	s.logout("alice")

	held, joins := s.login("alice")
	if len(held) != 0 {
		t.Fatalf("held = %d messages, want none", len(held))
	}
	if len(joins) != 1 || joins[0].room != "lobby" {
		t.Fatalf("join broadcasts = %v", joins)
	}
	if !equalSets(joins[0].recipients, []string{"bob"}) {
		t.Fatalf("recipients = %v, want [bob]", joins[0].recipients)
	}
	checkInvariants(t, s)
}

func TestChatSplitsOnlineAndOffline(t *testing.T) {
	s := newServerState()
	for _, who := range []string{"alice", "bob", "carol"} {
		s.login(who)
		s.join(who, "lobby")
	}
	s.logout("carol")

	recipients, offline, code := s.chat("alice", "lobby")
	if code != "" {
		t.Fatalf("chat returned code %q", code)
	}
	if !equalSets(recipients, []string{"bob"}) {
		t.Fatalf("recipients = %v, want [bob]", recipients)
	}
	if len(offline) != 1 || offline[0].address != "carol" {
		t.Fatalf("offline = %v, want [carol]", offline)
	}
	checkInvariants(t, s)
}

func TestChatNotInRoom(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("bob", "lobby")

	_, _, code := s.chat("alice", "lobby")
	if code != chat.CodeNotInRoom {
		t.Fatalf("code = %q, want %q", code, chat.CodeNotInRoom)
	}
	checkInvariants(t, s)
}

func TestHeldDrainedOnLogin(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.logout("alice")

	one := codec.RawMessage{0x01}
	two := codec.RawMessage{0x02}
	s.client("alice").held = append(s.client("alice").held, one, two)

	held, _ := s.login("alice")
	if len(held) != 2 {
		t.Fatalf("held = %d messages, want 2", len(held))
	}
	if len(s.client("alice").held) != 0 {
		t.Fatal("mailbox not drained")
	}

	// A second login must not replay the mail again.
	s.logout("alice")
	held, _ = s.login("alice")
	if len(held) != 0 {
		t.Fatalf("second login replayed %d messages", len(held))
	}
}

func TestRoomsWithOnlineMembers(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")
	s.join("bob", "games")
	s.logout("bob")

	// lobby still has alice online; games has only the offline bob.
	rooms := s.roomsWithOnlineMembers()
	if !equalSets(rooms, []string{"lobby"}) {
		t.Fatalf("rooms = %v, want [lobby]", rooms)
	}
}

func TestRoomsOf(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.join("alice", "lobby")
	s.join("alice", "games")
	s.logout("alice")

	rooms := s.roomsOf("alice")
	if !equalSets(rooms, []string{"lobby", "games"}) {
		t.Fatalf("rooms = %v, want [games lobby]", rooms)
	}
}

func TestRoomClients(t *testing.T) {
	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")
	s.logout("bob")

	clients, found := s.roomClients("lobby")
	if !found {
		t.Fatal("existing room reported not found")
	}
	if !equalSets(clients, []string{"alice"}) {
		t.Fatalf("clients = %v, want [alice]", clients)
	}

	// An existing room with nobody online is still found, just empty.
	s.logout("alice")
	clients, found = s.roomClients("lobby")
	if !found {
		t.Fatal("room with only offline members reported not found")
	}
	if len(clients) != 0 {
		t.Fatalf("clients = %v, want none", clients)
	}

	// A room that never existed is the only not-found case.
	if _, found := s.roomClients("ghost"); found {
		t.Fatal("nonexistent room reported found")
	}
}
