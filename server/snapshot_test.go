// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"os"
	"testing"

	"github.com/parlor-chat/parlor/lib/codec"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := newServerState()
	s.login("alice")
	s.login("bob")
	s.join("alice", "lobby")
	s.join("bob", "lobby")
	s.join("bob", "games")
	s.logout("bob")
	s.client("bob").held = append(s.client("bob").held, codec.RawMessage{0xa0})

	if err := saveSnapshot(dir, s); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	restored, err := loadSnapshot(dir)
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}

	// Membership and held mail survive.
	if !equalSets(restored.roomsOf("alice"), []string{"lobby"}) {
		t.Fatalf("alice rooms = %v", restored.roomsOf("alice"))
	}
	if !equalSets(restored.roomsOf("bob"), []string{"lobby", "games"}) {
		t.Fatalf("bob rooms = %v", restored.roomsOf("bob"))
	}
	if got := restored.client("bob").held; len(got) != 1 || got[0][0] != 0xa0 {
		t.Fatalf("bob held = %v", got)
	}

	// Presence does not: everyone is offline and no room is online.
	if restored.client("alice").online {
		t.Fatal("alice restored online")
	}
	if len(restored.onlineRooms) != 0 {
		t.Fatalf("onlineRooms = %v, want empty", restored.roomsWithOnlineMembers())
	}
	checkInvariants(t, restored)
}

func TestSnapshotMissingMeansEmpty(t *testing.T) {
	s, err := loadSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if len(s.clients) != 0 || len(s.allRooms) != 0 {
		t.Fatal("missing snapshot did not yield empty state")
	}
}

func TestSnapshotEmptyDirDisablesPersistence(t *testing.T) {
	if err := saveSnapshot("", newServerState()); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	if _, err := loadSnapshot(""); err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if err := removeSnapshot(""); err != nil {
		t.Fatalf("removeSnapshot: %v", err)
	}
}

func TestSnapshotCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	s := newServerState()
	s.login("alice")
	s.join("alice", "lobby")
	if err := saveSnapshot(dir, s); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}

	path := snapshotPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	// Flip a bit near the end, inside the compressed payload.
	data[len(data)-3] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing corrupt snapshot: %v", err)
	}

	if _, err := loadSnapshot(dir); err == nil {
		t.Fatal("corrupt snapshot loaded without error")
	}
}

func TestSnapshotUnknownVersionRejected(t *testing.T) {
	dir := t.TempDir()
	data, err := codec.Marshal(snapshotFile{Version: snapshotVersion + 1})
	if err != nil {
		t.Fatalf("encoding container: %v", err)
	}
	if err := os.WriteFile(snapshotPath(dir), data, 0o644); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}
	if _, err := loadSnapshot(dir); err == nil {
		t.Fatal("unknown version loaded without error")
	}
}

func TestRemoveSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := saveSnapshot(dir, newServerState()); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	if err := removeSnapshot(dir); err != nil {
		t.Fatalf("removeSnapshot: %v", err)
	}
	if _, err := os.Stat(snapshotPath(dir)); !os.IsNotExist(err) {
		t.Fatal("snapshot still present after remove")
	}
	// Removing again is fine.
	if err := removeSnapshot(dir); err != nil {
		t.Fatalf("second removeSnapshot: %v", err)
	}
}
