// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parlor-chat/parlor/lib/testutil"
)

func TestMemorySendReceive(t *testing.T) {
	network := NewMemory()
	alice, err := network.Attach("alice")
	if err != nil {
		t.Fatalf("Attach alice: %v", err)
	}
	bob, err := network.Attach("bob")
	if err != nil {
		t.Fatalf("Attach bob: %v", err)
	}

	if err := alice.Send(context.Background(), "bob", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	delivery := testutil.RequireReceive(t, bob.Receive(), 5*time.Second, "delivery to bob")
	if delivery.From != "alice" {
		t.Errorf("From = %q, want alice", delivery.From)
	}
	if string(delivery.Data) != "hello" {
		t.Errorf("Data = %q, want hello", delivery.Data)
	}
}

func TestMemoryDuplicateAttach(t *testing.T) {
	network := NewMemory()
	if _, err := network.Attach("alice"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := network.Attach("alice"); !errors.Is(err, ErrAddressTaken) {
		t.Fatalf("second Attach error = %v, want ErrAddressTaken", err)
	}
}

func TestMemoryReattachAfterClose(t *testing.T) {
	network := NewMemory()
	conn, err := network.Attach("alice")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := network.Attach("alice"); err != nil {
		t.Fatalf("re-Attach after Close: %v", err)
	}
}

func TestMemorySendToUnknownAddress(t *testing.T) {
	network := NewMemory()
	alice, err := network.Attach("alice")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := alice.Send(context.Background(), "ghost", []byte("x")); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Send error = %v, want ErrUnreachable", err)
	}
}

func TestMemorySendOnClosedConn(t *testing.T) {
	network := NewMemory()
	alice, _ := network.Attach("alice")
	network.Attach("bob")
	alice.Close()
	if err := alice.Send(context.Background(), "bob", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send error = %v, want ErrClosed", err)
	}
}

func TestMemorySendCopiesPayload(t *testing.T) {
	network := NewMemory()
	alice, _ := network.Attach("alice")
	bob, _ := network.Attach("bob")

	data := []byte("original")
	if err := alice.Send(context.Background(), "bob", data); err != nil {
		t.Fatalf("Send: %v", err)
	}
	data[0] = 'X'

	delivery := testutil.RequireReceive(t, bob.Receive(), 5*time.Second, "delivery to bob")
	if string(delivery.Data) != "original" {
		t.Errorf("Data = %q, sender mutation leaked into delivery", delivery.Data)
	}
}
