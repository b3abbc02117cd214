// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the Parlor session state machine: the
// sole authority on who is online and who belongs to which room.
//
// All state lives behind the messaging endpoint's sequential dispatch
// loop. Every inbound request runs one transition — state mutation,
// reply, and broadcast-set decision — to completion before the next
// request is read, so the state needs no locking: the loop is the
// only writer and is never concurrent with itself. Broadcast delivery
// fans out on separate goroutines so a slow recipient cannot stall
// the loop, but the recipient set is always decided synchronously
// inside the triggering transition, from the membership at that
// instant.
//
// Between runs the full state persists as a snapshot: CBOR, lz4
// compressed, integrity-checked with a BLAKE3 digest. Stopping writes
// it, starting reads it, [Clean] discards it. A missing snapshot
// means a fresh empty server, never an error.
package server
