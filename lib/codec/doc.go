// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parlor's standard CBOR encoding configuration.
//
// Everything that crosses a process boundary or touches disk goes
// through this package: transport frames, message envelopes, the chat
// message catalogue, and server state snapshots. Centralizing the
// encoder configuration means every package encodes identically
// without duplicating setup.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which is what
// makes snapshot checksums meaningful.
package codec
