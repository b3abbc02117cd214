// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat defines the closed message catalogue exchanged between
// Parlor clients and the server, plus the domain error codes carried
// inside replies.
//
// The catalogue is a tagged union: every shape implements [Message],
// [Encode] wraps it in a kind-tagged CBOR wrapper, and [Decode] maps
// the tag back to the concrete type. Decode covers every kind
// exhaustively and fails loudly on anything outside the set — an
// unknown kind is a protocol violation, never something to skip.
//
// Domain rejections (not in room, already in room, no such room) are
// not errors in transit: the server always answers, and the rejection
// rides inside the reply as an [ErrorCode]. The client facade turns
// the code into a typed [*Error] at the call site.
package chat
