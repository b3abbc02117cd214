// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the blocking session facade over the Parlor
// protocol. Every method sends one request and waits for the server's
// reply; protocol errors come back as typed [chat.Error] values that
// [chat.IsError] can inspect.
//
// Pushed traffic — room chatter and membership announcements — is
// delivered through the OnMessage and OnAnnouncement callbacks, set
// before [Dial]. Callbacks run on the client's dispatch goroutine,
// except that mail held while the client was offline is replayed on
// the goroutine calling [Client.Login]. A mutex serializes the two, so
// callbacks never overlap and a replay batch is never interleaved with
// live pushes; a slow callback delays everything behind it.
package client
