// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging provides Parlor's reliable addressed-messaging
// endpoint: correlation-aware exchange of opaque payloads between
// named endpoints over a [transport.Network].
//
// An [Endpoint] binds one address and offers three delivery shapes:
// fire-and-forget ([Endpoint.SendAsync]), blocking request/response
// ([Endpoint.Call]), and replies from inside the inbound handler
// ([Request.Respond]). Every outbound envelope carries a fresh local
// id; a reply names the id it answers, which is how the dispatch loop
// matches it back to the blocked caller.
//
// Each endpoint runs at most one dispatch loop. The loop processes
// inbound envelopes strictly one at a time — the next envelope is not
// read until the handler returns — which is what lets a handler own
// mutable state without locks. Blocking calls park the calling
// goroutine, never the loop; the loop resolves the wait through a
// buffered single-slot handoff and moves on. Stopping the loop
// releases every parked caller with [ErrStopped] and blocks until the
// loop has exited, so afterward no handler is running and state the
// handlers owned may be read freely.
//
// An unmatched reply (its waiter already gave up or the id is unknown)
// is dropped silently: the original caller has already moved on, so
// there is nobody left to tell.
package messaging
