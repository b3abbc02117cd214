// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// ErrInvalidOperation marks local misuse of an endpoint: double-start,
// stop while stopped, calling without a running dispatch loop, or
// responding outside the inbound handler. Always a programmer error;
// never retried.
var ErrInvalidOperation = errors.New("messaging: invalid operation")

// ErrCommunication marks a transport-level failure or a correlated
// wait that was released without a reply. Use errors.Is to classify:
//
//	if errors.Is(err, messaging.ErrCommunication) { ... }
var ErrCommunication = errors.New("messaging: communication failure")

// ErrStopped is the communication failure handed to callers parked in
// a correlated wait when the dispatch loop stops underneath them.
var ErrStopped = fmt.Errorf("%w: endpoint stopped while awaiting reply", ErrCommunication)

// ErrCallTimeout is the communication failure returned when a call's
// configured timeout (WithCallTimeout) elapses before the reply.
var ErrCallTimeout = fmt.Errorf("%w: call timed out", ErrCommunication)
