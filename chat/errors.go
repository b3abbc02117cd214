// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "errors"

// ErrorCode is a domain rejection carried inside a reply payload.
type ErrorCode string

// Domain error codes. An empty code means success.
const (
	CodeNotInRoom     ErrorCode = "NOT_IN_ROOM"
	CodeAlreadyInRoom ErrorCode = "ALREADY_IN_ROOM"
	CodeNoSuchRoom    ErrorCode = "NO_SUCH_ROOM"
)

// Error is a domain rejection surfaced by the client facade. Callers
// use errors.As to extract the code, or [IsError] for a one-liner:
//
//	if chat.IsError(err, chat.CodeAlreadyInRoom) { ... }
type Error struct {
	Code ErrorCode
}

func (e *Error) Error() string {
	return "chat: " + string(e.Code)
}

// IsError checks whether err is a *Error with the given code.
func IsError(err error, code ErrorCode) bool {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Code == code
	}
	return false
}

// errorFor translates a reply's code field into a typed error, or nil
// for success.
func errorFor(code ErrorCode) error {
	if code == "" {
		return nil
	}
	return &Error{Code: code}
}
