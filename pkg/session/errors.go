package session

import "errors"

var (
	// ErrSessionExists is returned by CreateSession when the caller
	// supplies a session id that is already taken.
	ErrSessionExists = errors.New("session: id already exists")

	// ErrSessionNotFound is returned by AppendEvent when the target
	// session row is gone. GetSession reports absence as (nil, nil)
	// instead.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrInvalidEvent is returned by AppendEvent for events that carry
	// no content. Every persisted event must have content.
	ErrInvalidEvent = errors.New("session: event has no content")
)
