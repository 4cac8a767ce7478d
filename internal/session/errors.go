package session

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage rejects whitespace-only sends before any I/O.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrNoActiveRoom rejects message operations with no room open.
	ErrNoActiveRoom = errors.New("no active room")
	// ErrUnknownRoom rejects opening a room id outside the loaded set.
	ErrUnknownRoom = errors.New("unknown room id")
	// ErrSessionClosed rejects operations after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// LoadError marks a failed room-list or message-history load. It is
// recoverable: the caller may retry the load and the session keeps serving
// the last good state.
type LoadError struct {
	Op  string // "rooms" or "messages"
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SendError marks a message that could not be persisted after its
// optimistic insert was rolled back. Content carries the original text so
// the caller can requeue it for the user.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send message: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// CreateRoomError marks a failed room creation. No partial room state is
// left behind.
type CreateRoomError struct {
	Err error
}

func (e *CreateRoomError) Error() string {
	return fmt.Sprintf("failed to create room: %v", e.Err)
}

func (e *CreateRoomError) Unwrap() error { return e.Err }
