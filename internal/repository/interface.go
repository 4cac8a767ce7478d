package repository

import (
	"context"
	"errors"

	"github.com/dealbridge/chat-service/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// RoomRepository defines the interface for room data persistence.
type RoomRepository interface {
	// FindOrCreate inserts the room if absent, keyed by its deterministic
	// id, and loads the existing row otherwise. It reports whether a new
	// row was created.
	FindOrCreate(ctx context.Context, room *domain.ChatRoom) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.ChatRoom, error)
	// ListByParticipant returns rooms where the participant holds the
	// given role, most recent activity first.
	ListByParticipant(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error)
	// ResetUnread zeroes the unread count for the given role's side.
	ResetUnread(ctx context.Context, roomID string, role domain.Role) error
}

// MessageRepository defines the interface for message data persistence.
type MessageRepository interface {
	// Append inserts the message and applies its denormalized room-side
	// effects (last-message summary, counterpart unread) in one
	// transaction, so a failure leaves neither the row nor the summary
	// behind.
	Append(ctx context.Context, msg *domain.Message) error
	// ListByRoom returns the full ordered history of a room: timestamp
	// ascending, insertion order breaking ties.
	ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error)
	// MarkAllRead flips the read flag on every message in the room not
	// sent by the viewer. It reports how many rows changed.
	MarkAllRead(ctx context.Context, roomID, viewerID string) (int64, error)
}
