package service

import (
	"context"

	"github.com/dealbridge/chat-service/internal/domain"
)

// ChatService is the authoritative store boundary for rooms and messages.
// The HTTP handler, the websocket push path, and the embedded client
// session all consume this interface.
type ChatService interface {
	// FindOrCreateRoom returns the room for the spec's participant pair
	// and memo, creating it atomically when absent.
	FindOrCreateRoom(ctx context.Context, spec domain.CreateRoomSpec) (*domain.ChatRoom, error)
	// ListRooms returns a participant's rooms, most recent activity first.
	ListRooms(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error)
	GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error)
	// GetMessages returns a room's full ordered history.
	GetMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	// AppendMessage finalizes and persists a message, updates the room
	// summary and unread accounting, and notifies subscribers.
	AppendMessage(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error)
	// MarkAllRead marks every message in the room read for the viewer.
	MarkAllRead(ctx context.Context, roomID, viewerID string) error
	// TotalUnread returns the participant's aggregate unread badge.
	TotalUnread(ctx context.Context, participantID string, role domain.Role) (int, error)
}
