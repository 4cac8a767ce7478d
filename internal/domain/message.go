package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// provisionalPrefix marks client-assigned ids awaiting server confirmation.
const provisionalPrefix = "tmp_"

// Message is a single chat message. Messages are append-only; the only
// mutation after creation is the read flag flipping false → true.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderType Role      `json:"sender_type"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// NewMessageID returns a finalized server-side message id.
func NewMessageID() string {
	return uuid.New().String()
}

// NewProvisionalID returns a client-side id for an optimistic message.
func NewProvisionalID() string {
	return fmt.Sprintf("%s%s", provisionalPrefix, uuid.New().String())
}

// IsProvisional reports whether the message still carries a client-assigned id.
func (m *Message) IsProvisional() bool {
	return strings.HasPrefix(m.ID, provisionalPrefix)
}

// ValidContent reports whether the content survives trimming. Empty and
// whitespace-only messages are rejected before any I/O happens.
func ValidContent(content string) bool {
	return strings.TrimSpace(content) != ""
}

// Preview returns the denormalized last-message summary stored on the room.
func (m *Message) Preview() string {
	const max = 140
	if len(m.Content) <= max {
		return m.Content
	}
	return m.Content[:max]
}
