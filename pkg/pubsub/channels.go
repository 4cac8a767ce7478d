package pubsub

import "fmt"

// Channel naming conventions for the chat system.
const (
	// Per-participant room-list updates.
	ChannelParticipantRooms = "chat:participant:%s:rooms"

	// Per-room message updates.
	ChannelRoomMessages = "chat:room:%s:messages"
)

// Event types.
const (
	EventRoomUpserted    = "room_upserted"
	EventMessageAppended = "message_appended"
	EventMessagesRead    = "messages_read"
)

// ParticipantRoomsChannel returns the channel carrying room-list updates
// for a participant.
func ParticipantRoomsChannel(participantID string) string {
	return fmt.Sprintf(ChannelParticipantRooms, participantID)
}

// RoomMessagesChannel returns the channel carrying message updates for a room.
func RoomMessagesChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomMessages, roomID)
}

// RoomUpsertedPayload is published when a room is created or its summary
// fields (last message, unread counts) change.
type RoomUpsertedPayload struct {
	RoomID string `json:"room_id"`
}

// MessageAppendedPayload is published when a message is appended to a room.
type MessageAppendedPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

// MessagesReadPayload is published when a viewer marks a room read.
type MessagesReadPayload struct {
	RoomID   string `json:"room_id"`
	ViewerID string `json:"viewer_id"`
}
