package handler

import "github.com/dealbridge/chat-service/internal/domain"

// Websocket message types, client to server.
const (
	MsgTypeOpenRoom    = "open_room"
	MsgTypeCloseRoom   = "close_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeMarkRead    = "mark_read"
	MsgTypePing        = "ping"
)

// Websocket message types, server to client.
const (
	MsgTypeRoomsSnapshot    = "rooms_snapshot"
	MsgTypeMessagesSnapshot = "messages_snapshot"
	MsgTypeMessageAck       = "message_ack"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Error codes carried by error frames.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeSendFailed   = "SEND_FAILED"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeNoActiveRoom = "NO_ACTIVE_ROOM"
)

// ClientFrame is the envelope every inbound websocket message shares.
type ClientFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// RoomsSnapshotFrame carries the full current room list for the viewer.
type RoomsSnapshotFrame struct {
	Type  string            `json:"type"`
	Rooms []domain.RoomView `json:"rooms"`
}

// MessagesSnapshotFrame carries the full current history of one room.
type MessagesSnapshotFrame struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"room_id"`
	Messages []domain.Message `json:"messages"`
}

// MessageAckFrame confirms a send with the finalized message.
type MessageAckFrame struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// ErrorFrame reports a failed operation without closing the connection.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRoomsSnapshot(rooms []domain.ChatRoom, role domain.Role) RoomsSnapshotFrame {
	views := make([]domain.RoomView, len(rooms))
	for i := range rooms {
		views[i] = rooms[i].ViewFor(role)
	}
	return RoomsSnapshotFrame{Type: MsgTypeRoomsSnapshot, Rooms: views}
}

func newMessagesSnapshot(roomID string, messages []domain.Message) MessagesSnapshotFrame {
	if messages == nil {
		messages = []domain.Message{}
	}
	return MessagesSnapshotFrame{Type: MsgTypeMessagesSnapshot, RoomID: roomID, Messages: messages}
}

func newErrorFrame(code, message string) ErrorFrame {
	return ErrorFrame{Type: MsgTypeError, Code: code, Message: message}
}
