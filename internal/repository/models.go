package repository

import (
	"time"

	"github.com/dealbridge/chat-service/internal/domain"
)

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	ID             string    `gorm:"type:varchar(160);primaryKey"`
	FounderID      string    `gorm:"type:varchar(36);index;not null"`
	InvestorID     string    `gorm:"type:varchar(36);index;not null"`
	MemoID         string    `gorm:"type:varchar(36);index;not null"`
	FounderName    string    `gorm:"type:varchar(100);not null"`
	InvestorName   string    `gorm:"type:varchar(100);not null"`
	CompanyName    string    `gorm:"type:varchar(200)"`
	InvestorFirm   string    `gorm:"type:varchar(200)"`
	LastMessage    string    `gorm:"type:varchar(200)"`
	LastMessageAt  time.Time `gorm:"index"`
	FounderUnread  int       `gorm:"not null;default:0"`
	InvestorUnread int       `gorm:"not null;default:0"`
	Status         string    `gorm:"type:varchar(20);index;not null;default:'active'"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to a domain ChatRoom.
func (m *RoomModel) ToDomain() *domain.ChatRoom {
	return &domain.ChatRoom{
		ID:             m.ID,
		FounderID:      m.FounderID,
		InvestorID:     m.InvestorID,
		MemoID:         m.MemoID,
		FounderName:    m.FounderName,
		InvestorName:   m.InvestorName,
		CompanyName:    m.CompanyName,
		InvestorFirm:   m.InvestorFirm,
		LastMessage:    m.LastMessage,
		LastMessageAt:  m.LastMessageAt,
		FounderUnread:  m.FounderUnread,
		InvestorUnread: m.InvestorUnread,
		Status:         domain.RoomStatus(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

// RoomToModel converts a domain ChatRoom to RoomModel.
func RoomToModel(r *domain.ChatRoom) *RoomModel {
	return &RoomModel{
		ID:             r.ID,
		FounderID:      r.FounderID,
		InvestorID:     r.InvestorID,
		MemoID:         r.MemoID,
		FounderName:    r.FounderName,
		InvestorName:   r.InvestorName,
		CompanyName:    r.CompanyName,
		InvestorFirm:   r.InvestorFirm,
		LastMessage:    r.LastMessage,
		LastMessageAt:  r.LastMessageAt,
		FounderUnread:  r.FounderUnread,
		InvestorUnread: r.InvestorUnread,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
	}
}

// MessageModel is the GORM model for the messages table. Seq is the
// insertion-order tiebreak for messages sharing a timestamp.
type MessageModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"type:varchar(48);uniqueIndex;not null"`
	RoomID     string    `gorm:"type:varchar(160);index;not null"`
	SenderID   string    `gorm:"type:varchar(36);index;not null"`
	SenderType string    `gorm:"type:varchar(16);not null"`
	SenderName string    `gorm:"type:varchar(100);not null"`
	Content    string    `gorm:"type:text;not null"`
	Timestamp  time.Time `gorm:"index;not null"`
	// Stored as is_read: READ is a reserved word in MySQL, and raw where
	// clauses do not get GORM's identifier quoting.
	Read bool `gorm:"column:is_read;not null;default:false"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts MessageModel to a domain Message.
func (m *MessageModel) ToDomain() *domain.Message {
	return &domain.Message{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderType: domain.Role(m.SenderType),
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	}
}

// MessageToModel converts a domain Message to MessageModel.
func MessageToModel(msg *domain.Message) *MessageModel {
	return &MessageModel{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderType: string(msg.SenderType),
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		Read:       msg.Read,
	}
}
