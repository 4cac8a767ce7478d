package domain

import (
	"fmt"
	"time"
)

// Role identifies which side of a deal conversation a participant is on.
type Role string

const (
	RoleFounder  Role = "founder"
	RoleInvestor Role = "investor"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleFounder || r == RoleInvestor
}

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleFounder {
		return RoleInvestor
	}
	return RoleFounder
}

// RoomStatus represents room status.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusClosed RoomStatus = "closed"
)

// ChatRoom is a persistent conversation between one founder and one
// investor, scoped to a deal memo. Unread counts are kept per viewer side
// so either participant sees only messages they have not read.
type ChatRoom struct {
	ID             string     `json:"id"`
	FounderID      string     `json:"founder_id"`
	InvestorID     string     `json:"investor_id"`
	MemoID         string     `json:"memo_id"`
	FounderName    string     `json:"founder_name"`
	InvestorName   string     `json:"investor_name"`
	CompanyName    string     `json:"company_name"`
	InvestorFirm   string     `json:"investor_firm,omitempty"`
	LastMessage    string     `json:"last_message"`
	LastMessageAt  time.Time  `json:"last_message_at"`
	FounderUnread  int        `json:"founder_unread"`
	InvestorUnread int        `json:"investor_unread"`
	Status         RoomStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewRoomID derives the room id purely from the unordered participant pair
// and the memo, so that creating the same conversation twice always lands on
// the same row and find-or-create is a single insert-if-absent.
func NewRoomID(founderID, investorID, memoID string) string {
	return fmt.Sprintf("room_%s_%s_%s", founderID, investorID, memoID)
}

// ParticipantID returns the id of the participant holding the given role.
func (r *ChatRoom) ParticipantID(role Role) string {
	if role == RoleFounder {
		return r.FounderID
	}
	return r.InvestorID
}

// UnreadFor returns the unread count as seen by the given role.
func (r *ChatRoom) UnreadFor(role Role) int {
	if role == RoleFounder {
		return r.FounderUnread
	}
	return r.InvestorUnread
}

// SetUnreadFor sets the unread count for the given role's view.
func (r *ChatRoom) SetUnreadFor(role Role, n int) {
	if role == RoleFounder {
		r.FounderUnread = n
		return
	}
	r.InvestorUnread = n
}

// CounterpartName returns the display name of the other participant.
func (r *ChatRoom) CounterpartName(role Role) string {
	if role == RoleFounder {
		return r.InvestorName
	}
	return r.FounderName
}

// RoomView is a ChatRoom projected for one viewer: the per-side unread
// columns collapse into the single count that viewer cares about.
type RoomView struct {
	ID            string     `json:"id"`
	FounderID     string     `json:"founder_id"`
	InvestorID    string     `json:"investor_id"`
	MemoID        string     `json:"memo_id"`
	FounderName   string     `json:"founder_name"`
	InvestorName  string     `json:"investor_name"`
	CompanyName   string     `json:"company_name"`
	InvestorFirm  string     `json:"investor_firm,omitempty"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt time.Time  `json:"last_message_at"`
	UnreadCount   int        `json:"unread_count"`
	Status        RoomStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ViewFor projects the room for the given viewer role.
func (r *ChatRoom) ViewFor(role Role) RoomView {
	return RoomView{
		ID:            r.ID,
		FounderID:     r.FounderID,
		InvestorID:    r.InvestorID,
		MemoID:        r.MemoID,
		FounderName:   r.FounderName,
		InvestorName:  r.InvestorName,
		CompanyName:   r.CompanyName,
		InvestorFirm:  r.InvestorFirm,
		LastMessage:   r.LastMessage,
		LastMessageAt: r.LastMessageAt,
		UnreadCount:   r.UnreadFor(role),
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
	}
}

// CreateRoomSpec carries the fully-resolved fields for find-or-create.
// Both participant slots are already assigned to the correct role.
type CreateRoomSpec struct {
	FounderID    string `json:"founder_id"`
	InvestorID   string `json:"investor_id"`
	MemoID       string `json:"memo_id"`
	FounderName  string `json:"founder_name"`
	InvestorName string `json:"investor_name"`
	CompanyName  string `json:"company_name"`
	InvestorFirm string `json:"investor_firm"`
}

// Viewer identifies the participant a session or request acts as.
type Viewer struct {
	ID   string
	Role Role
	Name string
}

// NewCreateRoomSpec assigns the caller and the counterpart to the correct
// founder/investor slots regardless of which role initiates. contextLabel is
// the counterpart-side display context: the investor's firm when a founder
// creates the room, the founder's company when an investor does.
func NewCreateRoomSpec(viewer Viewer, counterpartID, memoID, counterpartName, contextLabel string) CreateRoomSpec {
	if viewer.Role == RoleFounder {
		return CreateRoomSpec{
			FounderID:    viewer.ID,
			InvestorID:   counterpartID,
			MemoID:       memoID,
			FounderName:  viewer.Name,
			InvestorName: counterpartName,
			InvestorFirm: contextLabel,
		}
	}
	return CreateRoomSpec{
		FounderID:    counterpartID,
		InvestorID:   viewer.ID,
		MemoID:       memoID,
		FounderName:  counterpartName,
		InvestorName: viewer.Name,
		CompanyName:  contextLabel,
	}
}
