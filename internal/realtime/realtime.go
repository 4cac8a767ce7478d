package realtime

import (
	"context"

	"github.com/dealbridge/chat-service/internal/domain"
)

// Kind selects which result set a query addresses.
type Kind int

const (
	// KindRooms watches a participant's room list.
	KindRooms Kind = iota + 1
	// KindMessages watches a single room's message history.
	KindMessages
)

// Query describes a subscribed result set.
type Query struct {
	Kind          Kind
	ParticipantID string
	Role          domain.Role
	RoomID        string
}

// Snapshot is the full current result set of a subscribed query. Updates
// always carry the whole set, never a diff, so consumers reconcile against
// authoritative state instead of replaying deltas.
type Snapshot struct {
	Rooms    []domain.ChatRoom
	Messages []domain.Message
}

// UnsubscribeFunc releases a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Subscriber is the push contract the messaging core requires from the
// realtime layer. onUpdate receives a full snapshot on every change;
// onError receives non-fatal delivery failures.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query, onUpdate func(Snapshot), onError func(error)) (UnsubscribeFunc, error)
}
