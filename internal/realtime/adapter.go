package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/pkg/log"
	"github.com/dealbridge/chat-service/pkg/pubsub"
)

var ErrInvalidQuery = errors.New("invalid realtime query")

// RoomSource loads the current room list for a participant.
type RoomSource interface {
	ListRooms(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error)
}

// MessageSource loads the current message history for a room.
type MessageSource interface {
	GetMessages(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Adapter implements Subscriber over the event bus. Bus events act only as
// wakeups: on every event the adapter re-queries the store and delivers the
// full snapshot, so subscribers never see partial or out-of-order state.
type Adapter struct {
	bus      pubsub.Subscriber
	rooms    RoomSource
	messages MessageSource
}

// NewAdapter creates a snapshot-delivering adapter over the event bus.
func NewAdapter(bus pubsub.Subscriber, rooms RoomSource, messages MessageSource) *Adapter {
	return &Adapter{
		bus:      bus,
		rooms:    rooms,
		messages: messages,
	}
}

// Subscribe opens a push subscription for the query. The returned
// UnsubscribeFunc is idempotent and must be called when the consumer goes
// away; a leaked subscription keeps its goroutine alive for the life of ctx.
func (a *Adapter) Subscribe(ctx context.Context, q Query, onUpdate func(Snapshot), onError func(error)) (UnsubscribeFunc, error) {
	channel, err := a.channelFor(q)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := a.bus.Subscribe(subCtx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go a.deliver(subCtx, q, sub.Events(), onUpdate, onError)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			if err := sub.Close(); err != nil {
				log.L().Warn().Err(err).Str(log.FieldChannel, channel).Msg("failed to close bus subscription")
			}
		})
	}

	return unsubscribe, nil
}

func (a *Adapter) channelFor(q Query) (string, error) {
	switch q.Kind {
	case KindRooms:
		if q.ParticipantID == "" || !q.Role.Valid() {
			return "", ErrInvalidQuery
		}
		return pubsub.ParticipantRoomsChannel(q.ParticipantID), nil
	case KindMessages:
		if q.RoomID == "" {
			return "", ErrInvalidQuery
		}
		return pubsub.RoomMessagesChannel(q.RoomID), nil
	default:
		return "", ErrInvalidQuery
	}
}

// deliver re-queries the store on every bus event and pushes the snapshot.
func (a *Adapter) deliver(ctx context.Context, q Query, events <-chan *pubsub.Event, onUpdate func(Snapshot), onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}

			snap, err := a.snapshot(ctx, q)
			if err != nil {
				if ctx.Err() == nil && onError != nil {
					onError(err)
				}
				continue
			}
			onUpdate(snap)
		}
	}
}

func (a *Adapter) snapshot(ctx context.Context, q Query) (Snapshot, error) {
	switch q.Kind {
	case KindRooms:
		rooms, err := a.rooms.ListRooms(ctx, q.ParticipantID, q.Role)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to snapshot rooms: %w", err)
		}
		return Snapshot{Rooms: rooms}, nil
	case KindMessages:
		messages, err := a.messages.GetMessages(ctx, q.RoomID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to snapshot messages: %w", err)
		}
		return Snapshot{Messages: messages}, nil
	default:
		return Snapshot{}, ErrInvalidQuery
	}
}
