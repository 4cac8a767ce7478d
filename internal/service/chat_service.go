package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dealbridge/chat-service/internal/cache"
	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/repository"
	"github.com/dealbridge/chat-service/pkg/log"
	"github.com/dealbridge/chat-service/pkg/pubsub"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrInvalidRole    = errors.New("invalid participant role")
	ErrNotParticipant = errors.New("viewer is not a participant of this room")
	ErrMissingFields  = errors.New("room spec is missing required fields")
)

// chatServiceImpl implements ChatService.
type chatServiceImpl struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	unread   cache.UnreadCache
	bus      pubsub.Publisher
	sf       singleflight.Group
}

// NewChatService creates a new chat service.
func NewChatService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	unread cache.UnreadCache,
	bus pubsub.Publisher,
) ChatService {
	return &chatServiceImpl{
		rooms:    rooms,
		messages: messages,
		unread:   unread,
		bus:      bus,
	}
}

// FindOrCreateRoom creates the room for the participant pair and memo if it
// does not exist yet. Repeated calls for the same pair return the same room.
func (s *chatServiceImpl) FindOrCreateRoom(ctx context.Context, spec domain.CreateRoomSpec) (*domain.ChatRoom, error) {
	if spec.FounderID == "" || spec.InvestorID == "" || spec.MemoID == "" {
		return nil, ErrMissingFields
	}

	room := &domain.ChatRoom{
		FounderID:    spec.FounderID,
		InvestorID:   spec.InvestorID,
		MemoID:       spec.MemoID,
		FounderName:  spec.FounderName,
		InvestorName: spec.InvestorName,
		CompanyName:  spec.CompanyName,
		InvestorFirm: spec.InvestorFirm,
	}

	created, err := s.rooms.FindOrCreate(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create room: %w", err)
	}

	if created {
		s.publishRoomUpserted(ctx, room)
	}

	return room, nil
}

// ListRooms returns the participant's rooms, most recent activity first.
func (s *chatServiceImpl) ListRooms(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.rooms.ListByParticipant(ctx, participantID, role)
}

// GetRoom retrieves a room by id.
func (s *chatServiceImpl) GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetMessages returns a room's history. Concurrent loads for the same room
// collapse into one repository query.
func (s *chatServiceImpl) GetMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		return s.messages.ListByRoom(ctx, roomID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return result.([]domain.Message), nil
}

// AppendMessage finalizes the message (server id, server timestamp, unread
// for the counterpart), persists it, updates the room summary and unread
// accounting, and notifies subscribers on both sides.
func (s *chatServiceImpl) AppendMessage(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error) {
	l := log.Ctx(ctx)

	if !domain.ValidContent(msg.Content) {
		return nil, ErrEmptyContent
	}
	if !msg.SenderType.Valid() {
		return nil, ErrInvalidRole
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ParticipantID(msg.SenderType) != msg.SenderID {
		return nil, ErrNotParticipant
	}

	final := msg
	final.ID = domain.NewMessageID()
	final.RoomID = roomID
	final.Timestamp = time.Now()
	final.Read = false

	// The repository applies the insert and the room summary atomically, so
	// a failure here means nothing was stored and the caller can retry.
	if err := s.messages.Append(ctx, &final); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	counterpartID := room.ParticipantID(final.SenderType.Counterpart())
	if err := s.unread.AddTotal(ctx, counterpartID, 1); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, counterpartID).Msg("failed to bump unread badge")
	}

	s.publishMessageAppended(ctx, room, &final)
	s.publishRoomUpserted(ctx, room)

	return &final, nil
}

// MarkAllRead flips the room's messages read for the viewer and zeroes the
// viewer's unread counter. Calling it on an already-read room is a no-op.
func (s *chatServiceImpl) MarkAllRead(ctx context.Context, roomID, viewerID string) error {
	l := log.Ctx(ctx)

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	var viewerRole domain.Role
	switch viewerID {
	case room.FounderID:
		viewerRole = domain.RoleFounder
	case room.InvestorID:
		viewerRole = domain.RoleInvestor
	default:
		return ErrNotParticipant
	}

	swept, err := s.messages.MarkAllRead(ctx, roomID, viewerID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	if err := s.rooms.ResetUnread(ctx, roomID, viewerRole); err != nil {
		return fmt.Errorf("failed to reset unread count: %w", err)
	}

	prev := room.UnreadFor(viewerRole)
	if prev > 0 {
		if err := s.unread.AddTotal(ctx, viewerID, -prev); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, viewerID).Msg("failed to lower unread badge")
		}
	}

	// A no-op sweep publishes nothing, so read acknowledgements cannot
	// ping-pong between subscribed viewers.
	if swept > 0 || prev > 0 {
		s.publishMessagesRead(ctx, room, viewerID)
		s.publishRoomUpserted(ctx, room)
	}

	return nil
}

// TotalUnread returns the aggregate badge for a participant, falling back
// to summing room rows when the cache has no entry.
func (s *chatServiceImpl) TotalUnread(ctx context.Context, participantID string, role domain.Role) (int, error) {
	l := log.Ctx(ctx)

	total, err := s.unread.GetTotal(ctx, participantID)
	if err == nil {
		return total, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Msg("unread cache get error")
	}

	rooms, err := s.ListRooms(ctx, participantID, role)
	if err != nil {
		return 0, err
	}

	total = 0
	for i := range rooms {
		total += rooms[i].UnreadFor(role)
	}

	if err := s.unread.SetTotal(ctx, participantID, total); err != nil {
		l.Warn().Err(err).Msg("unread cache set error")
	}

	return total, nil
}

// publishRoomUpserted notifies both participants' room-list subscriptions.
func (s *chatServiceImpl) publishRoomUpserted(ctx context.Context, room *domain.ChatRoom) {
	l := log.Ctx(ctx)

	payload := pubsub.RoomUpsertedPayload{RoomID: room.ID}
	for _, pid := range []string{room.FounderID, room.InvestorID} {
		event, err := pubsub.NewEvent(pubsub.EventRoomUpserted, pid, payload)
		if err != nil {
			l.Warn().Err(err).Msg("failed to build room event")
			return
		}
		channel := pubsub.ParticipantRoomsChannel(pid)
		if err := s.bus.Publish(ctx, channel, event); err != nil {
			l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("failed to publish room event")
		}
	}
}

// publishMessageAppended notifies the room's message subscriptions.
func (s *chatServiceImpl) publishMessageAppended(ctx context.Context, room *domain.ChatRoom, msg *domain.Message) {
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(pubsub.EventMessageAppended, room.ID, pubsub.MessageAppendedPayload{
		RoomID:    room.ID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
	})
	if err != nil {
		l.Warn().Err(err).Msg("failed to build message event")
		return
	}

	channel := pubsub.RoomMessagesChannel(room.ID)
	if err := s.bus.Publish(ctx, channel, event); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("failed to publish message event")
	}
}

// publishMessagesRead notifies the room's message subscriptions of a read sweep.
func (s *chatServiceImpl) publishMessagesRead(ctx context.Context, room *domain.ChatRoom, viewerID string) {
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(pubsub.EventMessagesRead, room.ID, pubsub.MessagesReadPayload{
		RoomID:   room.ID,
		ViewerID: viewerID,
	})
	if err != nil {
		l.Warn().Err(err).Msg("failed to build read event")
		return
	}

	channel := pubsub.RoomMessagesChannel(room.ID)
	if err := s.bus.Publish(ctx, channel, event); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("failed to publish read event")
	}
}
