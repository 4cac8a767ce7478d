package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// FindOrCreate inserts the room if no row with its id exists, otherwise
// loads the existing row into room. The deterministic id makes this a
// single atomic insert-if-absent instead of query-then-insert.
func (r *GormRoomRepository) FindOrCreate(ctx context.Context, room *domain.ChatRoom) (bool, error) {
	l := log.Ctx(ctx)

	room.ID = domain.NewRoomID(room.FounderID, room.InvestorID, room.MemoID)
	room.Status = domain.RoomStatusActive
	if room.LastMessageAt.IsZero() {
		room.LastMessageAt = time.Now()
	}

	model := RoomToModel(room)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to create room in db")
		return false, result.Error
	}

	created := result.RowsAffected > 0
	if !created {
		// Row already existed; load the authoritative copy.
		var existing RoomModel
		if err := r.db.WithContext(ctx).First(&existing, "id = ?", model.ID).Error; err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, model.ID).Msg("failed to load existing room")
			return false, err
		}
		*room = *existing.ToDomain()
		return false, nil
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return true, nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	var model RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByParticipant retrieves the rooms a participant belongs to,
// most recent activity first.
func (r *GormRoomRepository) ListByParticipant(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	column := "investor_id"
	if role == domain.RoleFounder {
		column = "founder_id"
	}

	var models []RoomModel
	result := r.db.WithContext(ctx).
		Where(column+" = ?", participantID).
		Order("last_message_at DESC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, participantID).Msg("failed to list rooms from db")
		return nil, result.Error
	}

	rooms := make([]domain.ChatRoom, len(models))
	for i, model := range models {
		rooms[i] = *model.ToDomain()
	}

	return rooms, nil
}

// ResetUnread zeroes the unread counter for one side of the room.
func (r *GormRoomRepository) ResetUnread(ctx context.Context, roomID string, role domain.Role) error {
	l := log.Ctx(ctx)

	column := "investor_unread"
	if role == domain.RoleFounder {
		column = "founder_unread"
	}

	result := r.db.WithContext(ctx).Model(&RoomModel{}).
		Where("id = ?", roomID).
		Update(column, 0)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to reset unread count")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}
