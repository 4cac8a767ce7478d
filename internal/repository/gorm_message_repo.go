package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append inserts a finalized message and applies the room's denormalized
// side effects in one transaction: last-message summary, activity time, and
// the counterpart's unread counter. Either all of it lands or none of it
// does, so a failed send never leaves a stored message behind.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	unreadColumn := "founder_unread"
	if msg.SenderType == domain.RoleFounder {
		unreadColumn = "investor_unread"
	}

	model := MessageToModel(msg)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		result := tx.Model(&RoomModel{}).
			Where("id = ?", msg.RoomID).
			Updates(map[string]interface{}{
				"last_message":    msg.Preview(),
				"last_message_at": msg.Timestamp,
				unreadColumn:      gorm.Expr(unreadColumn+" + ?", 1),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to append message in db")
		return err
	}

	l.Debug().
		Str(log.FieldRoomID, msg.RoomID).
		Str(log.FieldMessageID, msg.ID).
		Msg("message appended in db")
	return nil
}

// ListByRoom returns the room's history ordered by timestamp, with the
// auto-increment sequence breaking ties in insertion order.
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	l := log.Ctx(ctx)

	var models []MessageModel
	result := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC, seq ASC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list messages from db")
		return nil, result.Error
	}

	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}

	return messages, nil
}

// MarkAllRead flips every unread message not sent by the viewer. The flag
// only ever moves false → true, so repeated calls are no-ops.
func (r *GormMessageRepository) MarkAllRead(ctx context.Context, roomID, viewerID string) (int64, error) {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&MessageModel{}).
		Where("room_id = ? AND sender_id <> ? AND is_read = ?", roomID, viewerID, false).
		Update("is_read", true)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to mark messages read")
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
