package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/middleware"
	"github.com/dealbridge/chat-service/internal/service"
	"github.com/dealbridge/chat-service/pkg/log"
	"github.com/dealbridge/chat-service/pkg/response"
)

// Handler handles the chat REST API.
type Handler struct {
	chatService service.ChatService
}

// NewHandler creates a new HTTP handler.
func NewHandler(chatService service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers all routes. Every chat route requires the
// gateway identity headers.
func (h *Handler) RegisterRoutes(r *gin.Engine, ws *WSHandler) {
	api := r.Group("/api/v1/chat", middleware.RequireIdentity())
	{
		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.POST("", h.CreateRoom)
			rooms.GET("/:id", h.GetRoom)
			rooms.GET("/:id/messages", h.GetMessages)
			rooms.POST("/:id/messages", h.SendMessage)
			rooms.POST("/:id/read", h.MarkRead)
		}
		api.GET("/unread", h.TotalUnread)
	}

	r.GET("/ws", middleware.RequireIdentity(), ws.HandleWebSocket)
}

// CreateRoomRequest is the REST body for find-or-create.
type CreateRoomRequest struct {
	CounterpartID   string `json:"counterpart_id" binding:"required"`
	MemoID          string `json:"memo_id" binding:"required"`
	CounterpartName string `json:"counterpart_name"`
	ContextLabel    string `json:"context_label"`
}

// SendMessageRequest is the REST body for appending a message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateRoom finds or creates the room between the caller and the
// counterpart for a memo. Creating an existing conversation returns it.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	spec := domain.NewCreateRoomSpec(viewer, req.CounterpartID, req.MemoID, req.CounterpartName, req.ContextLabel)
	room, err := h.chatService.FindOrCreateRoom(ctx, spec)
	if err != nil {
		if errors.Is(err, service.ErrMissingFields) {
			response.BadRequest(c, "counterpart and memo are required")
			return
		}
		l.Error().Err(err).Msg("failed to create room")
		response.InternalError(c, "failed to create room")
		return
	}

	response.Created(c, room.ViewFor(viewer.Role))
}

// ListRooms returns the caller's rooms, most recent activity first.
func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	rooms, err := h.chatService.ListRooms(ctx, viewer.ID, viewer.Role)
	if err != nil {
		l.Error().Err(err).Msg("failed to list rooms")
		response.InternalError(c, "failed to list rooms")
		return
	}

	views := make([]domain.RoomView, len(rooms))
	for i := range rooms {
		views[i] = rooms[i].ViewFor(viewer.Role)
	}
	response.Success(c, views)
}

// GetRoom returns one room the caller participates in.
func (h *Handler) GetRoom(c *gin.Context) {
	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	room, err := h.roomForViewer(c, viewer)
	if err != nil {
		return // response already written
	}

	response.Success(c, room.ViewFor(viewer.Role))
}

// GetMessages returns a room's full ordered history.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	room, err := h.roomForViewer(c, viewer)
	if err != nil {
		return
	}

	messages, err := h.chatService.GetMessages(ctx, room.ID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to get messages")
		response.InternalError(c, "failed to get messages")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	response.Success(c, messages)
}

// SendMessage appends a message to a room on behalf of the caller.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	final, err := h.chatService.AppendMessage(ctx, c.Param("id"), domain.Message{
		SenderID:   viewer.ID,
		SenderType: viewer.Role,
		SenderName: viewer.Name,
		Content:    req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		case errors.Is(err, service.ErrEmptyContent):
			response.BadRequest(c, "message content is empty")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "not a participant of this room")
		default:
			l.Error().Err(err).Str(log.FieldRoomID, c.Param("id")).Msg("failed to send message")
			response.InternalError(c, "failed to send message")
		}
		return
	}

	response.Created(c, final)
}

// MarkRead flips every message of the room read for the caller.
func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	if err := h.chatService.MarkAllRead(ctx, c.Param("id"), viewer.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		case errors.Is(err, service.ErrNotParticipant):
			response.Forbidden(c, "not a participant of this room")
		default:
			l.Error().Err(err).Str(log.FieldRoomID, c.Param("id")).Msg("failed to mark read")
			response.InternalError(c, "failed to mark messages read")
		}
		return
	}

	response.Success(c, gin.H{"message": "marked read"})
}

// TotalUnread returns the caller's aggregate unread badge.
func (h *Handler) TotalUnread(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	viewer, ok := middleware.GetViewer(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	total, err := h.chatService.TotalUnread(ctx, viewer.ID, viewer.Role)
	if err != nil {
		l.Error().Err(err).Msg("failed to get unread total")
		response.InternalError(c, "failed to get unread total")
		return
	}

	response.Success(c, gin.H{"total_unread": total})
}

// roomForViewer loads the :id room and enforces participation, writing the
// error response itself on failure.
func (h *Handler) roomForViewer(c *gin.Context, viewer domain.Viewer) (*domain.ChatRoom, error) {
	ctx := c.Request.Context()

	room, err := h.chatService.GetRoom(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return nil, err
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, c.Param("id")).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return nil, err
	}
	if room.ParticipantID(viewer.Role) != viewer.ID {
		response.Forbidden(c, "not a participant of this room")
		return nil, service.ErrNotParticipant
	}
	return room, nil
}
