package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dealbridge/chat-service/internal/config"
	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/hub"
	"github.com/dealbridge/chat-service/internal/middleware"
	"github.com/dealbridge/chat-service/internal/realtime"
	"github.com/dealbridge/chat-service/internal/service"
	"github.com/dealbridge/chat-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// roomsFeed is the shared room-list subscription for one participant. All
// of that participant's connections reuse it; the last one to leave
// releases it.
type roomsFeed struct {
	refs  int
	unsub realtime.UnsubscribeFunc
}

// clientState is the per-connection view state: which room the connection
// is watching and the subscription feeding it.
type clientState struct {
	mu         sync.Mutex
	activeRoom string
	unsub      realtime.UnsubscribeFunc
}

// WSHandler upgrades connections and drives the chat protocol over them.
type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	realtime realtime.Subscriber
	wsCfg    config.WebSocketConfig

	mu    sync.Mutex
	feeds map[string]*roomsFeed
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, rt realtime.Subscriber, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		realtime: rt,
		wsCfg:    wsCfg,
		feeds:    make(map[string]*roomsFeed),
	}
}

// HandleWebSocket upgrades the request and starts the connection's pumps.
// Identity comes from the gateway headers, validated by the route's
// middleware.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	viewer, ok := middleware.GetViewer(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), viewer, h.hub, conn, h.wsCfg)
	state := &clientState{}
	client.OnClose = func() {
		state.mu.Lock()
		unsub := state.unsub
		state.unsub = nil
		state.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		h.releaseRoomsFeed(viewer.ID)
	}

	h.hub.Register(client)
	if err := h.acquireRoomsFeed(viewer); err != nil {
		log.L().Warn().Err(err).Str(log.FieldUserID, viewer.ID).Msg("room feed subscription failed")
	}

	// Push the current room list so the client renders without waiting
	// for the first change event.
	if rooms, err := h.service.ListRooms(context.Background(), viewer.ID, viewer.Role); err == nil {
		client.SendMessage(newRoomsSnapshot(rooms, viewer.Role))
	}

	go client.WritePump()
	go client.ReadPump(func(cl *hub.Client, message []byte) {
		h.handleMessage(cl, state, message)
	})
}

// acquireRoomsFeed opens (or reuses) the participant's room-list
// subscription. Updates fan out through the hub to every open connection.
func (h *WSHandler) acquireRoomsFeed(viewer domain.Viewer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if feed, ok := h.feeds[viewer.ID]; ok {
		feed.refs++
		return nil
	}

	unsub, err := h.realtime.Subscribe(context.Background(), realtime.Query{
		Kind:          realtime.KindRooms,
		ParticipantID: viewer.ID,
		Role:          viewer.Role,
	}, func(snap realtime.Snapshot) {
		if err := h.hub.BroadcastToParticipant(viewer.ID, newRoomsSnapshot(snap.Rooms, viewer.Role)); err != nil {
			log.L().Warn().Err(err).Str(log.FieldUserID, viewer.ID).Msg("room snapshot broadcast failed")
		}
	}, func(err error) {
		log.L().Warn().Err(err).Str(log.FieldUserID, viewer.ID).Msg("room feed error")
	})
	if err != nil {
		return err
	}

	h.feeds[viewer.ID] = &roomsFeed{refs: 1, unsub: unsub}
	return nil
}

func (h *WSHandler) releaseRoomsFeed(participantID string) {
	h.mu.Lock()
	feed, ok := h.feeds[participantID]
	if !ok {
		h.mu.Unlock()
		return
	}
	feed.refs--
	if feed.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.feeds, participantID)
	h.mu.Unlock()

	feed.unsub()
}

func (h *WSHandler) handleMessage(client *hub.Client, state *clientState, message []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		client.SendMessage(newErrorFrame(ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case MsgTypeOpenRoom:
		h.handleOpenRoom(ctx, client, state, frame.RoomID)
	case MsgTypeCloseRoom:
		h.handleCloseRoom(state)
	case MsgTypeSendMessage:
		h.handleSend(ctx, client, state, frame.Content)
	case MsgTypeMarkRead:
		h.handleMarkRead(ctx, client, state)
	case MsgTypePing:
		client.SendMessage(map[string]string{"type": MsgTypePong})
	default:
		client.SendMessage(newErrorFrame(ErrCodeBadRequest, "unknown message type"))
	}
}

// handleOpenRoom switches the connection's watched room: initial snapshot,
// live subscription, implicit read sweep. An unknown or foreign room leaves
// the previous room untouched.
func (h *WSHandler) handleOpenRoom(ctx context.Context, client *hub.Client, state *clientState, roomID string) {
	if roomID == "" {
		client.SendMessage(newErrorFrame(ErrCodeBadRequest, "room_id is required"))
		return
	}

	room, err := h.service.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			client.SendMessage(newErrorFrame(ErrCodeNotFound, "room not found"))
			return
		}
		client.SendMessage(newErrorFrame(ErrCodeInternal, "failed to open room"))
		return
	}
	if room.ParticipantID(client.Viewer.Role) != client.Viewer.ID {
		client.SendMessage(newErrorFrame(ErrCodeForbidden, "not a participant of this room"))
		return
	}

	unsub, err := h.realtime.Subscribe(context.Background(), realtime.Query{
		Kind:   realtime.KindMessages,
		RoomID: roomID,
	}, func(snap realtime.Snapshot) {
		client.SendMessage(newMessagesSnapshot(roomID, snap.Messages))
	}, func(err error) {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("message feed error")
	})
	if err != nil {
		client.SendMessage(newErrorFrame(ErrCodeInternal, "failed to subscribe to room"))
		return
	}

	state.mu.Lock()
	old := state.unsub
	state.unsub = unsub
	state.activeRoom = roomID
	state.mu.Unlock()
	if old != nil {
		old()
	}

	messages, err := h.service.GetMessages(ctx, roomID)
	if err != nil {
		client.SendMessage(newErrorFrame(ErrCodeInternal, "failed to load messages"))
	} else {
		client.SendMessage(newMessagesSnapshot(roomID, messages))
	}

	// Opening a room clears its unread state for the opener.
	if err := h.service.MarkAllRead(ctx, roomID, client.Viewer.ID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("implicit read sweep failed")
	}
}

func (h *WSHandler) handleCloseRoom(state *clientState) {
	state.mu.Lock()
	old := state.unsub
	state.unsub = nil
	state.activeRoom = ""
	state.mu.Unlock()
	if old != nil {
		old()
	}
}

func (h *WSHandler) handleSend(ctx context.Context, client *hub.Client, state *clientState, content string) {
	state.mu.Lock()
	roomID := state.activeRoom
	state.mu.Unlock()
	if roomID == "" {
		client.SendMessage(newErrorFrame(ErrCodeNoActiveRoom, "open a room before sending"))
		return
	}

	final, err := h.service.AppendMessage(ctx, roomID, domain.Message{
		SenderID:   client.Viewer.ID,
		SenderType: client.Viewer.Role,
		SenderName: client.Viewer.Name,
		Content:    content,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent):
			client.SendMessage(newErrorFrame(ErrCodeBadRequest, "message content is empty"))
		case errors.Is(err, service.ErrNotParticipant):
			client.SendMessage(newErrorFrame(ErrCodeForbidden, "not a participant of this room"))
		default:
			log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("send failed")
			client.SendMessage(newErrorFrame(ErrCodeSendFailed, "failed to send message"))
		}
		return
	}

	client.SendMessage(MessageAckFrame{Type: MsgTypeMessageAck, Message: *final})
}

func (h *WSHandler) handleMarkRead(ctx context.Context, client *hub.Client, state *clientState) {
	state.mu.Lock()
	roomID := state.activeRoom
	state.mu.Unlock()
	if roomID == "" {
		client.SendMessage(newErrorFrame(ErrCodeNoActiveRoom, "no room open"))
		return
	}

	if err := h.service.MarkAllRead(ctx, roomID, client.Viewer.ID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("read sweep failed")
		client.SendMessage(newErrorFrame(ErrCodeInternal, "failed to mark messages read"))
	}
}
