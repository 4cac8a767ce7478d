// Package session implements the embeddable client core of the deal chat:
// a per-viewer facade that owns the loaded room list and the active room's
// message history, applies optimistic sends with reconciliation, derives
// unread totals, and stays current through realtime push snapshots.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/realtime"
	"github.com/dealbridge/chat-service/pkg/log"
)

// RoomStore is the room persistence boundary the session consumes.
type RoomStore interface {
	ListRooms(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error)
	FindOrCreateRoom(ctx context.Context, spec domain.CreateRoomSpec) (*domain.ChatRoom, error)
}

// MessageStore is the message persistence boundary the session consumes.
type MessageStore interface {
	GetMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	AppendMessage(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error)
	MarkAllRead(ctx context.Context, roomID, viewerID string) error
}

// Options tunes session behavior.
type Options struct {
	// AutoSelectOnLoad opens the most recent room automatically when the
	// list first becomes non-empty. An explicit CloseRoom suppresses it
	// for the rest of the session.
	AutoSelectOnLoad bool
	// SendAttempts bounds persistence retries for a send. Losing a
	// user-authored message is the worst failure mode, so sends retry.
	SendAttempts int
	// SendBackoff is the base delay between send attempts, scaled
	// linearly per attempt.
	SendBackoff time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SendAttempts < 1 {
		out.SendAttempts = 3
	}
	if out.SendBackoff <= 0 {
		out.SendBackoff = 200 * time.Millisecond
	}
	return out
}

// Session is the stateful chat facade for one viewer. All exported methods
// are safe for concurrent use; hosting views observe changes through the
// OnChange callback and read state back through the accessor methods.
type Session struct {
	viewer       domain.Viewer
	roomStore    RoomStore
	messageStore MessageStore
	realtime     realtime.Subscriber
	opts         Options
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	rooms              roomList
	channel            messageChannel
	active             string
	suppressAutoSelect bool
	filter             Filter
	roomsLoading       bool
	roomsErr           error
	unsubRooms         realtime.UnsubscribeFunc
	unsubMessages      realtime.UnsubscribeFunc
	onChange           func()
	closed             bool
}

// New creates a session for the viewer. Call Open to load state and start
// receiving pushes, and Close to release subscriptions when the hosting
// surface goes away.
func New(viewer domain.Viewer, rooms RoomStore, messages MessageStore, rt realtime.Subscriber, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		viewer:       viewer,
		roomStore:    rooms,
		messageStore: messages,
		realtime:     rt,
		opts:         opts.withDefaults(),
		logger:       log.L().With().Str(log.FieldUserID, viewer.ID).Str(log.FieldUserRole, string(viewer.Role)).Logger(),
		ctx:          ctx,
		cancel:       cancel,
		rooms:        newRoomList(),
		filter:       Filter{Sort: SortRecency},
	}
}

// Open loads the room list and starts the room-list subscription. A failed
// load leaves the session in a retryable error state; calling Open again
// retries without doubling subscriptions.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.roomsLoading = true
	s.roomsErr = nil
	s.mu.Unlock()
	s.notify()

	rooms, err := s.roomStore.ListRooms(ctx, s.viewer.ID, s.viewer.Role)

	s.mu.Lock()
	s.roomsLoading = false
	if err != nil {
		s.roomsErr = &LoadError{Op: "rooms", Err: err}
		loadErr := s.roomsErr
		s.mu.Unlock()
		s.notify()
		return loadErr
	}
	s.rooms.replace(rooms)
	needSub := s.unsubRooms == nil
	autoID := s.autoSelectLocked()
	s.mu.Unlock()
	s.notify()

	if needSub {
		s.subscribeRooms()
	}
	if autoID != "" {
		if err := s.OpenRoom(ctx, autoID); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldRoomID, autoID).Msg("auto-select failed")
		}
	}
	return nil
}

// subscribeRooms opens the push subscription for the viewer's room list.
func (s *Session) subscribeRooms() {
	unsub, err := s.realtime.Subscribe(s.ctx, realtime.Query{
		Kind:          realtime.KindRooms,
		ParticipantID: s.viewer.ID,
		Role:          s.viewer.Role,
	}, s.handleRoomsSnapshot, s.handleRoomsError)
	if err != nil {
		s.logger.Warn().Err(err).Msg("room subscription failed")
		return
	}

	s.mu.Lock()
	if s.closed || s.unsubRooms != nil {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubRooms = unsub
	s.mu.Unlock()
}

// OpenRoom makes the room active, clears the previous history immediately,
// loads the room's messages, and marks them read. An unknown id fails
// closed: the previously active room stays untouched.
func (s *Session) OpenRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if _, ok := s.rooms.byID(id); !ok {
		s.mu.Unlock()
		return ErrUnknownRoom
	}
	oldUnsub := s.unsubMessages
	s.unsubMessages = nil
	s.active = id
	epoch := s.channel.reset(id)
	s.mu.Unlock()
	s.notify()

	if oldUnsub != nil {
		oldUnsub()
	}

	go s.loadAndMarkRead(id, epoch)
	s.subscribeMessages(id)
	return nil
}

// subscribeMessages opens the push subscription for the active room.
func (s *Session) subscribeMessages(roomID string) {
	unsub, err := s.realtime.Subscribe(s.ctx, realtime.Query{
		Kind:   realtime.KindMessages,
		RoomID: roomID,
	}, func(snap realtime.Snapshot) {
		s.handleMessagesSnapshot(roomID, snap)
	}, func(err error) {
		s.handleMessagesError(roomID, err)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("message subscription failed")
		return
	}

	s.mu.Lock()
	if s.closed || s.active != roomID {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubMessages = unsub
	s.mu.Unlock()
}

// loadAndMarkRead fetches the opened room's history. Results carrying a
// stale epoch (the user already switched rooms) are discarded, never merged.
func (s *Session) loadAndMarkRead(roomID string, epoch uint64) {
	msgs, err := s.messageStore.GetMessages(s.ctx, roomID)

	s.mu.Lock()
	if !s.channel.current(roomID, epoch) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.channel.loading = false
		s.channel.err = &LoadError{Op: "messages", Err: err}
		s.mu.Unlock()
		s.notify()
		return
	}
	for i := range msgs {
		if msgs[i].SenderID == s.viewer.ID {
			msgs[i].Read = true
		}
	}
	s.channel.install(msgs)
	s.mu.Unlock()
	s.notify()

	// Opening a room implicitly clears its unread state for the opener.
	s.markRead(s.ctx, roomID)
}

// CloseRoom deselects the active room. The deselect also suppresses
// auto-select for the rest of the session so a background room-list push
// cannot fight the user's explicit choice.
func (s *Session) CloseRoom() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	oldUnsub := s.unsubMessages
	s.unsubMessages = nil
	s.active = ""
	s.suppressAutoSelect = true
	s.channel.reset("")
	s.mu.Unlock()

	if oldUnsub != nil {
		oldUnsub()
	}
	s.notify()
}

// CreateRoom returns the existing room for the counterpart pair and memo if
// one is already loaded, otherwise creates it through the store. A failed
// create leaves the room list unchanged.
func (s *Session) CreateRoom(ctx context.Context, counterpartID, memoID, counterpartName, contextLabel string) (domain.RoomView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.RoomView{}, ErrSessionClosed
	}
	spec := domain.NewCreateRoomSpec(s.viewer, counterpartID, memoID, counterpartName, contextLabel)
	if existing, ok := s.rooms.findPair(spec.FounderID, spec.InvestorID, spec.MemoID); ok {
		view := existing.ViewFor(s.viewer.Role)
		s.mu.Unlock()
		return view, nil
	}
	s.mu.Unlock()

	room, err := s.roomStore.FindOrCreateRoom(ctx, spec)
	if err != nil {
		return domain.RoomView{}, &CreateRoomError{Err: err}
	}

	s.mu.Lock()
	s.rooms.upsert(*room)
	view := room.ViewFor(s.viewer.Role)
	s.mu.Unlock()
	s.notify()

	return view, nil
}

// SendMessage appends to the active room with optimistic insertion: the
// provisional message is visible immediately, then swapped in place for the
// store's finalized copy. On persistent failure the provisional is rolled
// back and the returned SendError carries the content for requeue.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	if !domain.ValidContent(content) {
		return ErrEmptyMessage
	}
	trimmed := strings.TrimSpace(content)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.active == "" {
		s.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := s.active
	provisional := domain.Message{
		ID:         domain.NewProvisionalID(),
		RoomID:     roomID,
		SenderID:   s.viewer.ID,
		SenderType: s.viewer.Role,
		SenderName: s.viewer.Name,
		Content:    trimmed,
		Timestamp:  time.Now(),
		Read:       true, // sender's own view
	}
	s.channel.append(provisional)
	epoch := s.channel.epoch
	s.mu.Unlock()
	s.notify()

	final, err := s.persistWithRetry(ctx, roomID, provisional)

	s.mu.Lock()
	if err != nil {
		s.channel.remove(provisional.ID)
		sendErr := &SendError{Content: trimmed, Err: err}
		s.channel.err = sendErr
		s.mu.Unlock()
		s.notify()
		return sendErr
	}

	if s.channel.current(roomID, epoch) {
		confirmed := *final
		confirmed.Read = true // own messages stay read in own view
		s.channel.reconcile(provisional.ID, confirmed)
	}
	if room, ok := s.rooms.byID(roomID); ok {
		room.LastMessage = final.Preview()
		room.LastMessageAt = final.Timestamp
		s.rooms.upsert(*room)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// persistWithRetry runs the store append under the configured retry budget.
func (s *Session) persistWithRetry(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error) {
	var final *domain.Message
	var err error
	for attempt := 1; attempt <= s.opts.SendAttempts; attempt++ {
		final, err = s.messageStore.AppendMessage(ctx, roomID, msg)
		if err == nil {
			return final, nil
		}
		if attempt == s.opts.SendAttempts {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Str(log.FieldRoomID, roomID).Msg("send failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ctx.Done():
			return nil, ErrSessionClosed
		case <-time.After(s.opts.SendBackoff * time.Duration(attempt)):
		}
	}
	return nil, err
}

// MarkAsRead marks every loaded message of the active room read. Safe to
// call when everything is already read.
func (s *Session) MarkAsRead(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	roomID := s.active
	s.mu.Unlock()

	if roomID == "" {
		return ErrNoActiveRoom
	}
	return s.markRead(ctx, roomID)
}

// markRead persists the read sweep, then flips local state for the room.
func (s *Session) markRead(ctx context.Context, roomID string) error {
	if err := s.messageStore.MarkAllRead(ctx, roomID, s.viewer.ID); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("mark-as-read failed")
		return err
	}

	s.mu.Lock()
	changed := false
	if s.channel.roomID == roomID {
		changed = s.channel.markAllRead()
	}
	if room, ok := s.rooms.byID(roomID); ok && room.UnreadFor(s.viewer.Role) != 0 {
		room.SetUnreadFor(s.viewer.Role, 0)
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// Close releases every push subscription and stops background work.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	u1, u2 := s.unsubRooms, s.unsubMessages
	s.unsubRooms, s.unsubMessages = nil, nil
	s.mu.Unlock()

	s.cancel()
	if u1 != nil {
		u1()
	}
	if u2 != nil {
		u2()
	}
	return nil
}

// handleRoomsSnapshot applies a pushed room-list snapshot through the same
// reconciliation path as a local load.
func (s *Session) handleRoomsSnapshot(snap realtime.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.rooms.applySnapshot(snap.Rooms)
	s.roomsErr = nil

	// The active room may have reached its terminal closed status and
	// left the list; drop it rather than keep a dead subscription.
	var oldUnsub realtime.UnsubscribeFunc
	if s.active != "" {
		if _, ok := s.rooms.byID(s.active); !ok {
			oldUnsub = s.unsubMessages
			s.unsubMessages = nil
			s.active = ""
			s.channel.reset("")
		}
	}
	autoID := s.autoSelectLocked()
	s.mu.Unlock()
	s.notify()

	if oldUnsub != nil {
		oldUnsub()
	}
	if autoID != "" {
		if err := s.OpenRoom(s.ctx, autoID); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldRoomID, autoID).Msg("auto-select failed")
		}
	}
}

func (s *Session) handleRoomsError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.roomsErr = &LoadError{Op: "rooms", Err: err}
	s.mu.Unlock()
	s.notify()
}

// handleMessagesSnapshot applies a pushed message snapshot for roomID.
// Pushes for a room that is no longer active are discarded.
func (s *Session) handleMessagesSnapshot(roomID string, snap realtime.Snapshot) {
	s.mu.Lock()
	if s.closed || s.active != roomID {
		s.mu.Unlock()
		return
	}

	msgs := snap.Messages
	needRead := false
	for i := range msgs {
		if msgs[i].SenderID == s.viewer.ID {
			msgs[i].Read = true
		} else if !msgs[i].Read {
			needRead = true
		}
	}
	s.channel.applySnapshot(msgs)
	s.mu.Unlock()
	s.notify()

	// The viewer is looking at the room, so newly arrived messages are
	// read immediately. Guarded so an all-read snapshot triggers nothing.
	if needRead {
		s.markRead(s.ctx, roomID)
	}
}

func (s *Session) handleMessagesError(roomID string, err error) {
	s.mu.Lock()
	if s.closed || s.active != roomID {
		s.mu.Unlock()
		return
	}
	s.channel.err = &LoadError{Op: "messages", Err: err}
	s.mu.Unlock()
	s.notify()
}

// autoSelectLocked returns the room to auto-open, or "". Caller holds the
// lock; the actual OpenRoom happens outside it.
func (s *Session) autoSelectLocked() string {
	if !s.opts.AutoSelectOnLoad || s.suppressAutoSelect || s.active != "" {
		return ""
	}
	if len(s.rooms.items) == 0 {
		return ""
	}
	return s.rooms.items[0].ID
}

// SetOnChange registers the observer invoked after every state change.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetFilter updates the room list filter applied by Rooms.
func (s *Session) SetFilter(f Filter) {
	s.mu.Lock()
	if f.Sort == "" {
		f.Sort = SortRecency
	}
	s.filter = f
	s.mu.Unlock()
	s.notify()
}

// Rooms returns the filtered, sorted room list projected for the viewer.
func (s *Session) Rooms() []domain.RoomView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.view(s.filter, s.viewer.Role)
}

// ActiveRoom returns the active room's view, if any.
func (s *Session) ActiveRoom() (domain.RoomView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return domain.RoomView{}, false
	}
	room, ok := s.rooms.byID(s.active)
	if !ok {
		return domain.RoomView{}, false
	}
	return room.ViewFor(s.viewer.Role), true
}

// Messages returns a copy of the active room's loaded history.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.snapshot()
}

// TotalUnread derives the viewer's aggregate unread count across all
// loaded rooms.
func (s *Session) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumUnread(s.rooms.items, s.viewer.Role)
}

// Loading reports whether the room list or the active room's history is
// still loading.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsLoading || s.channel.loading
}

// Err returns the first pending error: room-list errors take precedence
// over message-channel errors. Nil when healthy.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomsErr != nil {
		return s.roomsErr
	}
	return s.channel.err
}

// Viewer returns the identity this session acts as.
func (s *Session) Viewer() domain.Viewer {
	return s.viewer
}
