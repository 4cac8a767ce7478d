package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/realtime"
)

// fakeStore is an in-memory backend implementing RoomStore and MessageStore.
// Loads can be gated per room and appends can be forced to fail, so tests
// control the async interleavings the session has to survive.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]domain.ChatRoom
	messages map[string][]domain.Message

	listErr     error
	appendErr   error
	appendFails int
	appendGate  chan struct{}
	loadGates   map[string]chan struct{}

	createCalls int
	appendCalls int
	markCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:     make(map[string]domain.ChatRoom),
		messages:  make(map[string][]domain.Message),
		loadGates: make(map[string]chan struct{}),
	}
}

func (f *fakeStore) addRoom(r domain.ChatRoom) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Status == "" {
		r.Status = domain.RoomStatusActive
	}
	f.rooms[r.ID] = r
}

func (f *fakeStore) seedMessages(roomID string, msgs ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[roomID] = append(f.messages[roomID], msgs...)
}

// gateLoad makes GetMessages for roomID block until the returned channel is
// closed.
func (f *fakeStore) gateLoad(roomID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.loadGates[roomID] = gate
	return gate
}

// gateAppend makes the next AppendMessage calls block until the returned
// channel is closed.
func (f *fakeStore) gateAppend() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.appendGate = gate
	return gate
}

func (f *fakeStore) roomCopy(id string) (domain.ChatRoom, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	return r, ok
}

func (f *fakeStore) messagesCopy(roomID string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, len(f.messages[roomID]))
	copy(out, f.messages[roomID])
	return out
}

func (f *fakeStore) counters() (create, appendN, mark int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.appendCalls, f.markCalls
}

func (f *fakeStore) ListRooms(ctx context.Context, participantID string, role domain.Role) ([]domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ChatRoom
	for _, r := range f.rooms {
		if r.ParticipantID(role) == participantID {
			out = append(out, r)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastMessageAt.After(out[j-1].LastMessageAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) FindOrCreateRoom(ctx context.Context, spec domain.CreateRoomSpec) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	id := domain.NewRoomID(spec.FounderID, spec.InvestorID, spec.MemoID)
	if existing, ok := f.rooms[id]; ok {
		out := existing
		return &out, nil
	}
	room := domain.ChatRoom{
		ID:           id,
		FounderID:    spec.FounderID,
		InvestorID:   spec.InvestorID,
		MemoID:       spec.MemoID,
		FounderName:  spec.FounderName,
		InvestorName: spec.InvestorName,
		CompanyName:  spec.CompanyName,
		InvestorFirm: spec.InvestorFirm,
		Status:       domain.RoomStatusActive,
		CreatedAt:    time.Now(),
	}
	f.rooms[id] = room
	out := room
	return &out, nil
}

func (f *fakeStore) GetMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.loadGates[roomID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, len(f.messages[roomID]))
	copy(out, f.messages[roomID])
	return out, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	gate := f.appendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.appendFails > 0 {
		f.appendFails--
		return nil, f.appendErr
	}

	final := msg
	final.ID = domain.NewMessageID()
	final.Timestamp = time.Now()
	final.Read = false
	f.messages[roomID] = append(f.messages[roomID], final)

	if room, ok := f.rooms[roomID]; ok {
		room.LastMessage = final.Preview()
		room.LastMessageAt = final.Timestamp
		counterpart := final.SenderType.Counterpart()
		room.SetUnreadFor(counterpart, room.UnreadFor(counterpart)+1)
		f.rooms[roomID] = room
	}

	out := final
	return &out, nil
}

func (f *fakeStore) MarkAllRead(ctx context.Context, roomID, viewerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	msgs := f.messages[roomID]
	for i := range msgs {
		if msgs[i].SenderID != viewerID {
			msgs[i].Read = true
		}
	}
	if room, ok := f.rooms[roomID]; ok {
		switch viewerID {
		case room.FounderID:
			room.FounderUnread = 0
		case room.InvestorID:
			room.InvestorUnread = 0
		}
		f.rooms[roomID] = room
	}
	return nil
}

// fakeRealtime records subscriptions and lets tests push snapshots into
// them.
type fakeRealtime struct {
	mu   sync.Mutex
	subs []*fakeSub
}

type fakeSub struct {
	query    realtime.Query
	onUpdate func(realtime.Snapshot)
	released bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{}
}

func (f *fakeRealtime) Subscribe(ctx context.Context, q realtime.Query, onUpdate func(realtime.Snapshot), onError func(error)) (realtime.UnsubscribeFunc, error) {
	sub := &fakeSub{query: q, onUpdate: onUpdate}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		sub.released = true
		f.mu.Unlock()
	}, nil
}

// pushRooms delivers a room-list snapshot to every live rooms subscription.
func (f *fakeRealtime) pushRooms(rooms []domain.ChatRoom) {
	for _, sub := range f.live(realtime.KindRooms, "") {
		sub.onUpdate(realtime.Snapshot{Rooms: rooms})
	}
}

// pushMessages delivers a message snapshot to every live subscription for
// the room.
func (f *fakeRealtime) pushMessages(roomID string, msgs []domain.Message) {
	for _, sub := range f.live(realtime.KindMessages, roomID) {
		sub.onUpdate(realtime.Snapshot{Messages: msgs})
	}
}

func (f *fakeRealtime) live(kind realtime.Kind, roomID string) []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, sub := range f.subs {
		if sub.released || sub.query.Kind != kind {
			continue
		}
		if kind == realtime.KindMessages && sub.query.RoomID != roomID {
			continue
		}
		out = append(out, sub)
	}
	return out
}

func (f *fakeRealtime) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if !sub.released {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSession(t *testing.T, viewer domain.Viewer, store *fakeStore, rt *fakeRealtime, opts Options) *Session {
	t.Helper()
	if opts.SendBackoff == 0 {
		opts.SendBackoff = time.Millisecond
	}
	s := New(viewer, store, store, rt, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func founderViewer() domain.Viewer {
	return domain.Viewer{ID: "f1", Role: domain.RoleFounder, Name: "Alex Rivera"}
}

func seedRoom(id string) domain.ChatRoom {
	return domain.ChatRoom{
		ID:           id,
		FounderID:    "f1",
		InvestorID:   "i1",
		MemoID:       "memo123",
		FounderName:  "Alex Rivera",
		InvestorName: "Sarah Chen",
		InvestorFirm: "Accel Partners",
		Status:       domain.RoomStatusActive,
	}
}
