package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/internal/realtime"
)

func countContent(msgs []domain.Message, content string) int {
	n := 0
	for i := range msgs {
		if msgs[i].Content == content {
			n++
		}
	}
	return n
}

func TestCreateRoomIdempotent(t *testing.T) {
	store := newFakeStore()
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := sess.CreateRoom(context.Background(), "i1", "memo123", "Sarah Chen", "Accel Partners")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := sess.CreateRoom(context.Background(), "i1", "memo123", "Sarah Chen", "Accel Partners")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("create not idempotent: %q vs %q", first.ID, second.ID)
	}
	if got := len(sess.Rooms()); got != 1 {
		t.Fatalf("room count = %d, want 1", got)
	}
	creates, _, _ := store.counters()
	if creates != 1 {
		t.Fatalf("store create calls = %d, want 1 (second call should resolve locally)", creates)
	}
}

func TestSendMessageOrderStableAcrossReconciliation(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "room history load")

	gate := store.gateAppend()
	done := make(chan error, 1)
	go func() { done <- sess.SendMessage(context.Background(), "A") }()

	waitFor(t, func() bool { return countContent(sess.Messages(), "A") == 1 }, "optimistic insert of A")
	if msgs := sess.Messages(); !msgs[len(msgs)-1].IsProvisional() {
		t.Fatal("in-flight message should carry a provisional id")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("send A: %v", err)
	}
	if err := sess.SendMessage(context.Background(), "B"); err != nil {
		t.Fatalf("send B: %v", err)
	}

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "A" || msgs[1].Content != "B" {
		t.Fatalf("order = [%q, %q], want [A, B]", msgs[0].Content, msgs[1].Content)
	}
	for i := range msgs {
		if msgs[i].IsProvisional() {
			t.Fatalf("message %d still provisional after reconciliation", i)
		}
	}
}

func TestSendNoDuplicateWhenPushRacesReconciliation(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "room history load")

	gate := store.gateAppend()
	done := make(chan error, 1)
	go func() { done <- sess.SendMessage(context.Background(), "Hello") }()
	waitFor(t, func() bool { return countContent(sess.Messages(), "Hello") == 1 }, "optimistic insert")

	// A push snapshot arrives while the append is still in flight; the
	// provisional must survive the authoritative (empty) set.
	rt.pushMessages(room.ID, store.messagesCopy(room.ID))
	if n := countContent(sess.Messages(), "Hello"); n != 1 {
		t.Fatalf("after mid-flight push: %d copies, want 1", n)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := countContent(sess.Messages(), "Hello"); n != 1 {
		t.Fatalf("after reconciliation: %d copies, want 1", n)
	}

	// A second push now carries the finalized copy; still exactly one.
	rt.pushMessages(room.ID, store.messagesCopy(room.ID))
	if n := countContent(sess.Messages(), "Hello"); n != 1 {
		t.Fatalf("after finalized push: %d copies, want 1", n)
	}
}

func TestSendNoDuplicateWhenPushCarriesFinalizedCopyMidFlight(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "room history load")

	gate := store.gateAppend()
	done := make(chan error, 1)
	go func() { done <- sess.SendMessage(context.Background(), "Hello") }()
	waitFor(t, func() bool { return countContent(sess.Messages(), "Hello") == 1 }, "optimistic insert")

	// The server finalized the message and its snapshot arrives before the
	// send call returns. The finalized copy must replace the provisional,
	// never sit next to it.
	rt.pushMessages(room.ID, []domain.Message{{
		ID:         "msg_srv_1",
		RoomID:     room.ID,
		SenderID:   "f1",
		SenderType: domain.RoleFounder,
		SenderName: "Alex Rivera",
		Content:    "Hello",
		Timestamp:  time.Now(),
	}})
	if n := countContent(sess.Messages(), "Hello"); n != 1 {
		t.Fatalf("after finalized mid-flight push: %d copies, want 1", n)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := countContent(sess.Messages(), "Hello"); n != 1 {
		t.Fatalf("after reconciliation: %d copies, want 1", n)
	}
}

func TestMarkAsReadMonotoneAndIdempotent(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	room.FounderUnread = 2
	store.addRoom(room)
	store.seedMessages(room.ID,
		domain.Message{ID: "m1", RoomID: room.ID, SenderID: "i1", SenderType: domain.RoleInvestor, Content: "hi", Timestamp: time.Now()},
		domain.Message{ID: "m2", RoomID: room.ID, SenderID: "i1", SenderType: domain.RoleInvestor, Content: "there", Timestamp: time.Now()},
	)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}

	// Opening implicitly clears unread for the opener.
	waitFor(t, func() bool {
		msgs := sess.Messages()
		if len(msgs) != 2 {
			return false
		}
		return msgs[0].Read && msgs[1].Read && sess.TotalUnread() == 0
	}, "implicit mark-as-read")

	if err := sess.MarkAsRead(context.Background()); err != nil {
		t.Fatalf("explicit mark-as-read: %v", err)
	}
	for i, m := range sess.Messages() {
		if !m.Read {
			t.Fatalf("message %d flipped back to unread", i)
		}
	}
	if sess.TotalUnread() != 0 {
		t.Fatalf("total unread = %d, want 0", sess.TotalUnread())
	}
}

func TestTotalUnreadIsSumOfRooms(t *testing.T) {
	store := newFakeStore()
	a := seedRoom("room_f1_i1_memoA")
	a.MemoID, a.FounderUnread = "memoA", 3
	b := seedRoom("room_f1_i2_memoB")
	b.InvestorID, b.MemoID, b.FounderUnread = "i2", "memoB", 0
	c := seedRoom("room_f1_i3_memoC")
	c.InvestorID, c.MemoID, c.FounderUnread = "i3", "memoC", 2
	store.addRoom(a)
	store.addRoom(b)
	store.addRoom(c)

	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := sess.TotalUnread(); got != 5 {
		t.Fatalf("total unread = %d, want 5", got)
	}

	a.FounderUnread = 1
	rt.pushRooms([]domain.ChatRoom{a, b, c})
	waitFor(t, func() bool { return sess.TotalUnread() == 3 }, "total unread to follow pushed counts")
}

func TestStaleLoadDiscarded(t *testing.T) {
	store := newFakeStore()
	roomA := seedRoom("room_f1_i1_memoA")
	roomA.MemoID = "memoA"
	roomB := seedRoom("room_f1_i2_memoB")
	roomB.InvestorID, roomB.MemoID = "i2", "memoB"
	store.addRoom(roomA)
	store.addRoom(roomB)
	store.seedMessages(roomA.ID, domain.Message{ID: "a1", RoomID: roomA.ID, SenderID: "i1", SenderType: domain.RoleInvestor, Content: "from A", Timestamp: time.Now()})
	store.seedMessages(roomB.ID, domain.Message{ID: "b1", RoomID: roomB.ID, SenderID: "i2", SenderType: domain.RoleInvestor, Content: "from B", Timestamp: time.Now()})

	gate := store.gateLoad(roomA.ID)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := sess.OpenRoom(context.Background(), roomA.ID); err != nil {
		t.Fatalf("open room A: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), roomB.ID); err != nil {
		t.Fatalf("open room B: %v", err)
	}
	waitFor(t, func() bool { return len(sess.Messages()) == 1 }, "room B history")

	// Room A's load resolves late; its data must be discarded, not merged.
	close(gate)
	time.Sleep(20 * time.Millisecond)
	for _, m := range sess.Messages() {
		if m.RoomID != roomB.ID {
			t.Fatalf("stale message %q from room %q leaked into active room", m.Content, m.RoomID)
		}
	}
	if n := countContent(sess.Messages(), "from A"); n != 0 {
		t.Fatalf("room A content visible while room B active")
	}
}

func TestFounderEndToEnd(t *testing.T) {
	store := newFakeStore()
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	view, err := sess.CreateRoom(context.Background(), "i1", "memo123", "Sarah Chen", "Accel Partners")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if view.FounderID != "f1" || view.InvestorID != "i1" {
		t.Fatalf("participants = (%q, %q), want (f1, i1)", view.FounderID, view.InvestorID)
	}
	if view.InvestorName != "Sarah Chen" || view.InvestorFirm != "Accel Partners" {
		t.Fatalf("counterpart = (%q, %q)", view.InvestorName, view.InvestorFirm)
	}
	if view.UnreadCount != 0 {
		t.Fatalf("new room unread = %d, want 0", view.UnreadCount)
	}

	if err := sess.OpenRoom(context.Background(), view.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "history load")
	if got := len(sess.Messages()); got != 0 {
		t.Fatalf("new room has %d messages, want 0", got)
	}

	if err := sess.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].Content != "Hello" {
		t.Fatalf("messages = %+v, want single Hello", msgs)
	}
	if msgs[0].IsProvisional() {
		t.Fatal("message still provisional after send resolved")
	}

	active, ok := sess.ActiveRoom()
	if !ok {
		t.Fatal("no active room after send")
	}
	if active.LastMessage != "Hello" {
		t.Fatalf("room last message = %q, want Hello", active.LastMessage)
	}
	if rooms := sess.Rooms(); len(rooms) != 1 || rooms[0].LastMessage != "Hello" {
		t.Fatalf("room list summary = %+v", rooms)
	}
}

func TestSendFailureRollsBackAndPreservesContent(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	store.appendErr = errors.New("store unavailable")
	store.appendFails = 10

	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{SendAttempts: 2})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "history load")

	err := sess.SendMessage(context.Background(), "  Hello  ")
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error = %v, want *SendError", err)
	}
	if sendErr.Content != "Hello" {
		t.Fatalf("preserved content = %q, want Hello", sendErr.Content)
	}
	if got := len(sess.Messages()); got != 0 {
		t.Fatalf("provisional not rolled back, %d messages remain", got)
	}
	if !errors.As(sess.Err(), &sendErr) {
		t.Fatalf("session error = %v, want the send error", sess.Err())
	}
	_, appends, _ := store.counters()
	if appends != 2 {
		t.Fatalf("append attempts = %d, want 2", appends)
	}
}

func TestSendGuards(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := sess.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNoActiveRoom) {
		t.Fatalf("send with no active room = %v, want ErrNoActiveRoom", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	if err := sess.SendMessage(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("whitespace send = %v, want ErrEmptyMessage", err)
	}
	_, appends, _ := store.counters()
	if appends != 0 {
		t.Fatalf("guards hit the store: %d appends", appends)
	}
}

func TestOpenRoomUnknownIDFailsClosed(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return !sess.Loading() }, "history load")

	if err := sess.OpenRoom(context.Background(), "room_nope"); !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("unknown id = %v, want ErrUnknownRoom", err)
	}
	active, ok := sess.ActiveRoom()
	if !ok || active.ID != room.ID {
		t.Fatalf("active room changed after failed open: %+v", active)
	}
}

func TestAutoSelectOpensMostRecentRoom(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{AutoSelectOnLoad: true})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	waitFor(t, func() bool {
		active, ok := sess.ActiveRoom()
		return ok && active.ID == room.ID
	}, "auto-select")
}

func TestCloseRoomSuppressesAutoSelect(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{AutoSelectOnLoad: true})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, func() bool { _, ok := sess.ActiveRoom(); return ok }, "auto-select")

	sess.CloseRoom()
	if _, ok := sess.ActiveRoom(); ok {
		t.Fatal("room still active after CloseRoom")
	}

	// A later push must not fight the user's explicit close.
	rt.pushRooms([]domain.ChatRoom{room})
	time.Sleep(20 * time.Millisecond)
	if _, ok := sess.ActiveRoom(); ok {
		t.Fatal("push snapshot re-selected a room the user closed")
	}
}

func TestClosedRoomIsNotResurrectedByPush(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := len(sess.Rooms()); got != 1 {
		t.Fatalf("room count = %d, want 1", got)
	}

	closed := room
	closed.Status = domain.RoomStatusClosed
	rt.pushRooms([]domain.ChatRoom{closed})
	waitFor(t, func() bool { return len(sess.Rooms()) == 0 }, "closed room removal")

	// An out-of-order snapshot still carrying the room must not bring it
	// back.
	rt.pushRooms([]domain.ChatRoom{room})
	time.Sleep(20 * time.Millisecond)
	if got := len(sess.Rooms()); got != 0 {
		t.Fatalf("closed room resurrected, count = %d", got)
	}
}

func TestCloseReleasesAllSubscriptions(t *testing.T) {
	store := newFakeStore()
	room := seedRoom("room_f1_i1_memo123")
	store.addRoom(room)
	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("open room: %v", err)
	}
	waitFor(t, func() bool { return rt.activeCount() == 2 }, "both subscriptions live")

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := rt.activeCount(); got != 0 {
		t.Fatalf("%d subscriptions leaked after Close", got)
	}
	if err := sess.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("send after close = %v, want ErrSessionClosed", err)
	}
}

func TestSwitchingRoomsReleasesPreviousMessageSubscription(t *testing.T) {
	store := newFakeStore()
	roomA := seedRoom("room_f1_i1_memoA")
	roomA.MemoID = "memoA"
	roomB := seedRoom("room_f1_i2_memoB")
	roomB.InvestorID, roomB.MemoID = "i2", "memoB"
	store.addRoom(roomA)
	store.addRoom(roomB)

	rt := newFakeRealtime()
	sess := newTestSession(t, founderViewer(), store, rt, Options{})
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), roomA.ID); err != nil {
		t.Fatalf("open room A: %v", err)
	}
	if err := sess.OpenRoom(context.Background(), roomB.ID); err != nil {
		t.Fatalf("open room B: %v", err)
	}

	waitFor(t, func() bool {
		return len(rt.live(realtime.KindMessages, roomA.ID)) == 0 &&
			len(rt.live(realtime.KindMessages, roomB.ID)) == 1
	}, "room A subscription release")
}
