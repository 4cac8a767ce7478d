package session

import (
	"testing"
	"time"

	"github.com/dealbridge/chat-service/internal/domain"
)

func sampleRooms(base time.Time) []domain.ChatRoom {
	return []domain.ChatRoom{
		{
			ID: "room_f1_i1_m1", FounderID: "f1", InvestorID: "i1", MemoID: "m1",
			FounderName: "Alex Rivera", InvestorName: "Sarah Chen", InvestorFirm: "Accel Partners",
			LastMessageAt: base.Add(2 * time.Hour), FounderUnread: 1, Status: domain.RoomStatusActive,
		},
		{
			ID: "room_f1_i2_m2", FounderID: "f1", InvestorID: "i2", MemoID: "m2",
			FounderName: "Alex Rivera", InvestorName: "Ben Okafor", InvestorFirm: "Sequoia",
			LastMessageAt: base.Add(time.Hour), FounderUnread: 4, Status: domain.RoomStatusActive,
		},
		{
			ID: "room_f1_i3_m3", FounderID: "f1", InvestorID: "i3", MemoID: "m3",
			FounderName: "Alex Rivera", InvestorName: "Dana Wu", InvestorFirm: "Benchmark",
			LastMessageAt: base, FounderUnread: 0, Status: domain.RoomStatusActive,
		},
	}
}

func TestRoomListViewSorting(t *testing.T) {
	rl := newRoomList()
	rl.replace(sampleRooms(time.Now()))

	recency := rl.view(Filter{Sort: SortRecency}, domain.RoleFounder)
	if recency[0].InvestorName != "Sarah Chen" || recency[2].InvestorName != "Dana Wu" {
		t.Fatalf("recency order wrong: %q, %q, %q", recency[0].InvestorName, recency[1].InvestorName, recency[2].InvestorName)
	}

	unread := rl.view(Filter{Sort: SortUnread}, domain.RoleFounder)
	if unread[0].UnreadCount != 4 || unread[2].UnreadCount != 0 {
		t.Fatalf("unread order wrong: %d, %d, %d", unread[0].UnreadCount, unread[1].UnreadCount, unread[2].UnreadCount)
	}

	name := rl.view(Filter{Sort: SortName}, domain.RoleFounder)
	if name[0].InvestorName != "Ben Okafor" {
		t.Fatalf("name order wrong, first = %q", name[0].InvestorName)
	}
}

func TestRoomListViewQueryMatchesNamesAndFirm(t *testing.T) {
	rl := newRoomList()
	rl.replace(sampleRooms(time.Now()))

	byName := rl.view(Filter{Query: "sarah", Sort: SortRecency}, domain.RoleFounder)
	if len(byName) != 1 || byName[0].InvestorName != "Sarah Chen" {
		t.Fatalf("name query = %+v", byName)
	}

	byFirm := rl.view(Filter{Query: "sequoia", Sort: SortRecency}, domain.RoleFounder)
	if len(byFirm) != 1 || byFirm[0].InvestorFirm != "Sequoia" {
		t.Fatalf("firm query = %+v", byFirm)
	}

	none := rl.view(Filter{Query: "zzz", Sort: SortRecency}, domain.RoleFounder)
	if len(none) != 0 {
		t.Fatalf("miss query returned %d rooms", len(none))
	}
}

func TestRoomListUpsertKeepsRecencyOrder(t *testing.T) {
	rl := newRoomList()
	base := time.Now()
	rooms := sampleRooms(base)
	rl.replace(rooms)

	// The oldest room gets a new message and must move to the front.
	bumped := rooms[2]
	bumped.LastMessage = "ping"
	bumped.LastMessageAt = base.Add(3 * time.Hour)
	rl.upsert(bumped)

	if rl.items[0].ID != bumped.ID {
		t.Fatalf("front room = %q, want %q", rl.items[0].ID, bumped.ID)
	}
	if len(rl.items) != 3 {
		t.Fatalf("upsert duplicated: %d rooms", len(rl.items))
	}
}

func TestRoomListTombstoneBlocksResurrection(t *testing.T) {
	rl := newRoomList()
	rooms := sampleRooms(time.Now())
	rl.replace(rooms)

	rl.markRemoved(rooms[1].ID)
	if _, ok := rl.byID(rooms[1].ID); ok {
		t.Fatal("removed room still present")
	}

	rl.applySnapshot(rooms)
	if _, ok := rl.byID(rooms[1].ID); ok {
		t.Fatal("snapshot resurrected a removed room")
	}
	rl.upsert(rooms[1])
	if _, ok := rl.byID(rooms[1].ID); ok {
		t.Fatal("upsert resurrected a removed room")
	}
}

func TestRoomListFindPair(t *testing.T) {
	rl := newRoomList()
	rooms := sampleRooms(time.Now())
	rl.replace(rooms)

	if got, ok := rl.findPair("f1", "i2", "m2"); !ok || got.ID != rooms[1].ID {
		t.Fatalf("findPair = (%+v, %v)", got, ok)
	}
	if _, ok := rl.findPair("f1", "i2", "other-memo"); ok {
		t.Fatal("findPair matched across a different memo")
	}
}
