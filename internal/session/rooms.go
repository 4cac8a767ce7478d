package session

import (
	"sort"
	"strings"

	"github.com/dealbridge/chat-service/internal/domain"
)

// SortBy selects the room list ordering.
type SortBy string

const (
	SortRecency SortBy = "recency"
	SortUnread  SortBy = "unread"
	SortName    SortBy = "name"
)

// Filter narrows and orders the visible room list. Filtering is pure
// client-side work over the loaded set, re-evaluated on every read.
type Filter struct {
	Query string
	Sort  SortBy
}

// roomList owns the loaded room set. All methods assume the session lock
// is held.
type roomList struct {
	items   []domain.ChatRoom
	removed map[string]struct{}
}

func newRoomList() roomList {
	return roomList{removed: make(map[string]struct{})}
}

// replace installs a freshly loaded room set.
func (rl *roomList) replace(rooms []domain.ChatRoom) {
	rl.items = rl.items[:0]
	for _, r := range rooms {
		if _, gone := rl.removed[r.ID]; gone {
			continue
		}
		rl.items = append(rl.items, r)
	}
}

// applySnapshot reconciles a pushed snapshot. A room that reached its
// terminal closed status is tombstoned, so neither this snapshot nor a
// later out-of-order one can resurrect it.
func (rl *roomList) applySnapshot(rooms []domain.ChatRoom) {
	for i := range rooms {
		if rooms[i].Status == domain.RoomStatusClosed {
			rl.markRemoved(rooms[i].ID)
		}
	}
	rl.replace(rooms)
}

// byID finds a loaded room.
func (rl *roomList) byID(id string) (*domain.ChatRoom, bool) {
	for i := range rl.items {
		if rl.items[i].ID == id {
			return &rl.items[i], true
		}
	}
	return nil, false
}

// findPair finds the existing room for a participant pair and memo. This is
// the local half of the idempotent-create invariant: a matching loaded room
// short-circuits any store call.
func (rl *roomList) findPair(founderID, investorID, memoID string) (*domain.ChatRoom, bool) {
	for i := range rl.items {
		r := &rl.items[i]
		if r.FounderID == founderID && r.InvestorID == investorID && r.MemoID == memoID {
			return r, true
		}
	}
	return nil, false
}

// upsert inserts or updates a room and keeps recency ordering.
func (rl *roomList) upsert(room domain.ChatRoom) {
	if _, gone := rl.removed[room.ID]; gone {
		return
	}
	if existing, ok := rl.byID(room.ID); ok {
		*existing = room
	} else {
		rl.items = append(rl.items, room)
	}
	sort.SliceStable(rl.items, func(i, j int) bool {
		return rl.items[i].LastMessageAt.After(rl.items[j].LastMessageAt)
	})
}

// markRemoved tombstones a room so later pushes cannot resurrect it.
func (rl *roomList) markRemoved(id string) {
	rl.removed[id] = struct{}{}
	for i := range rl.items {
		if rl.items[i].ID == id {
			rl.items = append(rl.items[:i], rl.items[i+1:]...)
			return
		}
	}
}

// view projects the filtered, sorted list for the viewer role.
func (rl *roomList) view(f Filter, role domain.Role) []domain.RoomView {
	out := make([]domain.RoomView, 0, len(rl.items))
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for i := range rl.items {
		r := &rl.items[i]
		if q != "" && !roomMatches(r, q) {
			continue
		}
		out = append(out, r.ViewFor(role))
	}

	switch f.Sort {
	case SortUnread:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].UnreadCount != out[j].UnreadCount {
				return out[i].UnreadCount > out[j].UnreadCount
			}
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		})
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return counterpartName(&out[i], role) < counterpartName(&out[j], role)
		})
	default: // SortRecency
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		})
	}

	return out
}

func counterpartName(v *domain.RoomView, role domain.Role) string {
	if role == domain.RoleFounder {
		return strings.ToLower(v.InvestorName)
	}
	return strings.ToLower(v.FounderName)
}

func roomMatches(r *domain.ChatRoom, q string) bool {
	for _, field := range []string{r.FounderName, r.InvestorName, r.CompanyName, r.InvestorFirm} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
