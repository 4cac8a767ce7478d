package session

import "github.com/dealbridge/chat-service/internal/domain"

// sumUnread derives the aggregate unread count for a viewer across the
// loaded room set. Recomputed on every read; room counts are small, so an
// O(n) sweep beats maintaining an incremental counter that could drift.
func sumUnread(rooms []domain.ChatRoom, role domain.Role) int {
	total := 0
	for i := range rooms {
		total += rooms[i].UnreadFor(role)
	}
	return total
}
