package session

import (
	"github.com/dealbridge/chat-service/internal/domain"
)

// messageChannel owns the ordered message history of the active room. The
// epoch counter fences in-flight loads: any async result carrying a stale
// epoch is discarded instead of merged. All methods assume the session lock
// is held.
type messageChannel struct {
	roomID   string
	epoch    uint64
	messages []domain.Message
	loading  bool
	err      error
}

// reset switches the channel to a new room, clearing history immediately so
// stale messages from the previous room are never shown. Returns the new
// epoch for the caller's load to carry.
func (c *messageChannel) reset(roomID string) uint64 {
	c.roomID = roomID
	c.epoch++
	c.messages = nil
	c.loading = roomID != ""
	c.err = nil
	return c.epoch
}

// current reports whether an async result for (roomID, epoch) is still
// relevant.
func (c *messageChannel) current(roomID string, epoch uint64) bool {
	return c.roomID == roomID && c.epoch == epoch
}

// install replaces the history with a loaded result.
func (c *messageChannel) install(msgs []domain.Message) {
	c.messages = msgs
	c.loading = false
	c.err = nil
}

// append adds an optimistic (or pushed) message at the end.
func (c *messageChannel) append(msg domain.Message) {
	c.messages = append(c.messages, msg)
}

// remove drops a message by id. Used to roll back a failed optimistic send.
func (c *messageChannel) remove(id string) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

// reconcile swaps a provisional message for its finalized copy without
// moving it. If the finalized copy already arrived via a push snapshot the
// provisional is simply dropped, so the channel never holds both.
func (c *messageChannel) reconcile(tmpID string, final domain.Message) {
	finalIdx := -1
	tmpIdx := -1
	for i := range c.messages {
		switch c.messages[i].ID {
		case final.ID:
			finalIdx = i
		case tmpID:
			tmpIdx = i
		}
	}

	if tmpIdx == -1 {
		// Provisional already gone (room switched or push replaced it).
		return
	}
	if finalIdx != -1 {
		c.messages = append(c.messages[:tmpIdx], c.messages[tmpIdx+1:]...)
		return
	}
	c.messages[tmpIdx] = final
}

// applySnapshot reconciles a pushed full snapshot with local state: the
// authoritative set wins, and provisional messages still awaiting
// confirmation are re-appended at the end. A provisional whose finalized
// copy is already in the snapshot is confirmed, not pending; re-appending
// it would show the send twice until reconcile catches up.
func (c *messageChannel) applySnapshot(msgs []domain.Message) {
	known := make(map[string]struct{}, len(c.messages))
	var provisional []domain.Message
	for i := range c.messages {
		if c.messages[i].IsProvisional() {
			provisional = append(provisional, c.messages[i])
		} else {
			known[c.messages[i].ID] = struct{}{}
		}
	}

	// Match provisionals against messages new to this snapshot by sender
	// and content, consuming each finalized copy at most once. Messages
	// already known locally are history and never confirm a pending send.
	consumed := make(map[int]struct{})
	var pending []domain.Message
	for _, p := range provisional {
		matched := false
		for i := range msgs {
			if _, done := consumed[i]; done {
				continue
			}
			if _, old := known[msgs[i].ID]; old || msgs[i].IsProvisional() {
				continue
			}
			if msgs[i].SenderID == p.SenderID && msgs[i].Content == p.Content {
				consumed[i] = struct{}{}
				matched = true
				break
			}
		}
		if !matched {
			pending = append(pending, p)
		}
	}

	c.messages = append(msgs, pending...)
	c.loading = false
}

// markAllRead flips every message to read. The flag never moves back, so a
// second sweep changes nothing.
func (c *messageChannel) markAllRead() bool {
	changed := false
	for i := range c.messages {
		if !c.messages[i].Read {
			c.messages[i].Read = true
			changed = true
		}
	}
	return changed
}

// snapshot returns a copy of the history safe to hand to callers.
func (c *messageChannel) snapshot() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}
