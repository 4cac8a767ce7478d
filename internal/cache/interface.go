package cache

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cache miss")

// UnreadCache keeps the aggregate unread badge per participant so the
// dashboard header can read it without summing room rows.
type UnreadCache interface {
	// AddTotal adjusts a participant's aggregate unread count by delta.
	AddTotal(ctx context.Context, participantID string, delta int) error
	// SetTotal overwrites a participant's aggregate unread count.
	SetTotal(ctx context.Context, participantID string, total int) error
	// GetTotal returns a participant's aggregate unread count, or
	// ErrCacheMiss when nothing has been recorded yet.
	GetTotal(ctx context.Context, participantID string) (int, error)
	Close() error
}
