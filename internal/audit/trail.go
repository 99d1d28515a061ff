package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCapacity = 500

// Trail keeps the most recent entries in memory and mirrors each one to the log.
// Entries do not survive a restart.
type Trail struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewTrail constructs a trail holding at most capacity entries.
func NewTrail(capacity int, logger *zap.Logger) *Trail {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{
		capacity: capacity,
		logger:   logger.With(zap.String("component", "audit")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Log appends an entry, dropping the oldest when full.
func (t *Trail) Log(_ context.Context, entry Entry) error {
	if t == nil {
		return errors.New("audit trail: nil")
	}
	if entry.Action == "" {
		return errors.New("audit trail: action required")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if over := len(t.entries) - t.capacity; over > 0 {
		t.entries = append([]Entry(nil), t.entries[over:]...)
	}
	t.mu.Unlock()

	t.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.String("actor", entry.Actor),
		zap.String("role", entry.Role),
	)
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (t *Trail) Recent(limit int) []Entry {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.entries[i])
	}
	return out
}
