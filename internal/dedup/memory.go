package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

// Memory keeps records in an ordered in-process list. Expired entries are
// purged lazily on every call; there is no background timer. Dedup is only
// effective within one process.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	records []domain.StatusChangeRecord
}

// NewMemory builds an in-memory deduplicator. A nil now uses time.Now.
func NewMemory(window time.Duration, now func() time.Time) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{window: window, now: now}
}

func (m *Memory) RegisterChange(_ context.Context, record domain.StatusChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.purge(now)
	if record.Timestamp.IsZero() {
		record.Timestamp = now
	}
	m.records = append(m.records, record)
	return nil
}

func (m *Memory) IsDuplicateChange(_ context.Context, ticketID, taskID string, status domain.TicketStatus, origin domain.ChangeOrigin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(m.now())
	for _, rec := range m.records {
		if rec.TicketID == ticketID && rec.TaskID == taskID && rec.NewStatus == status && rec.Origin == origin {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Forget(_ context.Context, record domain.StatusChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.records[:0]
	for _, rec := range m.records {
		if rec.TicketID == record.TicketID && rec.TaskID == record.TaskID && rec.NewStatus == record.NewStatus && rec.Origin == record.Origin {
			continue
		}
		live = append(live, rec)
	}
	m.records = live
	return nil
}

// Len returns the number of live records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(m.now())
	return len(m.records)
}

// purge drops records older than the window.
func (m *Memory) purge(now time.Time) {
	cutoff := now.Add(-m.window)
	live := m.records[:0]
	for _, rec := range m.records {
		if rec.Timestamp.After(cutoff) {
			live = append(live, rec)
		}
	}
	m.records = live
}
