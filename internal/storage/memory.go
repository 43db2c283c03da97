package storage

import (
	"context"
	"fmt"
	"sync"

	"ratelimiter/internal/models"
)

// MemoryStorage keeps the most recent violations in a fixed-size ring buffer.
// Older entries are overwritten once MaxEntries is reached and everything is
// lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	buf    []*models.Violation
	next   int
	count  int
	closed bool
}

// NewMemoryStorage creates a new memory-based violation store
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	if config.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", config.MaxEntries)
	}
	return &MemoryStorage{
		buf: make([]*models.Violation, config.MaxEntries),
	}, nil
}

// RecordViolation stores a copy of v, evicting the oldest entry when full.
func (m *MemoryStorage) RecordViolation(ctx context.Context, v *models.Violation) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid violation: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	vCopy := *v
	m.buf[m.next] = &vCopy
	m.next = (m.next + 1) % len(m.buf)
	if m.count < len(m.buf) {
		m.count++
	}
	return nil
}

// RecentViolations returns up to limit violations, newest first.
func (m *MemoryStorage) RecentViolations(ctx context.Context, limit int) ([]*models.Violation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	n := min(normalizeLimit(limit), m.count)
	out := make([]*models.Violation, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		vCopy := *m.buf[idx]
		out = append(out, &vCopy)
	}
	return out, nil
}

// Len returns the number of stored violations.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the buffer.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.buf = nil
	m.count = 0
	return nil
}
