package history

import (
	"context"
	"sync"
)

// Memory keeps the last Capacity records in a ring.
type Memory struct {
	mu     sync.Mutex
	buf    []Record
	next   int
	filled bool
	closed bool
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{buf: make([]Record, capacity)}
}

func (m *Memory) Put(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.add(r)
	return nil
}

func (m *Memory) add(r Record) {
	m.buf[m.next] = r
	m.next = (m.next + 1) % len(m.buf)
	if m.next == 0 {
		m.filled = true
	}
}

func (m *Memory) List(_ context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.listLocked(q), nil
}

func (m *Memory) listLocked(q Query) []Record {
	n := m.next
	if m.filled {
		n = len(m.buf)
	}
	limit := q.Limit
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := 0; i < n && len(out) < limit; i++ {
		idx := (m.next - 1 - i + len(m.buf)) % len(m.buf)
		r := m.buf[idx]
		if q.WatchID != "" && r.WatchID != q.WatchID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
