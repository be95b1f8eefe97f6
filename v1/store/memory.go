package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	deadline time.Time
	timer    *time.Timer
}

// InMemory implements Store using local process memory. It is meant for
// single-process coordination and for tests; entries expire through a
// per-entry timer and are additionally checked lazily on access.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]*memoryEntry)}
}

// SetIfAbsent implements Store.SetIfAbsent.
func (s *InMemory) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if cur, ok := s.entries[key]; ok {
		if now.Before(cur.deadline) {
			return false, nil
		}
		cur.timer.Stop()
	}
	e := &memoryEntry{value: value, deadline: now.Add(ttl)}
	e.timer = time.AfterFunc(ttl, func() {
		s.mu.Lock()
		// Only reap the entry this timer was armed for.
		if s.entries[key] == e {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	})
	s.entries[key] = e
	return true, nil
}

// DeleteIfEquals implements Store.DeleteIfEquals.
func (s *InMemory) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	if !ok || !time.Now().Before(cur.deadline) || cur.value != value {
		return false, nil
	}
	cur.timer.Stop()
	delete(s.entries, key)
	return true, nil
}
