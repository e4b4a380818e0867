package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryDedupStore keeps processed message ids in a process-local map.
type MemoryDedupStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time // id -> first seen
}

func NewMemoryDedupStore(ttl time.Duration) *MemoryDedupStore {
	return &MemoryDedupStore{
		ttl:   ttl,
		items: make(map[string]time.Time),
	}
}

func (s *MemoryDedupStore) MarkIfAbsent(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seen, ok := s.items[id]; ok && now.Sub(seen) < s.ttl {
		return false, nil
	}
	s.items[id] = now
	return true, nil
}

func (s *MemoryDedupStore) Seen(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.items[id]
	if !ok {
		return false, nil
	}
	if now.Sub(seen) >= s.ttl {
		delete(s.items, id)
		return false, nil
	}
	return true, nil
}

func (s *MemoryDedupStore) Sweep(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, seen := range s.items {
		if now.Sub(seen) >= s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryDedupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryDedupStore) Reset() {
	s.mu.Lock()
	s.items = make(map[string]time.Time)
	s.mu.Unlock()
}
