package repository

import (
	"context"
	"sync"
)

// MemoryLockSet is the in-process set of channel ids under recovery.
type MemoryLockSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLockSet() *MemoryLockSet {
	return &MemoryLockSet{held: make(map[string]struct{})}
}

func (l *MemoryLockSet) TryLock(_ context.Context, id string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[id]; ok {
		return nil, false, nil
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true, nil
}

func (l *MemoryLockSet) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}
