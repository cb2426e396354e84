package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in a map for the life of the process.
type MemoryStore[V any] struct {
	mu sync.RWMutex
	m  map[string]Entry[V]
}

func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{m: make(map[string]Entry[V])}
}

func (s *MemoryStore[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return e, ok, nil
}

func (s *MemoryStore[V]) Set(_ context.Context, key string, e Entry[V]) error {
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
