package storage

import (
	"strings"
	"sync"
	"sync/atomic"
)

// shard holds one list with its own lock
type shard struct {
	mu      sync.RWMutex
	members []string
}

// MemoryStorage implements an in-memory list store
type MemoryStorage struct {
	capacity int
	shards   []shard
	closed   atomic.Bool
}

// NewMemory creates an in-memory store with the given number of empty lists
func NewMemory(lists, capacity int) (*MemoryStorage, error) {
	if err := (Limits{Lists: lists, Capacity: capacity}).Validate(); err != nil {
		return nil, err
	}
	return &MemoryStorage{
		capacity: capacity,
		shards:   make([]shard, lists),
	}, nil
}

// Lists returns the number of lists
func (s *MemoryStorage) Lists() int {
	return len(s.shards)
}

// Capacity returns the maximum number of members per list
func (s *MemoryStorage) Capacity() int {
	return s.capacity
}

func (s *MemoryStorage) shard(list int) (*shard, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if list < 0 || list >= len(s.shards) {
		return nil, ErrNoSuchList
	}
	return &s.shards[list], nil
}

// Count returns the number of members in list
func (s *MemoryStorage) Count(list int) (int, error) {
	sh, err := s.shard(list)
	if err != nil {
		return 0, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.members), nil
}

// Members returns a copy of the members of list in insertion order
func (s *MemoryStorage) Members(list int) ([]string, error) {
	sh, err := s.shard(list)
	if err != nil {
		return nil, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return append([]string{}, sh.members...), nil
}

// Append adds name to list unless the list is full
func (s *MemoryStorage) Append(list int, name string) (int, error) {
	if strings.ContainsAny(name, "\r\n") || len(name) > maxNameSize {
		return 0, ErrInvalidName
	}
	sh, err := s.shard(list)
	if err != nil {
		return 0, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.members) >= s.capacity {
		return len(sh.members), ErrListFull
	}
	sh.members = append(sh.members, name)
	return len(sh.members), nil
}

// Reset empties every list
func (s *MemoryStorage) Reset() error {
	if s.closed.Load() {
		return ErrClosed
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.members = nil
		sh.mu.Unlock()
	}
	return nil
}

// Close releases the store; later calls fail with ErrClosed
func (s *MemoryStorage) Close() error {
	s.closed.Store(true)
	return nil
}
