package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) isExpired() bool {
	return e.hasTTL && time.Now().After(e.expiresAt)
}

type memoryStateStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryStateStore() StateStore {
	return &memoryStateStore{
		entries: make(map[string]memEntry),
	}
}

func (s *memoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.isExpired() {
		if ok && entry.isExpired() {
			s.mu.Lock()
			delete(s.entries, key)
			s.mu.Unlock()
		}
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *memoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStateStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.isExpired() || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
