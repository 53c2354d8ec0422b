package store

import (
	"context"
	"sync"
	"time"
)

// Binding keeps an in-memory value in step with one store entry. It is
// loaded from the store when created and every Set writes the whole value
// back immediately; there is no batching.
type Binding[T any] struct {
	store *Store
	key   string
	ttl   time.Duration

	mu    sync.RWMutex
	value T
}

// Bind loads key from s, falling back to initial when the entry is absent,
// and writes the resulting value once so the entry exists from the start.
// A ttl <= 0 selects DefaultTTL.
func Bind[T any](ctx context.Context, s *Store, key string, initial T, ttl time.Duration) *Binding[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b := &Binding[T]{store: s, key: key, ttl: ttl, value: initial}
	if v, ok := Load[T](ctx, s, key); ok {
		b.value = v
	}
	// a failed initial write is already logged by the store; the next Set retries
	_ = s.Set(ctx, key, b.value, ttl)
	return b
}

func (b *Binding[T]) Key() string { return b.key }

func (b *Binding[T]) Value() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// Set replaces the value and writes it through. The in-memory value is
// updated even when the write fails.
func (b *Binding[T]) Set(ctx context.Context, v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = v
	return b.store.Set(ctx, b.key, v, b.ttl)
}

// Update applies fn to the current value under the binding's lock.
func (b *Binding[T]) Update(ctx context.Context, fn func(T) T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = fn(b.value)
	return b.store.Set(ctx, b.key, b.value, b.ttl)
}
