package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lacocina/onboarding/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBackendDown = errors.New("backend down")

// flakyBackend wraps a real backend, counts writes, and fails writes on demand.
type flakyBackend struct {
	repository.StateStore
	failSets    atomic.Bool
	sets        atomic.Int64
	getFailures atomic.Int64
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{StateStore: repository.NewMemoryStateStore()}
}

func (b *flakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b.failSets.Load() {
		return errBackendDown
	}
	b.sets.Add(1)
	return b.StateStore.Set(ctx, key, value, ttl)
}

// failGets makes the next n backend reads fail.
func (b *flakyBackend) failGets(n int64) {
	b.getFailures.Store(n)
}

func (b *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.getFailures.Load() > 0 {
		b.getFailures.Add(-1)
		return nil, errBackendDown
	}
	return b.StateStore.Get(ctx, key)
}
