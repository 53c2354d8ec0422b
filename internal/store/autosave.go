package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultAutosaveInterval = 30 * time.Second

// Autosaver rewrites one entry on a fixed interval from a snapshot
// function, whether or not the value changed. It backs up the write-through
// path of a Binding.
type Autosaver struct {
	store    *Store
	key      string
	snapshot func() any
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutosaver returns a stopped autosaver. interval and ttl fall back to
// DefaultAutosaveInterval and DefaultTTL when not positive.
func NewAutosaver(s *Store, key string, snapshot func() any, interval, ttl time.Duration, logger *zap.Logger) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		store:    s,
		key:      key,
		snapshot: snapshot,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
	}
}

// Start writes the current snapshot once and then every interval until
// Stop is called or ctx is done.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return ErrAutosaveRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done

	a.write(runCtx)
	go a.run(runCtx, done)
	return nil
}

func (a *Autosaver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.release(done)
			return
		case <-ticker.C:
			a.write(ctx)
		}
	}
}

// release forgets the run that owns done, unless Stop or a newer Start
// already replaced it.
func (a *Autosaver) release(done chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != done {
		return
	}
	a.cancel()
	a.cancel, a.done = nil, nil
}

func (a *Autosaver) write(ctx context.Context) {
	if err := a.store.Set(ctx, a.key, a.snapshot(), a.ttl); err != nil {
		a.logger.Warn("autosave failed", zap.String("key", a.key), zap.Error(err))
	}
}

// Stop cancels the timer and waits for the loop to exit, so no write
// happens after it returns. Stopping a stopped autosaver is a no-op.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is live. It turns false after Stop or
// once the Start context is done.
func (a *Autosaver) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Save writes the current snapshot now.
func (a *Autosaver) Save(ctx context.Context) error {
	return a.store.Set(ctx, a.key, a.snapshot(), a.ttl)
}

// Clear deletes the entry. A running autosaver writes it again on its next tick.
func (a *Autosaver) Clear(ctx context.Context) error {
	return a.store.Remove(ctx, a.key)
}
