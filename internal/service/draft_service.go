package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lacocina/onboarding/internal/store"
)

// DraftService keeps open form drafts in memory. Each open draft is a
// write-through binding plus an autosaver; Close tears both down. Drafts
// left untouched for longer than the idle timeout are saved and closed.
type DraftService interface {
	Open(ctx context.Context, clientID, key string, initial json.RawMessage) (json.RawMessage, error)
	Put(ctx context.Context, clientID, key string, value json.RawMessage) error
	Patch(ctx context.Context, clientID, key string, fields map[string]json.RawMessage) (json.RawMessage, error)
	Get(clientID, key string) (json.RawMessage, error)
	Close(ctx context.Context, clientID, key string, discard bool) error
	Reap(ctx context.Context) int
	Shutdown(ctx context.Context)
}

type draft struct {
	binding   *store.Binding[json.RawMessage]
	autosaver *store.Autosaver
	lastUsed  atomic.Int64 // unix nanos

	// closed is set once the draft leaves the map; writes after it are refused
	mu     sync.Mutex
	closed bool
}

func (d *draft) touch(now time.Time) {
	d.lastUsed.Store(now.UnixNano())
}

func (d *draft) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, d.lastUsed.Load()))
}

// write runs fn unless the draft was closed first.
func (d *draft) write(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDraftNotOpen
	}
	return fn()
}

type draftKey struct {
	clientID string
	key      string
}

type draftService struct {
	root        *store.Store
	ttl         time.Duration
	interval    time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger

	// autosavers outlive the request that opened them
	baseCtx  context.Context
	stop     context.CancelFunc
	reapDone chan struct{}

	mu     sync.Mutex
	drafts map[draftKey]*draft
	closed bool
}

// NewDraftService starts a background reaper when idleTimeout > 0.
func NewDraftService(root *store.Store, ttl, interval, idleTimeout time.Duration, logger *zap.Logger) DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	s := &draftService{
		root:        root,
		ttl:         ttl,
		interval:    interval,
		idleTimeout: idleTimeout,
		logger:      logger,
		baseCtx:     baseCtx,
		stop:        stop,
		drafts:      make(map[draftKey]*draft),
	}
	if idleTimeout > 0 {
		s.reapDone = make(chan struct{})
		go s.reapLoop()
	}
	return s
}

func (s *draftService) reapLoop() {
	defer close(s.reapDone)
	period := s.idleTimeout / 4
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			s.Reap(s.baseCtx)
		}
	}
}

// Open returns the draft's current value. The stored value wins over
// initial; opening an already open draft leaves it untouched.
func (s *draftService) Open(ctx context.Context, clientID, key string, initial json.RawMessage) (json.RawMessage, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		initial = json.RawMessage("null")
	}
	if !json.Valid(initial) {
		return nil, ErrInvalidValue
	}

	dk := draftKey{clientID: clientID, key: key}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosing
	}
	if d, ok := s.drafts[dk]; ok {
		s.mu.Unlock()
		d.touch(s.root.Now())
		return d.binding.Value(), nil
	}
	s.mu.Unlock()

	// Bind reads and writes the backend, keep it outside the service lock
	scoped := s.root.Scoped(clientID)
	binding := store.Bind(ctx, scoped, key, initial, s.ttl)
	autosaver := store.NewAutosaver(scoped, binding.Key(), func() any { return binding.Value() }, s.interval, s.ttl,
		s.logger.With(zap.String("client_id", clientID)))
	if err := autosaver.Start(s.baseCtx); err != nil {
		return nil, err
	}
	d := &draft{binding: binding, autosaver: autosaver}
	d.touch(s.root.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		autosaver.Stop()
		return nil, ErrServiceClosing
	}
	if existing, ok := s.drafts[dk]; ok {
		s.mu.Unlock()
		autosaver.Stop()
		existing.touch(s.root.Now())
		return existing.binding.Value(), nil
	}
	s.drafts[dk] = d
	s.mu.Unlock()

	s.logger.Debug("draft opened", zap.String("client_id", clientID), zap.String("key", key))
	return binding.Value(), nil
}

func (s *draftService) lookup(clientID, key string) (*draft, error) {
	s.mu.Lock()
	d, ok := s.drafts[draftKey{clientID: clientID, key: key}]
	s.mu.Unlock()
	if !ok {
		return nil, ErrDraftNotOpen
	}
	d.touch(s.root.Now())
	return d, nil
}

func (s *draftService) Put(ctx context.Context, clientID, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}
	d, err := s.lookup(clientID, key)
	if err != nil {
		return err
	}
	return d.write(func() error { return d.binding.Set(ctx, value) })
}

// Patch merges fields into the draft's top-level object. A draft holding
// anything other than an object is replaced by one.
func (s *draftService) Patch(ctx context.Context, clientID, key string, fields map[string]json.RawMessage) (json.RawMessage, error) {
	for _, v := range fields {
		if !json.Valid(v) {
			return nil, ErrInvalidValue
		}
	}
	d, err := s.lookup(clientID, key)
	if err != nil {
		return nil, err
	}
	err = d.write(func() error {
		return d.binding.Update(ctx, func(cur json.RawMessage) json.RawMessage {
			return mergeFields(cur, fields)
		})
	})
	if err != nil {
		return nil, err
	}
	return d.binding.Value(), nil
}

func mergeFields(cur json.RawMessage, fields map[string]json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(cur, &obj); err != nil || obj == nil {
		obj = make(map[string]json.RawMessage, len(fields))
	}
	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return cur
	}
	return merged
}

func (s *draftService) Get(clientID, key string) (json.RawMessage, error) {
	d, err := s.lookup(clientID, key)
	if err != nil {
		return nil, err
	}
	return d.binding.Value(), nil
}

// Close stops the draft's autosaver. With discard the stored entry is
// removed as well, otherwise a final save is made.
func (s *draftService) Close(ctx context.Context, clientID, key string, discard bool) error {
	dk := draftKey{clientID: clientID, key: key}
	s.mu.Lock()
	d, ok := s.drafts[dk]
	delete(s.drafts, dk)
	s.mu.Unlock()
	if !ok {
		return ErrDraftNotOpen
	}
	return s.closeDraft(ctx, d, discard)
}

// closeDraft expects d to be out of the map already.
func (s *draftService) closeDraft(ctx context.Context, d *draft, discard bool) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.autosaver.Stop()
	if discard {
		return d.autosaver.Clear(ctx)
	}
	return d.autosaver.Save(ctx)
}

// Reap saves and closes drafts idle for longer than the idle timeout, and
// drafts whose autosaver is no longer running. It returns how many it closed.
func (s *draftService) Reap(ctx context.Context) int {
	now := s.root.Now()
	idle := make(map[draftKey]*draft)

	s.mu.Lock()
	for dk, d := range s.drafts {
		expired := s.idleTimeout > 0 && d.idleSince(now) > s.idleTimeout
		if expired || !d.autosaver.Running() {
			idle[dk] = d
			delete(s.drafts, dk)
		}
	}
	s.mu.Unlock()

	for dk, d := range idle {
		if err := s.closeDraft(ctx, d, false); err != nil {
			s.logger.Warn("idle draft save failed",
				zap.String("client_id", dk.clientID), zap.String("key", dk.key), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		s.logger.Info("idle drafts closed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Shutdown saves and stops every open draft. Open fails afterwards.
func (s *draftService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	drafts := s.drafts
	s.drafts = make(map[draftKey]*draft)
	s.mu.Unlock()

	for dk, d := range drafts {
		if err := s.closeDraft(ctx, d, false); err != nil {
			s.logger.Warn("final draft save failed",
				zap.String("client_id", dk.clientID), zap.String("key", dk.key), zap.Error(err))
		}
	}
	s.stop()
	if s.reapDone != nil {
		<-s.reapDone
	}
	s.logger.Info("drafts flushed", zap.Int("count", len(drafts)))
}
