package service

import (
	"context"
	"sync"
	"time"

	"lacocina/onboarding/internal/session"
	"lacocina/onboarding/internal/store"
)

// EnterResult tells the front-end which step to open.
type EnterResult struct {
	Step    session.Step `json:"step"`
	Page    string       `json:"page"`
	Created bool         `json:"created"`
}

type SessionService interface {
	List(ctx context.Context, clientID string) []session.Record
	Get(ctx context.Context, clientID, id string) (session.Record, error)
	Save(ctx context.Context, clientID string, rec session.Record) error
	Enter(ctx context.Context, clientID, id string) (*EnterResult, error)
	CompleteForm(ctx context.Context, clientID, id string, form int) (session.Record, error)
}

type sessionService struct {
	root *store.Store
	opts []session.Option

	// per-client write locks, dropped once no call holds them
	mu    sync.Mutex
	locks map[string]*clientLock
}

type clientLock struct {
	sync.Mutex
	refs int
}

func NewSessionService(root *store.Store, key string, window time.Duration) SessionService {
	var opts []session.Option
	if key != "" {
		opts = append(opts, session.WithKey(key))
	}
	if window > 0 {
		opts = append(opts, session.WithWindow(window))
	}
	return &sessionService{root: root, opts: opts, locks: make(map[string]*clientLock)}
}

// registry returns a registry for clientID sharing that client's lock.
// The caller must invoke release when done.
func (s *sessionService) registry(clientID string) (r *session.Registry, release func()) {
	s.mu.Lock()
	l, ok := s.locks[clientID]
	if !ok {
		l = &clientLock{}
		s.locks[clientID] = l
	}
	l.refs++
	s.mu.Unlock()

	opts := make([]session.Option, 0, len(s.opts)+1)
	opts = append(opts, s.opts...)
	opts = append(opts, session.WithLocker(l))
	r = session.NewRegistry(s.root.Scoped(clientID), opts...)

	return r, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, clientID)
		}
	}
}

func (s *sessionService) List(ctx context.Context, clientID string) []session.Record {
	r, release := s.registry(clientID)
	defer release()
	return r.ActiveSessions(ctx)
}

func (s *sessionService) Get(ctx context.Context, clientID, id string) (session.Record, error) {
	r, release := s.registry(clientID)
	defer release()
	return r.Get(ctx, id)
}

func (s *sessionService) Save(ctx context.Context, clientID string, rec session.Record) error {
	if rec.LastUpdate.IsZero() {
		rec.LastUpdate = s.root.Now()
	}
	r, release := s.registry(clientID)
	defer release()
	return r.Save(ctx, rec)
}

func (s *sessionService) Enter(ctx context.Context, clientID, id string) (*EnterResult, error) {
	r, release := s.registry(clientID)
	defer release()
	step, created, err := r.Enter(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EnterResult{Step: step, Page: step.String(), Created: created}, nil
}

func (s *sessionService) CompleteForm(ctx context.Context, clientID, id string, form int) (session.Record, error) {
	r, release := s.registry(clientID)
	defer release()
	switch form {
	case 1:
		return r.CompleteForm1(ctx, id)
	case 2:
		return r.CompleteForm2(ctx, id)
	default:
		return session.Record{}, ErrInvalidForm
	}
}
