// Package session tracks per-restaurant progress through the multi-step
// intake flow so an abandoned flow can be resumed.
//
// All records live in one list stored under a single key of an expiring
// store. Records older than the activity window are hidden on read and
// dropped from storage the next time the list is saved.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"lacocina/onboarding/internal/store"
)

const (
	DefaultKey    = "restaurantSessions"
	DefaultWindow = 30 * store.Day
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("session id is required")
)

type Option func(*Registry)

func WithKey(key string) Option {
	return func(r *Registry) { r.key = key }
}

// WithWindow sets how long a record stays active after its last update.
func WithWindow(window time.Duration) Option {
	return func(r *Registry) { r.window = window }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLocker shares the lock that serializes list writes, so several
// Registry values over the same list can coordinate.
func WithLocker(l sync.Locker) Option {
	return func(r *Registry) { r.mu = l }
}

type Registry struct {
	store  *store.Store
	key    string
	window time.Duration
	now    func() time.Time

	// serializes load-modify-write of the list within this process
	mu sync.Locker
}

func NewRegistry(s *store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		key:    DefaultKey,
		window: DefaultWindow,
		now:    s.Now,
		mu:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ActiveSessions returns the records updated within the window, in stored
// order. It never rewrites storage. A failed read yields an empty list.
func (r *Registry) ActiveSessions(ctx context.Context) []Record {
	active, err := r.load(ctx)
	if err != nil {
		return []Record{}
	}
	return active
}

// Get looks up an active record by id.
func (r *Registry) Get(ctx context.Context, id string) (Record, error) {
	return r.find(ctx, id)
}

// load is ActiveSessions with backend read errors surfaced. Writers must use
// it: treating an unreadable list as empty would overwrite every record.
func (r *Registry) load(ctx context.Context) ([]Record, error) {
	var all []Record
	if _, err := r.store.Lookup(ctx, r.key, &all); err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.window)
	active := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.LastUpdate.After(cutoff) {
			active = append(active, rec)
		}
	}
	return active, nil
}

func (r *Registry) find(ctx context.Context, id string) (Record, error) {
	sessions, err := r.load(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, rec := range sessions {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrSessionNotFound
}

// Save replaces the record with the same id, or appends it, and writes the
// whole active list back. The last save wins; fields are not merged.
func (r *Registry) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return ErrInvalidSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(ctx, rec)
}

func (r *Registry) saveLocked(ctx context.Context, rec Record) error {
	sessions, err := r.load(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range sessions {
		if sessions[i].ID == rec.ID {
			sessions[i] = rec
			found = true
			break
		}
	}
	if !found {
		sessions = append(sessions, rec)
	}
	return r.store.Set(ctx, r.key, sessions, r.window)
}

// Enter is called when a restaurant opens the intake flow. A known record
// resumes at ResumeStep; an unknown id gets a fresh record at the first step.
func (r *Registry) Enter(ctx context.Context, id string) (step Step, created bool, err error) {
	if id == "" {
		return 0, false, ErrInvalidSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.find(ctx, id)
	switch {
	case err == nil:
		return ResumeStep(existing), false, nil
	case !errors.Is(err, ErrSessionNotFound):
		return 0, false, err
	}

	rec := Record{
		ID:         id,
		LastStep:   StepBusinessForm,
		LastUpdate: r.now(),
	}
	if err := r.saveLocked(ctx, rec); err != nil {
		return 0, false, err
	}
	return StepBusinessForm, true, nil
}

// CompleteForm1 marks the business form done and moves the record to the
// operations step.
func (r *Registry) CompleteForm1(ctx context.Context, id string) (Record, error) {
	return r.update(ctx, id, func(rec *Record) {
		rec.LastStep = StepOperationsForm
		rec.Form1Completed = true
	})
}

// CompleteForm2 marks the operations form done and moves the record to the
// confirmation step.
func (r *Registry) CompleteForm2(ctx context.Context, id string) (Record, error) {
	return r.update(ctx, id, func(rec *Record) {
		rec.LastStep = StepConfirmation
		rec.Form2Completed = true
	})
}

// update only touches existing records; completing a form never creates one.
func (r *Registry) update(ctx context.Context, id string, fn func(*Record)) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return Record{}, err
	}
	fn(&rec)
	rec.LastUpdate = r.now()
	if err := r.saveLocked(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
