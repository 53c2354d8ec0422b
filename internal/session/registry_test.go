package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lacocina/onboarding/internal/repository"
	"lacocina/onboarding/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *store.Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	s := store.New(repository.NewMemoryStateStore(), store.WithClock(clock.Now))
	return NewRegistry(s), s, clock
}

var errReadDown = errors.New("read down")

// readFailingBackend fails the next n backend reads.
type readFailingBackend struct {
	repository.StateStore
	failures atomic.Int64
}

func (b *readFailingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.failures.Load() > 0 {
		b.failures.Add(-1)
		return nil, errReadDown
	}
	return b.StateStore.Get(ctx, key)
}

func newFailingRegistry(t *testing.T) (*Registry, *readFailingBackend, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	backend := &readFailingBackend{StateStore: repository.NewMemoryStateStore()}
	s := store.New(backend, store.WithClock(clock.Now))
	return NewRegistry(s), backend, clock
}

func TestRegistry_EmptyWhenAbsent(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	sessions := r.ActiveSessions(context.Background())
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)

	_, err := r.Get(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SaveSameIDIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	r, _, clock := newTestRegistry(t)
	t0 := clock.Now()

	require.NoError(t, r.Save(ctx, Record{ID: "R0", LastStep: StepBusinessForm, LastUpdate: t0}))
	require.NoError(t, r.Save(ctx, Record{ID: "R1", LastStep: StepBusinessForm, LastUpdate: t0}))
	before := len(r.ActiveSessions(ctx))

	t1 := t0.Add(time.Hour)
	clock.Advance(time.Hour)
	require.NoError(t, r.Save(ctx, Record{ID: "R1", LastStep: StepBusinessForm, LastUpdate: t1, Form1Completed: true}))

	sessions := r.ActiveSessions(ctx)
	assert.Len(t, sessions, before)

	got, err := r.Get(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, got.Form1Completed)
	assert.False(t, got.Form2Completed)
	assert.True(t, got.LastUpdate.Equal(t1))

	// stored order is preserved on replace
	assert.Equal(t, "R0", sessions[0].ID)
	assert.Equal(t, "R1", sessions[1].ID)
}

func TestRegistry_ActivityWindow(t *testing.T) {
	ctx := context.Background()
	r, _, clock := newTestRegistry(t)
	now := clock.Now()

	require.NoError(t, r.Save(ctx, Record{ID: "fresh", LastUpdate: now.Add(-29 * store.Day)}))
	require.NoError(t, r.Save(ctx, Record{ID: "stale", LastUpdate: now.Add(-31 * store.Day)}))

	ids := []string{}
	for _, rec := range r.ActiveSessions(ctx) {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"fresh"}, ids)

	_, err := r.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_ReadsDoNotRewriteStorage(t *testing.T) {
	ctx := context.Background()
	r, s, clock := newTestRegistry(t)
	now := clock.Now()

	// written directly so the stale record reaches storage
	require.NoError(t, s.Set(ctx, DefaultKey, []Record{
		{ID: "old", LastUpdate: now.Add(-40 * store.Day)},
		{ID: "new", LastUpdate: now},
	}, DefaultWindow))

	assert.Len(t, r.ActiveSessions(ctx), 1)
	stored, ok := store.Load[[]Record](ctx, s, DefaultKey)
	require.True(t, ok)
	assert.Len(t, stored, 2)

	// the next save drops the stale record
	require.NoError(t, r.Save(ctx, Record{ID: "other", LastUpdate: now}))
	stored, _ = store.Load[[]Record](ctx, s, DefaultKey)
	assert.Len(t, stored, 2)
	for _, rec := range stored {
		assert.NotEqual(t, "old", rec.ID)
	}
}

func TestRegistry_SaveRequiresID(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	assert.ErrorIs(t, r.Save(context.Background(), Record{}), ErrInvalidSession)
}

func TestRegistry_EnterCreatesThenResumes(t *testing.T) {
	ctx := context.Background()
	r, _, clock := newTestRegistry(t)

	step, created, err := r.Enter(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StepBusinessForm, step)

	rec, err := r.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, StepBusinessForm, rec.LastStep)
	assert.False(t, rec.Form1Completed)
	assert.True(t, rec.LastUpdate.Equal(clock.Now()))

	step, created, err = r.Enter(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StepBusinessForm, step)
	assert.Len(t, r.ActiveSessions(ctx), 1)
}

func TestRegistry_CompleteForms(t *testing.T) {
	ctx := context.Background()
	r, _, clock := newTestRegistry(t)

	_, _, err := r.Enter(ctx, "R1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	rec, err := r.CompleteForm1(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, StepOperationsForm, rec.LastStep)
	assert.True(t, rec.Form1Completed)
	assert.True(t, rec.LastUpdate.Equal(clock.Now()))

	clock.Advance(time.Minute)
	rec, err = r.CompleteForm2(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, rec.LastStep)
	assert.True(t, rec.Form1Completed)
	assert.True(t, rec.Form2Completed)

	_, err = r.CompleteForm1(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Len(t, r.ActiveSessions(ctx), 1)
}

func TestResumeStep(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want Step
	}{
		{"nothing completed", Record{}, StepBusinessForm},
		// operations form is skipped on resume; kept as deployed
		{"only form1", Record{Form1Completed: true}, StepConfirmation},
		{"both forms", Record{Form1Completed: true, Form2Completed: true}, StepConfirmation},
		{"only form2", Record{Form2Completed: true}, StepBusinessForm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResumeStep(tt.rec))
		})
	}
}

func TestRegistry_EnterAfterForm1ResumesAtConfirmation(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	_, _, err := r.Enter(ctx, "R1")
	require.NoError(t, err)
	_, err = r.CompleteForm1(ctx, "R1")
	require.NoError(t, err)

	step, created, err := r.Enter(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StepConfirmation, step)
}

func TestRecord_JSONUsesMilliseconds(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	data, err := Record{ID: "R1", LastStep: StepOperationsForm, LastUpdate: ts, Form1Completed: true}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"R1","lastStep":2,"lastUpdate":1767323045006,"form1Completed":true,"form2Completed":false}`, string(data))

	var back Record
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, back.LastUpdate.Equal(ts))
}

func TestRegistry_ConcurrentSavesKeepEveryID(t *testing.T) {
	ctx := context.Background()
	r, _, clock := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Save(ctx, Record{ID: string(rune('a' + i)), LastUpdate: clock.Now()})
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.ActiveSessions(ctx), 20)
}

func TestRegistry_SaveAbortsWhenListUnreadable(t *testing.T) {
	ctx := context.Background()
	r, backend, clock := newFailingRegistry(t)

	for _, id := range []string{"R1", "R2", "R3"} {
		require.NoError(t, r.Save(ctx, Record{ID: id, LastStep: StepBusinessForm, LastUpdate: clock.Now()}))
	}

	backend.failures.Store(1)
	err := r.Save(ctx, Record{ID: "R4", LastStep: StepBusinessForm, LastUpdate: clock.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrReadFailed)
	assert.ErrorIs(t, err, errReadDown)

	assert.Len(t, r.ActiveSessions(ctx), 3)

	require.NoError(t, r.Save(ctx, Record{ID: "R4", LastStep: StepBusinessForm, LastUpdate: clock.Now()}))
	assert.Len(t, r.ActiveSessions(ctx), 4)
}

func TestRegistry_EnterAndCompleteKeepRecordsWhenListUnreadable(t *testing.T) {
	ctx := context.Background()
	r, backend, _ := newFailingRegistry(t)

	_, _, err := r.Enter(ctx, "R1")
	require.NoError(t, err)
	_, err = r.CompleteForm1(ctx, "R1")
	require.NoError(t, err)
	_, _, err = r.Enter(ctx, "R2")
	require.NoError(t, err)

	backend.failures.Store(1)
	_, created, err := r.Enter(ctx, "R1")
	assert.ErrorIs(t, err, store.ErrReadFailed)
	assert.False(t, created)

	backend.failures.Store(1)
	_, err = r.CompleteForm2(ctx, "R2")
	assert.ErrorIs(t, err, store.ErrReadFailed)

	backend.failures.Store(1)
	_, err = r.Get(ctx, "R1")
	assert.ErrorIs(t, err, store.ErrReadFailed)

	rec, err := r.Get(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, rec.Form1Completed)
	assert.Equal(t, StepConfirmation, ResumeStep(rec))
	assert.Len(t, r.ActiveSessions(ctx), 2)
}

func TestRegistry_SharedLockerSerializesRegistries(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	s := store.New(repository.NewMemoryStateStore(), store.WithClock(clock.Now))
	lock := &sync.Mutex{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewRegistry(s, WithLocker(lock))
			_ = r.Save(ctx, Record{ID: string(rune('a' + i)), LastUpdate: clock.Now()})
		}(i)
	}
	wg.Wait()
	assert.Len(t, NewRegistry(s).ActiveSessions(ctx), 20)
}
