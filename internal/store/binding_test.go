package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lacocina/onboarding/internal/repository"
)

type closerForm struct {
	RestaurantName string `json:"restaurantName"`
	BranchCount    int    `json:"branchCount"`
}

func TestBind_FallsBackToInitial(t *testing.T) {
	ctx := context.Background()
	s := New(repository.NewMemoryStateStore())

	b := Bind(ctx, s, "closerFormData", closerForm{BranchCount: 1}, 0)
	assert.Equal(t, closerForm{BranchCount: 1}, b.Value())

	// the initial value is persisted right away
	got, ok := Load[closerForm](ctx, s, "closerFormData")
	require.True(t, ok)
	assert.Equal(t, closerForm{BranchCount: 1}, got)
}

func TestBind_RestoresStoredValue(t *testing.T) {
	ctx := context.Background()
	s := New(repository.NewMemoryStateStore())
	require.NoError(t, s.Set(ctx, "closerFormData", closerForm{RestaurantName: "Casa"}, Days(10)))

	b := Bind(ctx, s, "closerFormData", closerForm{}, Days(10))
	assert.Equal(t, "Casa", b.Value().RestaurantName)
}

func TestBinding_SetWritesThrough(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	s := New(backend)
	b := Bind(ctx, s, "form", closerForm{}, Days(10))
	writesAfterBind := backend.sets.Load()

	require.NoError(t, b.Set(ctx, closerForm{RestaurantName: "A"}))
	require.NoError(t, b.Set(ctx, closerForm{RestaurantName: "B"}))
	assert.Equal(t, writesAfterBind+2, backend.sets.Load(), "every Set is its own write")

	got, ok := Load[closerForm](ctx, s, "form")
	require.True(t, ok)
	assert.Equal(t, "B", got.RestaurantName)
}

func TestBinding_Update(t *testing.T) {
	ctx := context.Background()
	s := New(repository.NewMemoryStateStore())
	b := Bind(ctx, s, "form", closerForm{BranchCount: 1}, 0)

	require.NoError(t, b.Update(ctx, func(f closerForm) closerForm {
		f.BranchCount++
		return f
	}))

	assert.Equal(t, 2, b.Value().BranchCount)
	got, _ := Load[closerForm](ctx, s, "form")
	assert.Equal(t, 2, got.BranchCount)
}

func TestBinding_SetKeepsMemoryOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	s := New(backend)
	b := Bind(ctx, s, "form", closerForm{RestaurantName: "saved"}, 0)

	backend.failSets.Store(true)
	err := b.Set(ctx, closerForm{RestaurantName: "unsaved"})
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, "unsaved", b.Value().RestaurantName)

	got, _ := Load[closerForm](ctx, s, "form")
	assert.Equal(t, "saved", got.RestaurantName)
}
