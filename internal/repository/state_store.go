package repository

import (
	"context"
	"time"
)

// StateStore abstracts raw key-value state.
// Implementations: Redis, PostgreSQL via GORM, or in-memory (local dev / single instance).
//
// Get returns (nil, nil) for a missing or expired key. Keys lists every live
// key starting with prefix; an empty prefix lists everything.
type StateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
