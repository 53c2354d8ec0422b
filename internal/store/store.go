// Package store implements an expiring key-value store on top of a raw
// repository.StateStore, plus the write-through binding and periodic
// autosave helpers built on it.
//
// Every value is kept in a JSON envelope:
//
//	{"value": <any JSON>, "expiry": <unix milliseconds>}
//
// An entry whose expiry has passed is treated as absent and deleted the
// next time it is read (or by Compact). Read, parse and backend failures
// on the read path are logged and reported as "absent", never returned.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lacocina/onboarding/internal/repository"
)

const (
	Day = 24 * time.Hour

	// DefaultTTL applies when a caller does not pick one.
	DefaultTTL = 10 * Day
)

// Days converts a day count to a TTL.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

type entry struct {
	Value  json.RawMessage `json:"value"`
	Expiry int64           `json:"expiry"`
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithNamespace prefixes every key with ns + ":".
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.prefix = ns + ":"
		}
	}
}

type Store struct {
	backend repository.StateStore
	prefix  string
	now     func() time.Time
	logger  *zap.Logger
}

func New(backend repository.StateStore, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scoped returns a view over the same backend whose keys live under ns
// inside this store's namespace. Clear and Compact on the view only touch
// the view's keys.
func (s *Store) Scoped(ns string) *Store {
	return &Store{
		backend: s.backend,
		prefix:  s.prefix + ns + ":",
		now:     s.now,
		logger:  s.logger,
	}
}

// Now reports the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

// Set writes value under key with expiry now+ttl, replacing any previous
// entry. On failure the previous entry is left as it was.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}
	data, err := json.Marshal(entry{
		Value:  raw,
		Expiry: s.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal entry for %q: %w", key, err)
	}

	if err := s.backend.Set(ctx, s.fullKey(key), data, ttl); err != nil {
		s.logger.Error("failed to write entry", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Get decodes the live value under key into dst and reports whether one
// was found. A nil dst only checks presence.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return false
	}
	if dst == nil {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("stored value does not decode", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// GetRaw returns the live value under key as JSON.
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, ok, err := s.lookupRaw(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

// Lookup is Get for read-modify-write callers: missing, expired and
// undecodable entries still report false, but a backend failure is
// returned as an error wrapping ErrReadFailed instead of looking like an
// empty entry.
func (s *Store) Lookup(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := s.lookupRaw(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read entry", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	if !ok || dst == nil {
		return ok, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("stored value does not decode", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Store) lookupRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	full := s.fullKey(key)
	data, err := s.backend.Get(ctx, full)
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	e, err := decodeEntry(data)
	if err != nil {
		s.logger.Warn("corrupt entry treated as absent", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if s.expired(e) {
		s.evict(ctx, full)
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Load is the typed form of Get.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var v T
	if !s.Get(ctx, key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil {
		s.logger.Error("failed to remove entry", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Clear deletes every key in this store's namespace.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Compact reads every entry in the namespace and deletes the expired and
// undecodable ones. It returns how many were deleted.
func (s *Store) Compact(ctx context.Context) (int, error) {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	evicted := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		data, err := s.backend.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		e, err := decodeEntry(data)
		if err == nil && !s.expired(e) {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn("compaction delete failed", zap.String("key", key), zap.Error(err))
			continue
		}
		evicted++
	}
	return evicted, nil
}

// RunCompaction calls Compact every interval until ctx is done.
func (s *Store) RunCompaction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Compact(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("compaction failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("compaction evicted entries", zap.Int("evicted", n))
			}
		}
	}
}

func (s *Store) expired(e entry) bool {
	return s.now().UnixMilli() > e.Expiry
}

func (s *Store) evict(ctx context.Context, fullKey string) {
	if err := s.backend.Delete(ctx, fullKey); err != nil {
		s.logger.Warn("failed to evict expired entry", zap.String("key", fullKey), zap.Error(err))
	}
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, err
	}
	if len(e.Value) == 0 {
		e.Value = json.RawMessage("null")
	}
	return e, nil
}
