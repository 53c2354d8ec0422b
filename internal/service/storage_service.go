package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"lacocina/onboarding/internal/store"
)

const maxKeyLength = 256

// StorageService exposes each client's expiring key-value namespace.
type StorageService interface {
	Set(ctx context.Context, clientID, key string, value json.RawMessage, ttl time.Duration) error
	Get(ctx context.Context, clientID, key string) (json.RawMessage, error)
	Remove(ctx context.Context, clientID, key string) error
	Clear(ctx context.Context, clientID string) error
}

type storageService struct {
	root       *store.Store
	defaultTTL time.Duration
}

// NewStorageService serves client namespaces carved out of root. A ttl of
// zero on Set selects defaultTTL.
func NewStorageService(root *store.Store, defaultTTL time.Duration) StorageService {
	if defaultTTL <= 0 {
		defaultTTL = store.DefaultTTL
	}
	return &storageService{root: root, defaultTTL: defaultTTL}
}

func (s *storageService) Set(ctx context.Context, clientID, key string, value json.RawMessage, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return ErrInvalidValue
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	return s.root.Scoped(clientID).Set(ctx, key, value, ttl)
}

func (s *storageService) Get(ctx context.Context, clientID, key string) (json.RawMessage, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	raw, ok := s.root.Scoped(clientID).GetRaw(ctx, key)
	if !ok {
		return nil, ErrEntryNotFound
	}
	return raw, nil
}

func (s *storageService) Remove(ctx context.Context, clientID, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.root.Scoped(clientID).Remove(ctx, key)
}

func (s *storageService) Clear(ctx context.Context, clientID string) error {
	return s.root.Scoped(clientID).Clear(ctx)
}

// validateKey rejects keys that could escape into another namespace.
func validateKey(key string) error {
	if key == "" || len(key) > maxKeyLength || strings.ContainsAny(key, ":*?[]\\") {
		return ErrInvalidKey
	}
	return nil
}
