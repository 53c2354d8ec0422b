package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lacocina/onboarding/internal/model"
)

type sqlStateStore struct {
	db *gorm.DB
}

// NewSQLStateStore stores entries in the stored_items table.
// Run model.AutoMigrate before first use.
func NewSQLStateStore(db *gorm.DB) StateStore {
	return &sqlStateStore{db: db}
}

func (s *sqlStateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := model.StoredItem{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		item.ExpiresAt = &expiresAt
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&item).
		Error
}

func (s *sqlStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	var item model.StoredItem
	err := s.db.WithContext(ctx).Where("item_key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if item.IsExpired(time.Now()) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return item.Value, nil
}

func (s *sqlStateStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("item_key = ?", key).Delete(&model.StoredItem{}).Error
}

func (s *sqlStateStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := s.db.WithContext(ctx).
		Model(&model.StoredItem{}).
		Where("(expires_at IS NULL OR expires_at > ?)", time.Now())
	if prefix != "" {
		q = q.Where("item_key LIKE ? ESCAPE '\\'", likeEscaper.Replace(prefix)+"%")
	}
	if err := q.Order("item_key").Pluck("item_key", &keys).Error; err != nil {
		return nil, err
	}

	// LIKE is case-insensitive on some engines
	matched := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
