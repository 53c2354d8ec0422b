package model

import "time"

// StoredItem is one raw key-value row of the SQL state backend.
// ExpiresAt is nil for entries written without a TTL.
type StoredItem struct {
	Key       string     `gorm:"column:item_key;type:varchar(512);primaryKey"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StoredItem) TableName() string { return "stored_items" }

func (i StoredItem) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
