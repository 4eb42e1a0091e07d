package models

import (
	"time"
)

// CacheEntry represents a cached value stored in the database fallback.
// Generation cache entries persist with a zero ExpiresAt; rate-limit and
// other transient entries carry an expiry.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
