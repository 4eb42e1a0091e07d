package models

import "time"

// APIKey grants programmatic access to the /v1 surface. Only a SHA-256
// digest of the secret is stored; the prefix is kept for display.
type APIKey struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Name       string     `gorm:"type:varchar(120);not null" json:"name"`
	KeyHash    string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	Prefix     string     `gorm:"type:varchar(16);not null" json:"prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
}

// Active reports whether the key may authenticate requests.
func (k *APIKey) Active() bool {
	return k != nil && k.RevokedAt == nil
}
