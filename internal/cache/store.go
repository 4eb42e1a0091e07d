package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
// A ttl of zero or less stores the value without expiry; the generation
// result index relies on that to behave as permanent content-addressed
// storage.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
