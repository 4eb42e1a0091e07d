// Package maintenance runs background housekeeping: purging expired cache
// entries and pruning settled outbox entries past their retention window.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/cache"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultCacheSpec           = "@hourly"
	defaultOutboxSpec          = "@daily"
)

// Cleaner coordinates background maintenance tasks.
type Cleaner struct {
	db        *gorm.DB
	store     *cache.DatabaseStore
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	cacheSchedule  string
	outboxSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithOutboxRetentionDays adjusts how long settled outbox entries are kept.
func WithOutboxRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCacheSchedule overrides the cron expression for cache cleanup.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithOutboxSchedule overrides the cron expression for outbox pruning.
func WithOutboxSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.outboxSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, store *cache.DatabaseStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:             db,
		store:          store,
		now:            time.Now,
		retention:      defaultOutboxRetentionDays,
		cacheSchedule:  defaultCacheSpec,
		outboxSchedule: defaultOutboxSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.store != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.store != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			ctx := context.Background()
			if _, err := c.store.CleanupExpired(ctx); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.outboxSchedule, func() {
			ctx := context.Background()
			if _, err := PruneOutbox(ctx, c.db, c.now().AddDate(0, 0, -c.retention)); err != nil {
				c.log.Warn("outbox pruning failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.store != nil {
		if _, err := c.store.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := PruneOutbox(ctx, c.db, c.now().AddDate(0, 0, -c.retention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// PruneOutbox removes dispatched outbox entries older than cutoff. Pending
// and failed entries are kept for retries and inspection.
func PruneOutbox(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune outbox: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.OutboxDispatched, cutoff).
		Delete(&models.OutboxEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune outbox: %w", res.Error)
	}
	return res.RowsAffected, nil
}
