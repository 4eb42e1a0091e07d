package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parakeet-ai/parakeet/internal/analytics"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/pkg/logger"
)

const (
	defaultSchedule    = "@every 15s"
	defaultBatchSize   = 50
	defaultMaxAttempts = 8
)

// Settler applies one settlement payload: ledger debit, audit row, analytics.
// Implementations must be idempotent enough to tolerate redelivery.
type Settler interface {
	Settle(ctx context.Context, payload SettlementPayload) error
}

// Dispatcher drains the outbox on a cron schedule.
type Dispatcher struct {
	queue   *Queue
	settler Settler
	sink    analytics.Sink
	cron    *cron.Cron
	log     *zap.Logger

	schedule    string
	batchSize   int
	maxAttempts int
}

// DispatcherOption customises the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.cron = c
		}
	}
}

// WithSchedule overrides the cron expression for outbox draining.
func WithSchedule(spec string) DispatcherOption {
	return func(d *Dispatcher) {
		if spec != "" {
			d.schedule = spec
		}
	}
}

// WithBatchSize bounds how many entries one drain pass claims.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithMaxAttempts bounds retries before an entry is parked as failed.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// NewDispatcher constructs a Dispatcher with sensible defaults. A nil sink
// falls back to the no-op sink.
func NewDispatcher(queue *Queue, settler Settler, sink analytics.Sink, opts ...DispatcherOption) (*Dispatcher, error) {
	if queue == nil {
		return nil, errors.New("outbox: queue is required")
	}
	if settler == nil {
		return nil, errors.New("outbox: settler is required")
	}
	if sink == nil {
		sink = analytics.NopSink{}
	}

	dispatcher := &Dispatcher{
		queue:       queue,
		settler:     settler,
		sink:        sink,
		log:         logger.WithModule("outbox"),
		schedule:    defaultSchedule,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(dispatcher)
	}

	if dispatcher.cron == nil {
		dispatcher.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return dispatcher, nil
}

// Start registers the drain job and launches the scheduler.
func (d *Dispatcher) Start() error {
	if _, err := d.cron.AddFunc(d.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := d.RunOnce(ctx); err != nil {
			d.log.Warn("outbox drain failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	d.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running drain to complete.
func (d *Dispatcher) Stop() context.Context {
	if d.cron == nil {
		return context.Background()
	}
	return d.cron.Stop()
}

// RunOnce drains one batch of due entries. Per-entry failures are recorded
// on the entry and collected; a failing entry does not block the rest of
// the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := d.queue.Due(ctx, d.batchSize)
	if err != nil {
		return err
	}

	var errs error
	for i := range entries {
		entry := &entries[i]
		if err := d.dispatch(ctx, entry); err != nil {
			d.log.Warn("outbox entry dispatch failed",
				zap.String("entry_id", entry.ID),
				zap.String("kind", entry.Kind),
				zap.Int("attempts", entry.Attempts+1),
				zap.Error(err))
			if markErr := d.queue.MarkFailed(ctx, entry, err, d.maxAttempts); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			errs = multierr.Append(errs, err)
			continue
		}
		if err := d.queue.MarkDispatched(ctx, entry.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (d *Dispatcher) dispatch(ctx context.Context, entry *models.OutboxEntry) error {
	switch entry.Kind {
	case KindSettlement:
		var payload SettlementPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("outbox: decode settlement payload: %w", err)
		}
		return d.settler.Settle(ctx, payload)
	case KindTelemetry:
		var payload TelemetryPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("outbox: decode telemetry payload: %w", err)
		}
		return d.sink.Capture(ctx, analytics.Event{
			DistinctID: payload.DistinctID,
			Name:       payload.Event,
			Properties: payload.Properties,
		})
	default:
		return fmt.Errorf("outbox: unknown entry kind %q", entry.Kind)
	}
}
