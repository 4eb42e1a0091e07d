// Package outbox provides durable post-generation settlement. The request
// path enqueues entries; a cron-driven dispatcher settles them (ledger debit,
// audit row, analytics capture) with retries, so a crash after the response
// has been written cannot drop a debit.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/pkg/metrics"
)

// Entry kinds understood by the dispatcher.
const (
	KindSettlement = "settlement"
	KindTelemetry  = "telemetry"
)

// SettlementPayload carries everything needed to settle one completed
// generation: the ledger debit, the audit record, and the analytics event.
type SettlementPayload struct {
	UserID       string `json:"user_id"`
	VoiceID      string `json:"voice_id"`
	Text         string `json:"text"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	ModelUsed    string `json:"model_used"`
	PredictionID string `json:"prediction_id,omitempty"`
	Credits      int64  `json:"credits"`
	APIKeyID     string `json:"api_key_id,omitempty"`
}

// TelemetryPayload carries a bare analytics capture, used for cache hits
// where no debit or audit row is written.
type TelemetryPayload struct {
	DistinctID string                 `json:"distinct_id"`
	Event      string                 `json:"event"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Queue persists outbox entries. It is safe for concurrent use; all state
// lives in the database.
type Queue struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQueue constructs an outbox queue backed by db.
func NewQueue(db *gorm.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("outbox: db is required")
	}
	return &Queue{db: db, now: time.Now}, nil
}

// Enqueue persists a pending entry of the given kind. The payload is stored
// as JSON and replayed verbatim by the dispatcher.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	if q == nil {
		return errors.New("outbox: queue not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	entry := models.OutboxEntry{
		Kind:        kind,
		Payload:     raw,
		Status:      models.OutboxPending,
		NextAttempt: q.now(),
	}
	if err := q.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}

	q.refreshGauge(ctx)
	return nil
}

// Due returns up to limit pending entries whose next attempt time has passed,
// oldest first.
func (q *Queue) Due(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	if q == nil {
		return nil, errors.New("outbox: queue not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	var entries []models.OutboxEntry
	err := q.db.WithContext(ctx).
		Where("status = ? AND next_attempt <= ?", models.OutboxPending, q.now()).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkDispatched records a successful dispatch.
func (q *Queue) MarkDispatched(ctx context.Context, id string) error {
	if q == nil {
		return errors.New("outbox: queue not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	err := q.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.OutboxDispatched,
			"last_error": "",
		}).Error
	if err != nil {
		return err
	}

	q.refreshGauge(ctx)
	return nil
}

// MarkFailed records a failed attempt. The entry stays pending with an
// exponentially delayed next attempt until maxAttempts is reached, after
// which it is parked as failed for operator inspection.
func (q *Queue) MarkFailed(ctx context.Context, entry *models.OutboxEntry, attemptErr error, maxAttempts int) error {
	if q == nil {
		return errors.New("outbox: queue not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := entry.Attempts + 1
	status := models.OutboxPending
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = models.OutboxFailed
	}

	lastError := ""
	if attemptErr != nil {
		lastError = attemptErr.Error()
	}

	err := q.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"attempts":     attempts,
			"status":       status,
			"last_error":   lastError,
			"next_attempt": q.now().Add(backoff(attempts)),
		}).Error
	if err != nil {
		return err
	}

	q.refreshGauge(ctx)
	return nil
}

// PendingCount reports how many entries await dispatch.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	if q == nil {
		return 0, errors.New("outbox: queue not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	err := q.db.WithContext(ctx).
		Model(&models.OutboxEntry{}).
		Where("status = ?", models.OutboxPending).
		Count(&count).Error
	return count, err
}

func (q *Queue) refreshGauge(ctx context.Context) {
	if count, err := q.PendingCount(ctx); err == nil {
		metrics.OutboxPending.Set(float64(count))
	}
}

// backoff doubles per attempt starting at 30s, capped at 15 minutes.
func backoff(attempts int) time.Duration {
	delay := 30 * time.Second
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= 15*time.Minute {
			return 15 * time.Minute
		}
	}
	return delay
}
