package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parakeet-ai/parakeet/internal/analytics"
	"github.com/parakeet-ai/parakeet/internal/database/testutil"
	"github.com/parakeet-ai/parakeet/internal/models"
)

type fakeSettler struct {
	mu       sync.Mutex
	payloads []SettlementPayload
	err      error
}

func (s *fakeSettler) Settle(_ context.Context, payload SettlementPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSettler) settled() []SettlementPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SettlementPayload(nil), s.payloads...)
}

type captureSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *captureSink) Capture(_ context.Context, event analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func TestDispatcherSettlesPendingEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := NewQueue(db)
	require.NoError(t, err)
	settler := &fakeSettler{}
	dispatcher, err := NewDispatcher(queue, settler, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, KindSettlement, SettlementPayload{
		UserID:  "user-1",
		Credits: 36,
	}))

	require.NoError(t, dispatcher.RunOnce(ctx))

	settled := settler.settled()
	require.Len(t, settled, 1)
	require.Equal(t, "user-1", settled[0].UserID)
	require.Equal(t, int64(36), settled[0].Credits)

	var entry models.OutboxEntry
	require.NoError(t, db.First(&entry).Error)
	require.Equal(t, models.OutboxDispatched, entry.Status)

	// A second drain finds nothing to redeliver.
	require.NoError(t, dispatcher.RunOnce(ctx))
	require.Len(t, settler.settled(), 1)
}

func TestDispatcherDeliversTelemetryToSink(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := NewQueue(db)
	require.NoError(t, err)
	sink := &captureSink{}
	dispatcher, err := NewDispatcher(queue, &fakeSettler{}, sink)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, KindTelemetry, TelemetryPayload{
		DistinctID: "user-1",
		Event:      "voice_generated",
		Properties: map[string]interface{}{"cache_hit": true},
	}))

	require.NoError(t, dispatcher.RunOnce(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	require.Equal(t, "voice_generated", sink.events[0].Name)
	require.Equal(t, true, sink.events[0].Properties["cache_hit"])
}

func TestDispatcherRetriesThenParksFailedEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := NewQueue(db)
	require.NoError(t, err)

	current := time.Now()
	queue.now = func() time.Time { return current }

	settler := &fakeSettler{err: errors.New("ledger unavailable")}
	dispatcher, err := NewDispatcher(queue, settler, nil, WithMaxAttempts(2))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, KindSettlement, SettlementPayload{UserID: "user-1"}))

	require.Error(t, dispatcher.RunOnce(ctx))

	var entry models.OutboxEntry
	require.NoError(t, db.First(&entry).Error)
	require.Equal(t, models.OutboxPending, entry.Status)
	require.Equal(t, 1, entry.Attempts)

	current = current.Add(time.Minute)
	require.Error(t, dispatcher.RunOnce(ctx))

	require.NoError(t, db.First(&entry, "id = ?", entry.ID).Error)
	require.Equal(t, models.OutboxFailed, entry.Status)
	require.Equal(t, 2, entry.Attempts)
	require.Equal(t, "ledger unavailable", entry.LastError)

	// Parked entries are left for operator inspection, not redelivered.
	current = current.Add(time.Hour)
	require.NoError(t, dispatcher.RunOnce(ctx))
}

func TestDispatcherFailureDoesNotBlockBatch(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := NewQueue(db)
	require.NoError(t, err)
	settler := &fakeSettler{}
	sink := &captureSink{}
	dispatcher, err := NewDispatcher(queue, settler, sink)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "bogus-kind", map[string]string{"x": "y"}))
	require.NoError(t, queue.Enqueue(ctx, KindSettlement, SettlementPayload{UserID: "user-1"}))

	require.Error(t, dispatcher.RunOnce(ctx))

	// The malformed entry failed; the settlement behind it still dispatched.
	require.Len(t, settler.settled(), 1)

	var failed models.OutboxEntry
	require.NoError(t, db.First(&failed, "kind = ?", "bogus-kind").Error)
	require.Equal(t, models.OutboxPending, failed.Status)
	require.Equal(t, 1, failed.Attempts)
}
