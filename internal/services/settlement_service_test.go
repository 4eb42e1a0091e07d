package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parakeet-ai/parakeet/internal/analytics"
	"github.com/parakeet-ai/parakeet/internal/database/testutil"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/internal/outbox"
)

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.Event
	err    error
}

func (s *recordingSink) Capture(_ context.Context, event analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) captured() []analytics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analytics.Event(nil), s.events...)
}

func TestSettleDebitsAndWritesAuditRow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	credits, err := NewCreditService(db)
	require.NoError(t, err)
	audioFiles, err := NewAudioFileService(db, nil)
	require.NoError(t, err)
	sink := &recordingSink{}
	svc, err := NewSettlementService(credits, audioFiles, sink)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, credits.Grant(ctx, "user-1", 500, models.PlanPaid))

	voiceID := seedVoiceID(t, db, "kore")
	err = svc.Settle(ctx, outbox.SettlementPayload{
		UserID:       "user-1",
		VoiceID:      voiceID,
		Text:         "hello world",
		Filename:     "audio/kore-abcd1234.wav",
		URL:          "http://files.test/files/audio/kore-abcd1234.wav",
		ModelUsed:    "gemini-2.5-pro-preview-tts",
		PredictionID: "pred-9",
		Credits:      36,
	})
	require.NoError(t, err)

	require.Equal(t, int64(464), credits.Balance(ctx, "user-1"))

	var record models.AudioFile
	require.NoError(t, db.First(&record, "user_id = ?", "user-1").Error)
	require.Equal(t, int64(36), record.CreditsUsed)
	require.Equal(t, "audio/kore-abcd1234.wav", record.Filename)
	require.NotNil(t, record.PredictionID)
	require.Equal(t, "pred-9", *record.PredictionID)

	events := sink.captured()
	require.Len(t, events, 1)
	require.Equal(t, "voice_generated", events[0].Name)
	require.Equal(t, "user-1", events[0].DistinctID)
}

func TestSettleZeroCreditsSkipsDebit(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	credits, err := NewCreditService(db)
	require.NoError(t, err)
	audioFiles, err := NewAudioFileService(db, nil)
	require.NoError(t, err)
	svc, err := NewSettlementService(credits, audioFiles, nil)
	require.NoError(t, err)

	ctx := context.Background()
	err = svc.Settle(ctx, outbox.SettlementPayload{
		UserID:   "user-without-account",
		VoiceID:  seedVoiceID(t, db, "kore"),
		Text:     "free",
		Filename: "audio/kore-00000000.wav",
		URL:      "u",
		Credits:  0,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AudioFile{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSettleAnalyticsFailureIsNotFatal(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	credits, err := NewCreditService(db)
	require.NoError(t, err)
	audioFiles, err := NewAudioFileService(db, nil)
	require.NoError(t, err)
	sink := &recordingSink{err: errors.New("capture backend down")}
	svc, err := NewSettlementService(credits, audioFiles, sink)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, credits.Grant(ctx, "user-1", 100, models.PlanPaid))

	err = svc.Settle(ctx, outbox.SettlementPayload{
		UserID:   "user-1",
		VoiceID:  seedVoiceID(t, db, "kore"),
		Text:     "hello",
		Filename: "audio/kore-11111111.wav",
		URL:      "u",
		Credits:  18,
	})
	require.NoError(t, err)
	require.Equal(t, int64(82), credits.Balance(ctx, "user-1"))
}

func TestSettleDebitFailureSurfaces(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	credits, err := NewCreditService(db)
	require.NoError(t, err)
	audioFiles, err := NewAudioFileService(db, nil)
	require.NoError(t, err)
	svc, err := NewSettlementService(credits, audioFiles, nil)
	require.NoError(t, err)

	err = svc.Settle(context.Background(), outbox.SettlementPayload{
		UserID:   "user-without-account",
		VoiceID:  seedVoiceID(t, db, "kore"),
		Text:     "hello",
		Filename: "audio/kore-22222222.wav",
		URL:      "u",
		Credits:  18,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// The failed settlement wrote nothing; the dispatcher retries it whole.
	var count int64
	require.NoError(t, db.Model(&models.AudioFile{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}
