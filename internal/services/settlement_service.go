package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/parakeet-ai/parakeet/internal/analytics"
	"github.com/parakeet-ai/parakeet/internal/outbox"
	"github.com/parakeet-ai/parakeet/pkg/logger"
)

// SettlementService applies deferred post-generation work: the ledger debit,
// the audit record, and the analytics capture. It implements outbox.Settler
// and runs only from the dispatcher, never on the request path.
type SettlementService struct {
	credits    *CreditService
	audioFiles *AudioFileService
	sink       analytics.Sink
	log        *zap.Logger
}

// NewSettlementService constructs a settlement service. A nil sink falls
// back to the no-op sink.
func NewSettlementService(credits *CreditService, audioFiles *AudioFileService, sink analytics.Sink) (*SettlementService, error) {
	if credits == nil {
		return nil, errors.New("settlement service: credit service is required")
	}
	if audioFiles == nil {
		return nil, errors.New("settlement service: audio file service is required")
	}
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &SettlementService{
		credits:    credits,
		audioFiles: audioFiles,
		sink:       sink,
		log:        logger.WithModule("settlement"),
	}, nil
}

// Settle debits the ledger, writes the audit row, and emits the analytics
// event for one completed generation. A duplicate audit row for the same
// prediction is tolerated; the debit runs first so a redelivered entry that
// failed mid-way never skips the charge.
func (s *SettlementService) Settle(ctx context.Context, payload outbox.SettlementPayload) error {
	if s == nil {
		return errors.New("settlement service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if payload.Credits > 0 {
		if err := s.credits.Debit(ctx, payload.UserID, payload.Credits); err != nil {
			return err
		}
	}

	if _, err := s.audioFiles.Create(ctx, CreateAudioFileInput{
		UserID:       payload.UserID,
		VoiceID:      payload.VoiceID,
		Filename:     payload.Filename,
		Text:         payload.Text,
		URL:          payload.URL,
		ModelUsed:    payload.ModelUsed,
		PredictionID: payload.PredictionID,
		CreditsUsed:  payload.Credits,
		APIKeyID:     payload.APIKeyID,
	}); err != nil {
		return err
	}

	if err := s.sink.Capture(ctx, analytics.Event{
		DistinctID: payload.UserID,
		Name:       "voice_generated",
		Properties: map[string]interface{}{
			"voice_id":      payload.VoiceID,
			"model":         payload.ModelUsed,
			"credits_used":  payload.Credits,
			"prediction_id": payload.PredictionID,
			"text_length":   len(payload.Text),
		},
	}); err != nil {
		// Analytics loss is acceptable; the debit and audit row are not.
		s.log.Warn("analytics capture failed", zap.Error(err))
	}

	return nil
}
