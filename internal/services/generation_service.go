package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/parakeet-ai/parakeet/internal/cache"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/internal/outbox"
	"github.com/parakeet-ai/parakeet/internal/storage"
	"github.com/parakeet-ai/parakeet/internal/tts"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/logger"
	"github.com/parakeet-ai/parakeet/pkg/metrics"
)

const defaultFreeGenerationLimit = 6

// GenerationService orchestrates one voice generation end to end: validate,
// resolve the voice, gate on credits, consult the result cache, synthesize,
// store the blob, and enqueue settlement. All deferred work goes through the
// outbox so nothing is lost if the process dies after responding.
type GenerationService struct {
	voices     *VoiceService
	credits    *CreditService
	audioFiles *AudioFileService
	store      cache.Store
	blobs      storage.BlobStore
	engines    map[models.Engine]tts.Engine
	queue      *outbox.Queue
	log        *zap.Logger

	freeLimit int
	group     singleflight.Group
}

// GenerationConfig carries the orchestrator's tunables.
type GenerationConfig struct {
	// FreeGenerationLimit caps premium-engine generations for free-plan
	// users. Zero selects the default of 6.
	FreeGenerationLimit int
}

// NewGenerationService wires the orchestrator. Every collaborator except the
// config is required.
func NewGenerationService(
	voices *VoiceService,
	credits *CreditService,
	audioFiles *AudioFileService,
	store cache.Store,
	blobs storage.BlobStore,
	engines map[models.Engine]tts.Engine,
	queue *outbox.Queue,
	cfg GenerationConfig,
) (*GenerationService, error) {
	if voices == nil || credits == nil || audioFiles == nil {
		return nil, errors.New("generation service: voice, credit, and audio file services are required")
	}
	if store == nil {
		return nil, errors.New("generation service: cache store is required")
	}
	if blobs == nil {
		return nil, errors.New("generation service: blob store is required")
	}
	if len(engines) == 0 {
		return nil, errors.New("generation service: at least one engine is required")
	}
	if queue == nil {
		return nil, errors.New("generation service: outbox queue is required")
	}

	limit := cfg.FreeGenerationLimit
	if limit <= 0 {
		limit = defaultFreeGenerationLimit
	}

	return &GenerationService{
		voices:     voices,
		credits:    credits,
		audioFiles: audioFiles,
		store:      store,
		blobs:      blobs,
		engines:    engines,
		queue:      queue,
		log:        logger.WithModule("generation"),
		freeLimit:  limit,
	}, nil
}

// GenerateInput is one caller request, already authenticated.
type GenerateInput struct {
	UserID       string
	Text         string
	Voice        string
	StyleVariant string
	// APIKeyID is set when the request arrived through the public API.
	APIKeyID string
}

// GenerationResult is returned to the caller on success.
type GenerationResult struct {
	URL              string `json:"url"`
	CreditsUsed      int64  `json:"creditsUsed"`
	CreditsRemaining int64  `json:"creditsRemaining"`
}

type synthOutcome struct {
	url          string
	modelUsed    string
	predictionID string
}

// Generate runs the full orchestration for one request.
func (s *GenerationService) Generate(ctx context.Context, input GenerateInput) (*GenerationResult, error) {
	if s == nil {
		return nil, errors.New("generation service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	text := strings.TrimSpace(input.Text)
	voiceName := strings.TrimSpace(input.Voice)
	if text == "" || voiceName == "" {
		return nil, apperrors.NewBadRequest("Missing required parameters")
	}

	voice, err := s.voices.GetByName(ctx, voiceName)
	if errors.Is(err, ErrVoiceNotFound) {
		return nil, apperrors.ErrVoiceNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	engineLabel := string(voice.Engine)

	if limit := voice.MaxChars; limit > 0 && len(text) > limit {
		return nil, apperrors.NewBadRequest(
			fmt.Sprintf("Text exceeds the maximum length of %d characters", limit))
	}

	// Cost is estimated on the raw text; the style prefix is not charged.
	estimate := s.credits.Estimate(text, voice)
	balance := s.credits.Balance(ctx, input.UserID)
	if balance < estimate {
		metrics.Generations.WithLabelValues(engineLabel, "insufficient_credits").Inc()
		s.log.Warn("insufficient credits",
			zap.String("user_id", input.UserID),
			zap.String("voice", voice.Name),
			zap.Int64("estimate", estimate),
			zap.Int64("balance", balance))
		return nil, apperrors.ErrInsufficientCredits
	}

	if variant := strings.TrimSpace(input.StyleVariant); variant != "" {
		text = variant + ": " + text
	}

	filename := blobPath(text, voice.Name)

	if cached, ok, err := s.store.Get(ctx, filename); err == nil && ok {
		metrics.Generations.WithLabelValues(engineLabel, "cache_hit").Inc()
		s.enqueueCacheHitTelemetry(ctx, input.UserID, voice, filename)
		return &GenerationResult{
			URL:              string(cached),
			CreditsUsed:      0,
			CreditsRemaining: balance,
		}, nil
	} else if err != nil {
		// A broken cache degrades to a miss.
		s.log.Warn("cache lookup failed", zap.String("key", filename), zap.Error(err))
	}

	if voice.Engine == models.EngineGemini {
		if err := s.checkFreemiumLimit(ctx, input.UserID); err != nil {
			metrics.Generations.WithLabelValues(engineLabel, "freemium_limit").Inc()
			return nil, err
		}
	}

	outcome, err := s.synthesizeOnce(ctx, voice, text, filename)
	if err != nil {
		if tts.IsQuotaExceeded(err) {
			metrics.Generations.WithLabelValues(engineLabel, "quota").Inc()
			s.log.Warn("provider quota exceeded",
				zap.String("voice", voice.Name),
				zap.Error(err))
			return nil, apperrors.ErrProviderQuota.WithInternal(err)
		}
		metrics.Generations.WithLabelValues(engineLabel, "error").Inc()
		s.log.Error("voice generation failed",
			zap.String("user_id", input.UserID),
			zap.String("voice", voice.Name),
			zap.Error(err))
		return nil, apperrors.ErrGenerationFailed.WithInternal(err)
	}

	if err := s.queue.Enqueue(ctx, outbox.KindSettlement, outbox.SettlementPayload{
		UserID:       input.UserID,
		VoiceID:      voice.ID,
		Text:         text,
		Filename:     filename,
		URL:          outcome.url,
		ModelUsed:    outcome.modelUsed,
		PredictionID: outcome.predictionID,
		Credits:      estimate,
		APIKeyID:     input.APIKeyID,
	}); err != nil {
		// The audio exists but settlement would be lost; fail the request
		// so the caller is not silently under-charged.
		metrics.Generations.WithLabelValues(engineLabel, "error").Inc()
		s.log.Error("settlement enqueue failed", zap.Error(err))
		return nil, apperrors.ErrGenerationFailed.WithInternal(err)
	}

	metrics.Generations.WithLabelValues(engineLabel, "success").Inc()
	return &GenerationResult{
		URL:              outcome.url,
		CreditsUsed:      estimate,
		CreditsRemaining: balance - estimate,
	}, nil
}

// Estimate exposes the cost model for the estimate endpoint.
func (s *GenerationService) Estimate(ctx context.Context, text, voiceName string) (int64, error) {
	if s == nil {
		return 0, errors.New("generation service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	text = strings.TrimSpace(text)
	voiceName = strings.TrimSpace(voiceName)
	if text == "" || voiceName == "" {
		return 0, apperrors.NewBadRequest("Missing required parameters")
	}

	voice, err := s.voices.GetByName(ctx, voiceName)
	if errors.Is(err, ErrVoiceNotFound) {
		return 0, apperrors.ErrVoiceNotFound
	}
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}
	return s.credits.Estimate(text, voice), nil
}

// synthesizeOnce coalesces concurrent identical requests on the blob path so
// the provider is called once per distinct (text, voice) pair.
func (s *GenerationService) synthesizeOnce(ctx context.Context, voice *models.Voice, text, filename string) (*synthOutcome, error) {
	value, err, _ := s.group.Do(filename, func() (interface{}, error) {
		return s.synthesize(ctx, voice, text, filename)
	})
	if err != nil {
		return nil, err
	}
	return value.(*synthOutcome), nil
}

func (s *GenerationService) synthesize(ctx context.Context, voice *models.Voice, text, filename string) (*synthOutcome, error) {
	engine, ok := s.engines[voice.Engine]
	if !ok {
		return nil, fmt.Errorf("no engine configured for %q", voice.Engine)
	}

	// Synthesis latency is observed inside the engines, next to their
	// fallback accounting.
	result, err := engine.Synthesize(ctx, tts.Request{
		Text:    text,
		Voice:   voice.Name,
		ModelID: voice.ModelID,
	})
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.Put(ctx, filename, bytes.NewReader(result.Audio), result.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store audio blob: %w", err)
	}

	// Permanent entry: identical requests resolve to this URL forever.
	if err := s.store.Set(ctx, filename, []byte(url), 0); err != nil {
		s.log.Warn("cache write failed", zap.String("key", filename), zap.Error(err))
	}

	return &synthOutcome{
		url:          url,
		modelUsed:    result.ModelUsed,
		predictionID: result.PredictionID,
	}, nil
}

func (s *GenerationService) checkFreemiumLimit(ctx context.Context, userID string) error {
	account, err := s.credits.Account(ctx, userID)
	if err != nil {
		return err
	}
	if account.Plan != models.PlanFree {
		return nil
	}

	count, err := s.audioFiles.CountByUserAndEngine(ctx, userID, models.EngineGemini)
	if err != nil {
		return err
	}
	if count >= int64(s.freeLimit) {
		s.log.Warn("freemium generation limit reached",
			zap.String("user_id", userID),
			zap.Int64("count", count),
			zap.Int("limit", s.freeLimit))
		return apperrors.ErrFreemiumLimit
	}
	return nil
}

func (s *GenerationService) enqueueCacheHitTelemetry(ctx context.Context, userID string, voice *models.Voice, filename string) {
	err := s.queue.Enqueue(ctx, outbox.KindTelemetry, outbox.TelemetryPayload{
		DistinctID: userID,
		Event:      "voice_generated",
		Properties: map[string]interface{}{
			"voice_id":     voice.ID,
			"model":        voice.ModelID,
			"credits_used": int64(0),
			"cache_hit":    true,
			"filename":     filename,
		},
	})
	if err != nil {
		s.log.Warn("telemetry enqueue failed", zap.Error(err))
	}
}

// blobPath derives the content-addressed storage path for one generation.
func blobPath(text, voice string) string {
	return fmt.Sprintf("audio/%s-%s.wav", voice, cacheKey(text, voice))
}

// cacheKey is the first 8 hex characters of SHA-256 over "text-voice".
func cacheKey(text, voice string) string {
	sum := sha256.Sum256([]byte(text + "-" + voice))
	return hex.EncodeToString(sum[:])[:8]
}
