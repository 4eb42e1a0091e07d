package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/internal/storage"
)

var (
	// ErrAudioFileNotFound indicates the requested audio record does not exist.
	ErrAudioFileNotFound = errors.New("audio file service: audio file not found")
)

// AudioFileService manages the audit records written for completed
// generations and their backing blobs.
type AudioFileService struct {
	db    *gorm.DB
	blobs storage.BlobStore
}

// NewAudioFileService constructs an audio file service. The blob store is
// optional; without it Delete only removes the database row.
func NewAudioFileService(db *gorm.DB, blobs storage.BlobStore) (*AudioFileService, error) {
	if db == nil {
		return nil, errors.New("audio file service: db is required")
	}
	return &AudioFileService{db: db, blobs: blobs}, nil
}

// CreateAudioFileInput captures the denormalised audit fields.
type CreateAudioFileInput struct {
	UserID       string
	VoiceID      string
	Filename     string
	Text         string
	URL          string
	ModelUsed    string
	PredictionID string
	CreditsUsed  int64
	IsPublic     bool
	APIKeyID     string
}

// Create persists an audit record for a completed generation.
func (s *AudioFileService) Create(ctx context.Context, input CreateAudioFileInput) (*models.AudioFile, error) {
	if s == nil {
		return nil, errors.New("audio file service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.New("audio file service: user id is required")
	}
	if strings.TrimSpace(input.Filename) == "" {
		return nil, errors.New("audio file service: filename is required")
	}

	record := models.AudioFile{
		UserID:      input.UserID,
		VoiceID:     input.VoiceID,
		Filename:    input.Filename,
		Text:        input.Text,
		URL:         input.URL,
		ModelUsed:   input.ModelUsed,
		CreditsUsed: input.CreditsUsed,
		IsPublic:    input.IsPublic,
	}
	if id := strings.TrimSpace(input.PredictionID); id != "" {
		record.PredictionID = &id
	}
	if id := strings.TrimSpace(input.APIKeyID); id != "" {
		record.APIKeyID = &id
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByUser returns a user's audio records, newest first.
func (s *AudioFileService) ListByUser(ctx context.Context, userID string, limit int) ([]models.AudioFile, error) {
	if s == nil {
		return nil, errors.New("audio file service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.AudioFile
	if err := s.db.WithContext(ctx).
		Preload("Voice").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListPublic returns recently generated public audio.
func (s *AudioFileService) ListPublic(ctx context.Context, limit int) ([]models.AudioFile, error) {
	if s == nil {
		return nil, errors.New("audio file service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var records []models.AudioFile
	if err := s.db.WithContext(ctx).
		Preload("Voice").
		Where("is_public = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByUserAndEngine counts a user's generations that used a given engine.
// The freemium gate is evaluated from this.
func (s *AudioFileService) CountByUserAndEngine(ctx context.Context, userID string, engine models.Engine) (int64, error) {
	if s == nil {
		return 0, errors.New("audio file service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AudioFile{}).
		Joins("JOIN voices ON voices.id = audio_files.voice_id").
		Where("audio_files.user_id = ? AND voices.engine = ?", userID, engine).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a user's audio record. The backing blob is removed as well
// unless another record still references the same filename (identical
// cached generations share one blob).
func (s *AudioFileService) Delete(ctx context.Context, userID, id string) error {
	if s == nil {
		return errors.New("audio file service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var record models.AudioFile
	err := s.db.WithContext(ctx).
		First(&record, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAudioFileNotFound
	}
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.AudioFile{}, "id = ?", record.ID).Error; err != nil {
		return err
	}

	if s.blobs != nil {
		var remaining int64
		if err := s.db.WithContext(ctx).
			Model(&models.AudioFile{}).
			Where("filename = ?", record.Filename).
			Count(&remaining).Error; err == nil && remaining == 0 {
			_ = s.blobs.Delete(ctx, record.Filename)
		}
	}

	return nil
}
