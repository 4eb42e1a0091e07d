package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/models"
)

var (
	// ErrVoiceNotFound indicates the requested voice is not in the catalog.
	ErrVoiceNotFound = errors.New("voice service: voice not found")
)

// VoiceService reads the voice catalog. Catalog rows are treated as
// immutable per lookup; pricing and engine routing both come from here.
type VoiceService struct {
	db *gorm.DB
}

// NewVoiceService constructs a voice service once a database handle is supplied.
func NewVoiceService(db *gorm.DB) (*VoiceService, error) {
	if db == nil {
		return nil, errors.New("voice service: db is required")
	}
	return &VoiceService{db: db}, nil
}

// GetByName resolves a public voice by its catalog name.
func (s *VoiceService) GetByName(ctx context.Context, name string) (*models.Voice, error) {
	if s == nil {
		return nil, errors.New("voice service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrVoiceNotFound
	}

	var voice models.Voice
	err := s.db.WithContext(ctx).
		First(&voice, "name = ? AND is_public = ?", name, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &voice, nil
}

// List returns all public voices ordered by name.
func (s *VoiceService) List(ctx context.Context) ([]models.Voice, error) {
	if s == nil {
		return nil, errors.New("voice service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var voices []models.Voice
	if err := s.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("name").
		Find(&voices).Error; err != nil {
		return nil, err
	}
	return voices, nil
}
