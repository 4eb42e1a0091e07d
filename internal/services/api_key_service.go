package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/models"
)

const apiKeyPrefix = "pk-"

var (
	// ErrAPIKeyNotFound indicates the key does not exist or belongs to
	// another user.
	ErrAPIKeyNotFound = errors.New("api key service: api key not found")
	// ErrAPIKeyInvalid indicates the presented secret does not match an
	// active key.
	ErrAPIKeyInvalid = errors.New("api key service: invalid api key")
)

// APIKeyService issues and validates the bearer keys used by the public API.
// Only the SHA-256 hash of a key is stored; the plaintext is shown once at
// creation time.
type APIKeyService struct {
	db *gorm.DB
}

// NewAPIKeyService constructs an API key service.
func NewAPIKeyService(db *gorm.DB) (*APIKeyService, error) {
	if db == nil {
		return nil, errors.New("api key service: db is required")
	}
	return &APIKeyService{db: db}, nil
}

// CreatedAPIKey pairs the stored record with the one-time plaintext secret.
type CreatedAPIKey struct {
	Key    models.APIKey
	Secret string
}

// Create mints a new key for the user. The returned secret is not
// recoverable afterwards.
func (s *APIKeyService) Create(ctx context.Context, userID, name string) (*CreatedAPIKey, error) {
	if s == nil {
		return nil, errors.New("api key service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("api key service: user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	secret := apiKeyPrefix + hex.EncodeToString(raw)

	record := models.APIKey{
		UserID:  userID,
		Name:    name,
		KeyHash: hashKey(secret),
		Prefix:  secret[:len(apiKeyPrefix)+8],
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &CreatedAPIKey{Key: record, Secret: secret}, nil
}

// Validate resolves a presented secret to its active key record and touches
// the last-used timestamp.
func (s *APIKeyService) Validate(ctx context.Context, secret string) (*models.APIKey, error) {
	if s == nil {
		return nil, errors.New("api key service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, apiKeyPrefix) {
		return nil, ErrAPIKeyInvalid
	}

	hash := hashKey(secret)

	var key models.APIKey
	err := s.db.WithContext(ctx).First(&key, "key_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyInvalid
	}
	if err != nil {
		return nil, err
	}

	// The lookup already matched on the hash; the constant-time compare
	// guards against a collation-lenient database match.
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, ErrAPIKeyInvalid
	}
	if !key.Active() {
		return nil, ErrAPIKeyInvalid
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", key.ID).
		Update("last_used_at", now).Error; err == nil {
		key.LastUsedAt = &now
	}

	return &key, nil
}

// List returns the user's keys, newest first. Hashes are included; plaintext
// secrets never are.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]models.APIKey, error) {
	if s == nil {
		return nil, errors.New("api key service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var keys []models.APIKey
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Revoke disables a key. Revoked keys stay listed for audit purposes.
func (s *APIKeyService) Revoke(ctx context.Context, userID, id string) error {
	if s == nil {
		return errors.New("api key service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func hashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
