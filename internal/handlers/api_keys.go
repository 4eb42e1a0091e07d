package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

// APIKeyHandler manages the caller's programmatic API keys.
type APIKeyHandler struct {
	service *services.APIKeyService
}

type createAPIKeyRequest struct {
	Name string `json:"name" validate:"max=64"`
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *gorm.DB) (*APIKeyHandler, error) {
	svc, err := services.NewAPIKeyService(db)
	if err != nil {
		return nil, err
	}
	return &APIKeyHandler{service: svc}, nil
}

// POST /api/api-keys
func (h *APIKeyHandler) Create(c *gin.Context) {
	var body createAPIKeyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	created, err := h.service.Create(requestContext(c), currentUserID(c), body.Name)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	// The secret is returned exactly once.
	response.JSON(c, http.StatusCreated, gin.H{
		"id":     created.Key.ID,
		"name":   created.Key.Name,
		"prefix": created.Key.Prefix,
		"key":    created.Secret,
	})
}

// GET /api/api-keys
func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.service.List(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"api_keys": keys})
}

// DELETE /api/api-keys/:id
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	err := h.service.Revoke(requestContext(c), currentUserID(c), c.Param("id"))
	if errors.Is(err, services.ErrAPIKeyNotFound) {
		response.Error(c, apperrors.ErrNotFound.WithMessage("API key not found"))
		return
	}
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"revoked": true})
}
