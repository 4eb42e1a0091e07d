package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

// VoiceHandler exposes the public voice catalog.
type VoiceHandler struct {
	service *services.VoiceService
}

// NewVoiceHandler constructs a VoiceHandler.
func NewVoiceHandler(db *gorm.DB) (*VoiceHandler, error) {
	svc, err := services.NewVoiceService(db)
	if err != nil {
		return nil, err
	}
	return &VoiceHandler{service: svc}, nil
}

// GET /api/voices
func (h *VoiceHandler) List(c *gin.Context) {
	voices, err := h.service.List(requestContext(c))
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"voices": voices})
}

// GET /api/voices/:name
func (h *VoiceHandler) Get(c *gin.Context) {
	voice, err := h.service.GetByName(requestContext(c), c.Param("name"))
	if errors.Is(err, services.ErrVoiceNotFound) {
		response.Error(c, apperrors.ErrVoiceNotFound)
		return
	}
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, voice)
}

func errNilService(name string) error {
	return fmt.Errorf("handlers: %s service must be provided", name)
}
