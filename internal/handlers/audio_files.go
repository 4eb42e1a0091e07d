package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

// AudioFileHandler exposes the caller's generated audio history and the
// public feed.
type AudioFileHandler struct {
	service *services.AudioFileService
}

// NewAudioFileHandler constructs an AudioFileHandler.
func NewAudioFileHandler(service *services.AudioFileService) (*AudioFileHandler, error) {
	if service == nil {
		return nil, errNilService("audio file")
	}
	return &AudioFileHandler{service: service}, nil
}

// GET /api/audio-files
func (h *AudioFileHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	records, err := h.service.ListByUser(requestContext(c), currentUserID(c), limit)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"audio_files": records})
}

// GET /api/public-audios
func (h *AudioFileHandler) ListPublic(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 20)
	records, err := h.service.ListPublic(requestContext(c), limit)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"audio_files": records})
}

// DELETE /api/audio-files/:id
func (h *AudioFileHandler) Delete(c *gin.Context) {
	err := h.service.Delete(requestContext(c), currentUserID(c), c.Param("id"))
	if errors.Is(err, services.ErrAudioFileNotFound) {
		response.Error(c, apperrors.ErrNotFound.WithMessage("Audio file not found"))
		return
	}
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": true})
}
