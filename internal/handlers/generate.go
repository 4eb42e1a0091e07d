package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

// GenerateHandler serves the voice generation endpoints for both the
// dashboard API and the API-key-authenticated public API.
type GenerateHandler struct {
	generations *services.GenerationService
}

// NewGenerateHandler constructs a GenerateHandler.
func NewGenerateHandler(generations *services.GenerationService) (*GenerateHandler, error) {
	if generations == nil {
		return nil, errNilService("generation")
	}
	return &GenerateHandler{generations: generations}, nil
}

type generateVoiceRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	StyleVariant string `json:"styleVariant"`
}

// POST /api/generate-voice
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body generateVoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required parameters"))
		return
	}

	result, err := h.generations.Generate(requestContext(c), services.GenerateInput{
		UserID:       currentUserID(c),
		Text:         body.Text,
		Voice:        body.Voice,
		StyleVariant: body.StyleVariant,
		APIKeyID:     currentAPIKeyID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// POST /api/estimate-credits
func (h *GenerateHandler) EstimateCredits(c *gin.Context) {
	var body generateVoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required parameters"))
		return
	}

	credits, err := h.generations.Estimate(requestContext(c), body.Text, body.Voice)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"credits": credits})
}

type speechRequest struct {
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// POST /v1/audio/speech
//
// OpenAI-compatible shape: `input` instead of `text`, an optional `speed`
// that maps onto the fast/slow style variants.
func (h *GenerateHandler) Speech(c *gin.Context) {
	var body speechRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("Missing required parameters"))
		return
	}

	styleVariant := ""
	if body.Speed != 0 {
		if body.Speed < 0.25 || body.Speed > 4.0 {
			response.Error(c, apperrors.NewBadRequest("Invalid speed parameter - must be between 0.25 and 4.0"))
			return
		}
		switch {
		case body.Speed > 1.0:
			styleVariant = "fast"
		case body.Speed < 1.0:
			styleVariant = "slow"
		}
	}

	result, err := h.generations.Generate(requestContext(c), services.GenerateInput{
		UserID:       currentUserID(c),
		Text:         body.Input,
		Voice:        body.Voice,
		StyleVariant: styleVariant,
		APIKeyID:     currentAPIKeyID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result)
}
