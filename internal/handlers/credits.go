package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

// CreditHandler exposes the caller's ledger state.
type CreditHandler struct {
	service *services.CreditService
}

// NewCreditHandler constructs a CreditHandler.
func NewCreditHandler(db *gorm.DB) (*CreditHandler, error) {
	svc, err := services.NewCreditService(db)
	if err != nil {
		return nil, err
	}
	return &CreditHandler{service: svc}, nil
}

// GET /api/credits
func (h *CreditHandler) Get(c *gin.Context) {
	account, err := h.service.Account(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"credits": account.Amount,
		"plan":    account.Plan,
	})
}
