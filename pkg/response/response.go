package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
)

// ErrorBody is the JSON error envelope returned to API consumers.
// The message mirrors the product's public error contract; the code is a
// stable machine-readable discriminator.
type ErrorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// JSON writes a success payload as-is. Successful responses carry the
// documented resource shape directly rather than a wrapper envelope.
func JSON(c *gin.Context, statusCode int, payload interface{}) {
	c.JSON(statusCode, payload)
}

// Error renders an error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = apperrors.ErrInternalServer
	}

	appErr := apperrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
	})
}

// AbortError renders an error response and halts middleware processing.
func AbortError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
