package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parakeet-ai/parakeet/internal/auth"
	"github.com/parakeet-ai/parakeet/internal/services"
	apperrors "github.com/parakeet-ai/parakeet/pkg/errors"
	"github.com/parakeet-ai/parakeet/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxAPIKeyIDKey = "apiKeyID"
)

// Auth enforces JWT authentication for the dashboard API.
func Auth(jwt *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.AbortError(c, apperrors.ErrUnauthorized)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.AbortError(c, apperrors.ErrUnauthorized)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

// APIKeyAuth enforces API key authentication for the public API. The key id
// is propagated so generations can be attributed to the key that made them.
func APIKeyAuth(keys *services.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, ok := bearerToken(c)
		if !ok {
			response.AbortError(c, apperrors.ErrUnauthorized)
			return
		}

		key, err := keys.Validate(c.Request.Context(), secret)
		if err != nil {
			response.AbortError(c, apperrors.ErrUnauthorized)
			return
		}

		c.Set(CtxUserIDKey, key.UserID)
		c.Set(CtxAPIKeyIDKey, key.ID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(authz[7:]), true
}
