package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/parakeet-ai/parakeet/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID extracts the authenticated user id set by the auth middleware.
func currentUserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Get(middleware.CtxUserIDKey); ok {
		if userID, ok := id.(string); ok {
			return userID
		}
	}
	return ""
}

// currentAPIKeyID extracts the API key id when the request came through /v1.
func currentAPIKeyID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Get(middleware.CtxAPIKeyIDKey); ok {
		if keyID, ok := id.(string); ok {
			return keyID
		}
	}
	return ""
}
