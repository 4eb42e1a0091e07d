package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/parakeet-ai/parakeet/internal/auth"
	"github.com/parakeet-ai/parakeet/internal/database/testutil"
	"github.com/parakeet-ai/parakeet/internal/services"
)

func newAuthTestRouter(t *testing.T, jwt *auth.JWTService) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(jwt), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	return r
}

func TestAuthAcceptsValidToken(t *testing.T) {
	jwt, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	router := newAuthTestRouter(t, jwt)

	token, err := jwt.GenerateAccessToken(auth.AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "user-123", body["user_id"])
}

func TestAuthRejectsMissingAndMalformedHeaders(t *testing.T) {
	jwt, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	router := newAuthTestRouter(t, jwt)

	for _, header := range []string{"", "Bearer", "Basic abc123", "Bearer not-a-token"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, "UNAUTHORIZED", body["error_code"])
	}
}

func TestAPIKeyAuthResolvesKey(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	keys, err := services.NewAPIKeyService(db)
	require.NoError(t, err)

	created, err := keys.Create(context.Background(), "user-123", "test key")
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/audio/speech", APIKeyAuth(keys), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(CtxUserIDKey),
			"api_key_id": c.GetString(CtxAPIKeyIDKey),
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", nil)
	req.Header.Set("Authorization", "Bearer "+created.Secret)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "user-123", body["user_id"])
	require.Equal(t, created.Key.ID, body["api_key_id"])
}

func TestAPIKeyAuthRejectsRevokedKey(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	keys, err := services.NewAPIKeyService(db)
	require.NoError(t, err)

	created, err := keys.Create(context.Background(), "user-123", "test key")
	require.NoError(t, err)
	require.NoError(t, keys.Revoke(context.Background(), "user-123", created.Key.ID))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/audio/speech", APIKeyAuth(keys), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", nil)
	req.Header.Set("Authorization", "Bearer "+created.Secret)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
