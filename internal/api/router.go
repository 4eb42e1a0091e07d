// Package api assembles the HTTP surface: middleware, route registration,
// and the handler wiring for both the dashboard API and the public /v1 API.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/app"
	"github.com/parakeet-ai/parakeet/internal/auth"
	"github.com/parakeet-ai/parakeet/internal/handlers"
	"github.com/parakeet-ai/parakeet/internal/middleware"
	"github.com/parakeet-ai/parakeet/internal/services"
	"github.com/parakeet-ai/parakeet/internal/storage"
)

// Deps bundles the shared collaborators the router wires into handlers.
type Deps struct {
	DB          *gorm.DB
	JWT         *auth.JWTService
	Config      *app.Config
	Generations *services.GenerationService
	AudioFiles  *services.AudioFileService
	APIKeys     *services.APIKeyService
	Blobs       *storage.FilesystemBlobStore
	RateStore   middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Generations == nil {
		return nil, fmt.Errorf("generation service must be provided")
	}
	if deps.AudioFiles == nil {
		return nil, fmt.Errorf("audio file service must be provided")
	}
	if deps.APIKeys == nil {
		return nil, fmt.Errorf("api key service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if rl := deps.Config.RateLimit; rl.Enabled {
		r.Use(middleware.RateLimit(deps.RateStore, rl.MaxRequests, rl.Window))
	}

	// Health endpoint (public)
	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}

	// Generated audio blobs (public, content-addressed)
	if deps.Blobs != nil {
		r.Static("/files", deps.Blobs.Root())
	}

	generateHandler, err := handlers.NewGenerateHandler(deps.Generations)
	if err != nil {
		return nil, err
	}
	voiceHandler, err := handlers.NewVoiceHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	creditHandler, err := handlers.NewCreditHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	audioFileHandler, err := handlers.NewAudioFileHandler(deps.AudioFiles)
	if err != nil {
		return nil, err
	}
	apiKeyHandler, err := handlers.NewAPIKeyHandler(deps.DB)
	if err != nil {
		return nil, err
	}

	// Public catalog and feed
	r.GET("/api/voices", voiceHandler.List)
	r.GET("/api/voices/:name", voiceHandler.Get)
	r.GET("/api/public-audios", audioFileHandler.ListPublic)

	// Dashboard API (JWT)
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	{
		api.POST("/generate-voice", generateHandler.Generate)
		api.POST("/estimate-credits", generateHandler.EstimateCredits)
		api.GET("/credits", creditHandler.Get)
		api.GET("/audio-files", audioFileHandler.List)
		api.DELETE("/audio-files/:id", audioFileHandler.Delete)
		api.POST("/api-keys", apiKeyHandler.Create)
		api.GET("/api-keys", apiKeyHandler.List)
		api.DELETE("/api-keys/:id", apiKeyHandler.Revoke)
	}

	// Public API (API keys)
	v1 := r.Group("/v1")
	v1.Use(middleware.APIKeyAuth(deps.APIKeys))
	{
		v1.POST("/audio/speech", generateHandler.Speech)
	}

	// Metrics endpoint
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
