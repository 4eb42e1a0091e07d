package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/analytics"
	"github.com/parakeet-ai/parakeet/internal/api"
	"github.com/parakeet-ai/parakeet/internal/app"
	"github.com/parakeet-ai/parakeet/internal/app/maintenance"
	"github.com/parakeet-ai/parakeet/internal/auth"
	"github.com/parakeet-ai/parakeet/internal/cache"
	"github.com/parakeet-ai/parakeet/internal/database"
	"github.com/parakeet-ai/parakeet/internal/middleware"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/internal/outbox"
	"github.com/parakeet-ai/parakeet/internal/services"
	"github.com/parakeet-ai/parakeet/internal/storage"
	"github.com/parakeet-ai/parakeet/internal/tts"
	"github.com/parakeet-ai/parakeet/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parakeet-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	dbStore := cache.NewDatabaseStore(db)

	var cacheStore cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(redisErr))
		} else {
			cacheStore = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	defer func() {
		if rc, ok := cacheStore.(*cache.RedisClient); ok && rc != nil {
			_ = rc.Close()
		}
	}()

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	blobs, err := storage.NewFilesystemBlobStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("initialise blob store: %w", err)
	}

	voiceSvc, err := services.NewVoiceService(db)
	if err != nil {
		return fmt.Errorf("initialise voice service: %w", err)
	}
	creditSvc, err := services.NewCreditService(db)
	if err != nil {
		return fmt.Errorf("initialise credit service: %w", err)
	}
	audioFileSvc, err := services.NewAudioFileService(db, blobs)
	if err != nil {
		return fmt.Errorf("initialise audio file service: %w", err)
	}
	apiKeySvc, err := services.NewAPIKeyService(db)
	if err != nil {
		return fmt.Errorf("initialise api key service: %w", err)
	}

	geminiEngine, err := tts.NewGeminiEngine(cfg.Providers.GeminiEngineConfig())
	if err != nil {
		return fmt.Errorf("initialise gemini engine: %w", err)
	}
	replicateEngine, err := tts.NewReplicateEngine(cfg.Providers.ReplicateEngineConfig())
	if err != nil {
		return fmt.Errorf("initialise replicate engine: %w", err)
	}
	engines := map[models.Engine]tts.Engine{
		models.EngineGemini:    geminiEngine,
		models.EngineReplicate: replicateEngine,
	}

	queue, err := outbox.NewQueue(db)
	if err != nil {
		return fmt.Errorf("initialise outbox queue: %w", err)
	}

	generationSvc, err := services.NewGenerationService(
		voiceSvc, creditSvc, audioFileSvc, cacheStore, blobs, engines, queue,
		services.GenerationConfig{FreeGenerationLimit: cfg.Freemium.FreeGenerationLimit},
	)
	if err != nil {
		return fmt.Errorf("initialise generation service: %w", err)
	}

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics.PostHog.Enabled {
		posthog, sinkErr := analytics.NewPostHogSink(analytics.PostHogConfig{
			APIKey: cfg.Analytics.PostHog.APIKey,
			Host:   cfg.Analytics.PostHog.Host,
		})
		if sinkErr != nil {
			log.Warn("posthog disabled", zap.Error(sinkErr))
		} else {
			sink = posthog
		}
	}

	settlementSvc, err := services.NewSettlementService(creditSvc, audioFileSvc, sink)
	if err != nil {
		return fmt.Errorf("initialise settlement service: %w", err)
	}

	dispatcher, err := outbox.NewDispatcher(queue, settlementSvc, sink,
		outbox.WithSchedule(cfg.Outbox.Schedule),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("initialise outbox dispatcher: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("start outbox dispatcher: %w", err)
	}
	defer func() {
		stopCtx := dispatcher.Stop()
		if err := dispatcher.RunOnce(stopCtx); err != nil {
			log.Warn("outbox shutdown drain failed", zap.Error(err))
		}
	}()

	cleaner := maintenance.NewCleaner(db, dbStore)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(api.Deps{
		DB:          db,
		JWT:         jwtService,
		Config:      cfg,
		Generations: generationSvc,
		AudioFiles:  audioFileSvc,
		APIKeys:     apiKeySvc,
		Blobs:       blobs,
		RateStore:   middleware.NewDatabaseRateStore(cacheStore),
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
