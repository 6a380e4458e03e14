package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/config"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/handler"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/middleware"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/provider"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/repository/postgres"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/repository/storage"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(pool)
	workspaceRepo := postgres.NewWorkspaceRepository(pool)
	membershipRepo := postgres.NewMembershipRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Artifact storage is optional; without it stored outputs cannot be served
	var artifacts domain.ArtifactStore
	if cfg.S3.Enabled() {
		store, err := storage.NewS3ArtifactStore(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize artifact storage")
		}
		artifacts = store
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Artifact storage enabled")
	} else {
		log.Warn().Msg("S3_BUCKET not set, artifact storage disabled")
	}

	// Provider adapters
	registry, err := provider.BuildRegistry(cfg, artifacts, &http.Client{Timeout: cfg.Jobs.DispatchTimeout})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure providers")
	}

	// WebSocket hub, optionally fanned out across instances through Redis
	hub := websocket.NewHub()
	var publisher websocket.EventPublisher = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ping Redis")
		}
		fanout := websocket.NewRedisFanout(redisClient, hub, "", log.Logger)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Event fan-out stopped")
			}
		}()
		publisher = fanout
	}

	// Initialize services
	directoryService := service.NewDirectoryService(userRepo, workspaceRepo, membershipRepo, service.WorkspaceDefaults{
		InitialCredits: cfg.Workspaces.InitialCredits,
		MaxUsers:       cfg.Workspaces.MaxUsers,
	})
	directoryService.SetEventPublisher(publisher)
	authService := service.NewAuthService(userRepo, directoryService)
	ledgerService := service.NewLedgerService(ledgerRepo)
	generationService := service.NewGenerationService(directoryService, jobRepo, txRunner, registry, artifacts, service.GenerationConfig{
		DispatchTimeout: cfg.Jobs.DispatchTimeout,
		PresignExpiry:   cfg.S3.PresignExpiry,
	})
	generationService.SetEventPublisher(publisher)

	// Reconciliation worker fails jobs whose provider never reported back
	reconciler := service.NewReconciliationWorker(generationService, log.Logger, service.ReconciliationWorkerConfig{
		Interval:  cfg.Jobs.SweepInterval,
		BatchSize: cfg.Jobs.SweepBatchSize,
	})
	reconciler.Start(ctx)

	// Initialize auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, authService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	submitLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.SubmitBurst)
	defer submitLimiter.Stop()

	wsValidator, err := websocket.NewAuth0JWTValidator(cfg.Auth0Domain, cfg.Auth0Audience, directoryService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WebSocket token validator")
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, directoryService),
		Workspace: handler.NewWorkspaceHandler(directoryService, ledgerService),
		Member:    handler.NewMemberHandler(directoryService),
		Job:       handler.NewJobHandler(generationService),
		Webhook:   handler.NewWebhookHandler(generationService),
		WebSocket: handler.NewWebSocketHandler(hub, wsValidator, cfg.CORSOrigins),
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, submitLimiter, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	reconciler.Stop()
	stop()
	if n := hub.CloseAll(); n > 0 {
		log.Info().Int("count", n).Msg("Closed stream subscribers")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
