package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pklhub/pklhub-api/config"
	"github.com/pklhub/pklhub-api/internal/cache"
	"github.com/pklhub/pklhub-api/internal/database/postgres"
	"github.com/pklhub/pklhub-api/internal/handlers"
	"github.com/pklhub/pklhub-api/internal/identity"
	"github.com/pklhub/pklhub-api/internal/middleware"
	"github.com/pklhub/pklhub-api/internal/repository"
	"github.com/pklhub/pklhub-api/internal/session"
	"github.com/pklhub/pklhub-api/internal/storage"
	"github.com/pklhub/pklhub-api/pkg/db"
	"github.com/pklhub/pklhub-api/pkg/jwt"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/pklhub/pklhub-api/pkg/metrics"
	"github.com/pklhub/pklhub-api/pkg/profiling"
	"github.com/pklhub/pklhub-api/pkg/retry"
	"github.com/pklhub/pklhub-api/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting PKLHub API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
	)

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(
		cfg.Observability.ServiceName,
		cfg.Observability.ServiceNamespace,
		cfg.Observability.ServiceVersion,
		cfg.Observability.ServiceInstanceID,
		cfg.Server.AppEnv,
		cfg.Observability.AlloyEndpoint,
	)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Continuous profiling (optional)
	stopProfiler, err := profiling.InitProfiler(
		cfg.Profiling,
		cfg.Observability.ServiceName,
		cfg.Observability.ServiceNamespace,
		cfg.Observability.ServiceVersion,
		cfg.Observability.ServiceInstanceID,
		cfg.Server.AppEnv,
	)
	if err != nil {
		logger.Warn("Failed to initialize profiler", zap.Error(err))
	} else {
		defer stopProfiler()
	}

	// Start infrastructure metrics collection
	metrics.RecordInfrastructureMetrics()

	// Initialize PostgreSQL connection pool. Retried because the database
	// container may come up after the API
	pool, err := retry.DoWithResult(context.Background(), retry.PostgresConfig(), "db_connect", func() (*pgxpool.Pool, error) {
		return db.NewPool(context.Background(), db.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
	})
	if err != nil {
		logger.Fatal("Failed to initialize database connection pool", zap.Error(err))
	}
	defer pool.Close()

	// NOTE: Database migrations are run separately via the migrate command

	dbClient := postgres.NewClient(pool)

	// Initialize object storage client for profile photos
	var blobs session.BlobStorage
	if cfg.HasStorage() {
		storageClient, err := storage.NewClient(storage.Config{
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.BucketName,
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
		})
		if err != nil {
			logger.Fatal("Failed to initialize object storage client", zap.Error(err))
		}
		blobs = storageClient
	} else {
		logger.Warn("Object storage not configured, photo uploads will fail")
		blobs = storage.Unconfigured{}
	}

	// Wire the profile store, with or without the read cache
	var profiles session.ProfileStore = dbClient
	if cfg.Cache.DisableProfileCache {
		logger.Warn("Profile cache is DISABLED - reading from database on every request")
	} else {
		profileCache := cache.NewProfileCache(dbClient, cfg.Cache.ProfileTTLSeconds)
		profiles = repository.NewProfileRepository(dbClient, profileCache)
	}

	// Identity backend: credential checks, token issuance, persistence
	tokenManager := jwt.NewTokenManager(
		cfg.Session.JWTSecret,
		cfg.Session.JWTIssuer,
		cfg.Session.SessionTTLHours,
	)
	identityService := identity.NewService(
		dbClient,
		tokenManager,
		identity.NewTokenStore(cfg.Session.TokenPath),
	)
	defer identityService.Close()

	// Seed the demo account in development so a fresh database is usable
	if cfg.IsDevelopment() && cfg.Demo.SeedEmail != "" && cfg.Demo.SeedPassword != "" {
		if err := identityService.EnsureUser(context.Background(), cfg.Demo.SeedEmail, cfg.Demo.SeedPassword); err != nil {
			logger.Warn("Failed to seed demo account", zap.Error(err))
		}
	}

	// The session manager is the single authority for auth and profile state
	manager := session.NewManager(identityService, profiles, blobs)
	manager.Start(context.Background())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(manager)
	profileHandler := handlers.NewProfileHandler(manager)
	stateHandler := handlers.NewStateHandler(manager)
	healthHandler := handlers.NewHealthHandler(func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return dbClient.Ping(ctx) == nil
	})

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// CORS: only the companion UI's origins are allowed
	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://localhost:3000", "http://127.0.0.1:3000")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "traceparent", "tracestate"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiters: tight on login to slow credential guessing, loose
	// elsewhere
	generalRateLimiter := middleware.NewRateLimiter(100, 200)
	loginRateLimiter := middleware.NewRateLimiter(1, 5)
	profileRateLimiter := middleware.NewRateLimiter(10, 20)
	defer generalRateLimiter.Stop()
	defer loginRateLimiter.Stop()
	defer profileRateLimiter.Stop()

	// Utility endpoints (not versioned - operational endpoints)
	api := router.Group("/api")
	api.GET("/healthcheck", generalRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", generalRateLimiter.Middleware(), gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", loginRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(10*1024), authHandler.Login)
	v1.POST("/auth/logout", generalRateLimiter.Middleware(), authHandler.Logout)
	v1.GET("/auth/session", generalRateLimiter.Middleware(), authHandler.GetSession)
	v1.GET("/session/stream", generalRateLimiter.Middleware(), stateHandler.Stream)
	v1.GET("/profile", generalRateLimiter.Middleware(), profileHandler.GetProfile)
	v1.PUT("/profile", profileRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(100*1024), profileHandler.UpdateProfile)
	// Base64 inflates the payload by a third over the raw photo limit
	v1.POST("/profile/photo", profileRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(8*1024*1024), profileHandler.UploadPhoto)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // the state stream endpoint holds connections open
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
