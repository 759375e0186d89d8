package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citytours/backend/internal/config"
	"github.com/citytours/backend/internal/handlers"
	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/middleware"
	"github.com/citytours/backend/internal/models"
	"github.com/citytours/backend/internal/pkg/imagecodec"
	"github.com/citytours/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		bootLog := logging.New("development", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(cfg.Env, cfg.LogLevel)
	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	// Initialize database
	db, err := models.InitDB(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg, log)
	defer redisClient.Close()

	ctx := context.Background()
	healthChecks := []handlers.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}

	// Optional S3 mirror
	var mirror services.ObjectMirror
	if cfg.S3MirrorEnabled() {
		s3Service, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init S3 mirror")
		}
		mirror = s3Service
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "s3", Check: s3Service.Health})
		log.Info().Str("bucket", cfg.MediaS3Bucket).Msg("mirroring media to S3")
	}

	// Initialize services
	storageService := services.NewStorageService(cfg, mirror, log)
	if err := storageService.Health(ctx); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("upload directory unusable")
	}
	healthChecks = append(healthChecks, handlers.HealthCheck{Name: "storage", Check: storageService.Health})

	codec := imagecodec.New(imagecodec.Options{
		MaxDimension:     cfg.MediaMaxDimension,
		Quality:          cfg.MediaQuality,
		ThumbnailSize:    cfg.MediaThumbnailSize,
		ThumbnailQuality: cfg.MediaThumbnailQuality,
	})
	mediaStore := services.NewMediaStore(db)
	quotaService := services.NewQuotaService(mediaStore, cfg.MediaUserQuotaBytes)
	mediaService := services.NewMediaService(mediaStore, storageService, codec, quotaService, log)
	tourService := services.NewTourService(db, services.NewTourCache(), mediaService, log)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg))

	// Initialize handlers
	mediaHandler := handlers.NewMediaHandler(mediaService, cfg, log)
	tourHandler := handlers.NewTourHandler(tourService, log)
	healthHandler := handlers.NewHealthHandler(healthChecks...)

	// Health and metrics outside API group (no /api/v1 prefix)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", storageService.Root())

	// Setup routes
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimiter(redisClient, cfg, log))
	{
		api.GET("/health", healthHandler.Health)

		// Public tour catalogue
		api.GET("/cities/:city/tours", tourHandler.ListByCity)
		api.GET("/tours/:id", tourHandler.GetTour)

		// Media library
		media := api.Group("/media")
		media.Use(middleware.Auth(cfg.JWTSecret))
		{
			media.POST("", middleware.UploadRateLimit(redisClient, cfg, log), mediaHandler.Upload)
			media.GET("", mediaHandler.List)
			media.GET("/usage", mediaHandler.Usage)
			media.GET("/:id", mediaHandler.Get)
			media.PATCH("/:id", mediaHandler.Update)
			media.DELETE("/:id", mediaHandler.Delete)
		}

		// Admin routes
		admin := api.Group("")
		admin.Use(middleware.Auth(cfg.JWTSecret))
		admin.Use(middleware.AdminOnly())
		{
			admin.POST("/tours", tourHandler.CreateTour)
			admin.POST("/tours/cache/clear", tourHandler.ClearCache)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  120 * time.Second, // batch uploads of large images
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
