package main

// @title Noomo AI API
// @version 1.0
// @description Turn study notes into AI-generated mnemonic jingles.
// @termsOfService https://noomo.ai/terms

// @contact.name API Support
// @contact.url https://noomo.ai/support
// @contact.email support@noomo.ai

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/noomo-ai/noomo-backend/config"
	"github.com/noomo-ai/noomo-backend/pkg/ai/llm"
	"github.com/noomo-ai/noomo-backend/pkg/api/handlers"
	custommw "github.com/noomo-ai/noomo-backend/pkg/api/middleware"
	"github.com/noomo-ai/noomo-backend/pkg/audio"
	"github.com/noomo-ai/noomo-backend/pkg/billing"
	"github.com/noomo-ai/noomo-backend/pkg/cache"
	"github.com/noomo-ai/noomo-backend/pkg/database"
	"github.com/noomo-ai/noomo-backend/pkg/email"
	"github.com/noomo-ai/noomo-backend/pkg/jingle"
	"github.com/noomo-ai/noomo-backend/pkg/jobs"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	custommiddleware "github.com/noomo-ai/noomo-backend/pkg/middleware"
	"github.com/noomo-ai/noomo-backend/pkg/music"
	"github.com/noomo-ai/noomo-backend/pkg/storage"
	"github.com/noomo-ai/noomo-backend/pkg/studysets"
	"github.com/noomo-ai/noomo-backend/pkg/tokens"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env if present (development convenience)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database
	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize provider clients
	llmClient := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: float32(cfg.OpenAITemperature),
		MaxTokens:   cfg.OpenAIMaxTokens,
	}, log.Default())

	musicClient := music.NewClient(cfg.MusicAPIKey, cfg.MusicAPIURL,
		time.Duration(cfg.MusicTimeout)*time.Second)
	if cfg.MusicAPIKey == "" {
		log.Printf("ℹ️  Music synthesis disabled (no MUSIC_API_KEY); lyrics-only generation available")
	}

	var store storage.Uploader
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Storage(context.Background(), storage.Config{
			Bucket:      cfg.S3Bucket,
			Region:      cfg.AWSRegion,
			AccessKeyID: cfg.AWSAccessKeyID,
			SecretKey:   cfg.AWSSecretAccessKey,
			Endpoint:    cfg.S3Endpoint,
			BaseURL:     cfg.S3PublicBaseURL,
		})
		if err != nil {
			log.Fatalf("❌ Failed to initialize S3 storage: %v", err)
		}
		store = s3Store
		log.Printf("✅ S3 storage initialized (bucket: %s)", cfg.S3Bucket)
	} else {
		log.Printf("ℹ️  S3 storage disabled (no S3_BUCKET); audio re-hosting unavailable")
	}

	// Initialize email service
	emailService := email.NewService(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SupportInbox,
		cfg.SendGridAPIKey,
	)

	// Initialize services
	ledger := tokens.NewLedger(db.Gorm, cfg.TokensFree, cfg.TokensBasic)
	setsService := studysets.NewService(db.Gorm)
	jingleService := jingle.NewService(llmClient, musicClient, store)
	jingleService.SetMetrics(prometheusMetrics)
	stitcher := audio.NewStitcher(db.Gorm, setsService, musicClient, store)

	billingService := billing.NewService(db.Gorm, &billing.StripeConfig{
		SecretKey:           cfg.StripeSecretKey,
		WebhookSecret:       cfg.StripeWebhookSecret,
		PricePremium:        cfg.StripePricePremium,
		PriceBasic:          cfg.StripePriceBasic,
		SuccessURL:          cfg.FrontendURL + "/account?checkout=success",
		CancelURL:           cfg.FrontendURL + "/pricing?checkout=canceled",
		TokenAllowanceBasic: cfg.TokensBasic,
	})
	billingService.SetEventGuard(billing.NewRedisEventGuard(redisClient))
	billingService.SetMetrics(prometheusMetrics)

	// Initialize cron manager for scheduled token refills
	cronManager := jobs.NewCronManager(db.Gorm, ledger, log.Default())
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()
	log.Printf("✅ Cron jobs started successfully")

	// Initialize handlers
	billingHandler := handlers.NewBillingHandler(billingService, cfg.FrontendURL)
	tokensHandler := handlers.NewTokensHandler(ledger, prometheusMetrics)
	generationHandler := handlers.NewGenerationHandler(jingleService, prometheusMetrics)
	audioHandler := handlers.NewAudioHandler(musicClient, store, stitcher, prometheusMetrics)
	setsHandler := handlers.NewSetsHandler(setsService)
	supportHandler := handlers.NewSupportHandler(emailService)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Initialize rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	generateRateLimiter := custommiddleware.NewRateLimiter(10, 3)  // Generation is expensive
	webhookRateLimiter := custommiddleware.NewRateLimiter(100, 20) // Stripe retries in bursts

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	// Prometheus metrics middleware
	e.Use(prometheusMetrics.Middleware())

	// CORS with restricted origins
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.FrontendURL)))

	e.Use(middleware.Gzip())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))

	// Global rate limiting
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "Noomo AI API",
			"version":     "0.1.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}

		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Public routes
	v1.GET("/pricing", billingHandler.GetPricing)
	v1.POST("/support", supportHandler.SubmitInquiry)
	// Stripe webhook with higher rate limit: 100 per minute
	v1.POST("/webhook/stripe", billingHandler.HandleWebhook, webhookRateLimiter.RateLimitMiddleware())

	// Protected routes (require JWT)
	protected := v1.Group("")
	protected.Use(custommw.JWTMiddleware(cfg.AuthJWTSecret))
	{
		// Billing routes
		billingGroup := protected.Group("/billing")
		{
			billingGroup.POST("/checkout", billingHandler.CreateCheckout)
			billingGroup.POST("/portal", billingHandler.CreatePortalSession)
			billingGroup.POST("/sync", billingHandler.SyncSubscription)
			billingGroup.POST("/validate", billingHandler.ValidateSubscription)
		}

		// Token routes
		tokensGroup := protected.Group("/tokens")
		{
			tokensGroup.POST("/deduct", tokensHandler.DeductToken)
			tokensGroup.GET("/balance", tokensHandler.GetBalance)
		}

		// Generation routes (stricter rate limit: LLM and synthesis are slow and paid)
		generateGroup := protected.Group("/generate", generateRateLimiter.RateLimitMiddleware())
		{
			generateGroup.POST("/terms", generationHandler.GenerateTerms)
			generateGroup.POST("/song", generationHandler.GenerateSong)
		}

		// Audio routes
		audioGroup := protected.Group("/audio")
		{
			audioGroup.POST("/upload", audioHandler.UploadAudio)
			audioGroup.POST("/stitch", audioHandler.StitchAudio)
		}

		// Study set routes
		setsGroup := protected.Group("/sets")
		{
			setsGroup.POST("", setsHandler.CreateSet)
			setsGroup.GET("", setsHandler.ListSets)
			setsGroup.GET("/:id", setsHandler.GetSet)
			setsGroup.DELETE("/:id", setsHandler.DeleteSet)
			setsGroup.POST("/:id/jingles", setsHandler.AddJingle)
			setsGroup.DELETE("/:id/jingles/:index", setsHandler.RemoveJingle)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 Noomo AI API starting on %s", address)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d), generation 10/min, webhook 100/min",
		cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Cron jobs: Monthly token refill, daily 4AM tier stats")

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Stop cron jobs
	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
