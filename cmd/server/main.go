package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/pawtraits/backend/internal/analytics"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/config"
	"github.com/pawtraits/backend/internal/database"
	"github.com/pawtraits/backend/internal/handlers"
	"github.com/pawtraits/backend/internal/jobs"
	"github.com/pawtraits/backend/internal/logger"
	"github.com/pawtraits/backend/internal/middleware"
	"github.com/pawtraits/backend/internal/money"
	"github.com/pawtraits/backend/internal/orders"
	"github.com/pawtraits/backend/internal/portrait"
	"github.com/pawtraits/backend/internal/queue"
	"github.com/pawtraits/backend/internal/ratelimit"
	"github.com/pawtraits/backend/internal/referral"
	"github.com/pawtraits/backend/internal/routes"
	"github.com/pawtraits/backend/internal/storage"
	"github.com/pawtraits/backend/internal/utils"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(cfg.Environment, "pawtraits-backend")
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	settings, err := referralSettings(cfg.Referral)
	if err != nil {
		log.Fatal("Invalid referral configuration", zap.Error(err))
	}

	db, err := database.InitDB(cfg.Database, cfg.Environment, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	images, err := storage.NewMinioStore(ctx, storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize image storage", zap.Error(err))
	}

	jobQueue := queue.NewRedisQueue(redisClient)

	// Services
	referralService := referral.NewService(db, settings, log)
	recorder := commission.NewRecorder(db, settings.CustomerCreditRate, log)
	analyticsService := analytics.NewService(db)
	orderService := orders.NewService(db, referralService, recorder, log)
	generator := portrait.NewGeminiClient(portrait.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	portraitService := portrait.NewService(db, generator, images, jobQueue, log)

	// Rate limiting
	var windowStore ratelimit.Store = ratelimit.NewRedisStore(redisClient)
	var windowCleaner jobs.WindowCleaner
	if cfg.RateLimit.Store == "memory" {
		mem := ratelimit.NewMemoryStore()
		windowStore, windowCleaner = mem, mem
	}
	portraitLimiter := ratelimit.NewLimiter(windowStore, ratelimit.Policy{
		Limit:  cfg.RateLimit.PortraitLimit,
		Window: time.Duration(cfg.RateLimit.PortraitWindow) * time.Second,
	}, "ratelimit", log)
	ipLimiter := middleware.NewRateLimiter(float64(cfg.RateLimit.IPRequests), 10, cfg.RateLimit.IPBurst, 5)
	defer ipLimiter.Stop()

	// Background work
	processor := queue.NewProcessor(jobQueue, log, cfg.Workers.Count)
	jobs.RegisterAllJobHandlers(processor, portraitService, recorder, log)
	if err := processor.Start(ctx); err != nil {
		log.Fatal("Failed to start job processor", zap.Error(err))
	}

	scheduler := jobs.NewScheduler(recorder, referralService, windowCleaner, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP
	issuer := utils.NewTokenIssuer(cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour)
	router := routes.NewRouter(routes.Handlers{
		Auth:       handlers.NewAuthHandler(referralService, issuer, cfg.Admin, log),
		Referral:   handlers.NewReferralHandler(referralService, analyticsService, log),
		Commission: handlers.NewCommissionHandler(recorder, jobQueue, log),
		Admin:      handlers.NewAdminHandler(referralService, analyticsService, log),
		Customer:   handlers.NewCustomerHandler(referralService, recorder, log),
		Order:      handlers.NewOrderHandler(orderService, log),
		Portrait:   handlers.NewPortraitHandler(portraitService, log),
		Webhook: handlers.NewWebhookHandler(orderService, jobQueue, cfg.Stripe.WebhookSecret,
			time.Duration(cfg.Stripe.Tolerance)*time.Second, log),
		Health: handlers.NewHealthHandler(db, redisClient),
	}, routes.Options{
		Issuer:          issuer,
		RateLimiter:     ipLimiter,
		PortraitLimiter: portraitLimiter,
		Logger:          log,
		Production:      cfg.IsProduction(),
	}, cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	cancel()
	processor.Stop()

	log.Info("Server exiting")
}

func referralSettings(cfg config.ReferralConfig) (referral.Settings, error) {
	discount, err := money.ParseRate(cfg.DiscountPercent)
	if err != nil {
		return referral.Settings{}, fmt.Errorf("REFERRAL_DISCOUNT_PERCENT: %w", err)
	}
	credit, err := money.ParseRate(cfg.CustomerCreditRate)
	if err != nil {
		return referral.Settings{}, fmt.Errorf("REFERRAL_CUSTOMER_CREDIT_RATE: %w", err)
	}
	partner, err := money.ParseRate(cfg.PartnerDefaultRate)
	if err != nil {
		return referral.Settings{}, fmt.Errorf("REFERRAL_PARTNER_DEFAULT_RATE: %w", err)
	}
	return referral.Settings{
		DiscountRate:       discount,
		CustomerCreditRate: credit,
		PartnerDefaultRate: partner,
	}, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
