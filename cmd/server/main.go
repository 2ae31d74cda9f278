package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"licensepay.backend/internal/config"
	"licensepay.backend/internal/infrastructure/gateway"
	"licensepay.backend/internal/infrastructure/jobs"
	"licensepay.backend/internal/infrastructure/mailclient"
	"licensepay.backend/internal/infrastructure/mailqueue"
	"licensepay.backend/internal/infrastructure/providers"
	"licensepay.backend/internal/infrastructure/repositories"
	"licensepay.backend/internal/interfaces/http/handlers"
	"licensepay.backend/internal/interfaces/http/middleware"
	"licensepay.backend/internal/usecases"
	"licensepay.backend/pkg/logger"
	"licensepay.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("connected to PostgreSQL via GORM")
	}

	// Repositories
	licenseRepo := repositories.NewLicenseRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	productRepo := repositories.NewProductRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	waitlistRepo := repositories.NewWaitlistRepository(db)
	webhookEventRepo := repositories.NewWebhookEventRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Provider adapters (C1) — inbound webhook verification/parsing
	registry := providers.NewRegistry(
		providers.NewEpaycoAdapter(providers.EpaycoConfig{
			ClientID: cfg.Providers["epayco"].AuthUserID,
			PKey:     cfg.Providers["epayco"].PKey,
		}),
		providers.NewPaylinkAdapter(providers.PaylinkConfig{
			WebhookSecret: cfg.Providers["paylink"].WebhookSecret,
		}),
	)

	// Gateway clients (C7) — outbound status polling, one per provider,
	// sharing a single rate limiter policy.
	limiter := gateway.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	gatewayClients := map[string]usecases.GatewayStatusClient{}
	for name, pc := range cfg.Providers {
		gatewayClients[name] = gateway.NewClient(gateway.Config{
			Provider:   name,
			BaseURL:    pc.BaseURL,
			AuthUserID: pc.AuthUserID,
			AuthSecret: pc.AuthSecret,
		}, limiter)
	}

	// Email delivery (C5)
	mailSender := mailclient.New(mailclient.Config{
		BaseURL:     cfg.Mail.APIBaseURL,
		APIKey:      cfg.Mail.APIKey,
		SenderEmail: cfg.Mail.SenderEmail,
		SenderName:  cfg.Mail.SenderName,
	})
	mailQueue := mailqueue.New(mailqueue.Config{
		Interval:     cfg.Queue.Interval(),
		MaxRetries:   cfg.Queue.MaxRetries,
		MaxQueueSize: cfg.Queue.MaxQueueSize,
	}, mailSender)

	// Usecases
	inventory := usecases.NewLicenseInventory(licenseRepo, waitlistRepo, orderRepo, uow, mailQueue)
	engine := usecases.NewTransactionEngine(transactionRepo, orderRepo, productRepo, inventory, mailQueue, uow, usecases.DefaultEngineConfig())
	ingressUsecase := usecases.NewWebhookIngressUsecase(registry, webhookEventRepo, engine)
	verifier := usecases.NewReconciliationVerifier(transactionRepo, engine, gatewayClients, cfg.Reconciliation)
	adminOps := usecases.NewAdminOps(orderRepo, licenseRepo, productRepo, waitlistRepo, inventory, mailQueue, uow)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(ingressUsecase)
	adminHandler := handlers.NewAdminHandler(adminOps, verifier)

	adminAuth := middleware.RequireAdminToken(cfg.Server.AdminToken)

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stagingJob := jobs.NewWaitlistStagingJob(inventory, waitlistRepo, cfg.Waitlist.StagingInterval())
	processingJob := jobs.NewWaitlistProcessingJob(inventory, cfg.Waitlist.ProcessInterval())
	sweepJob := jobs.NewReconciliationSweepJob(verifier, cfg.Reconciliation.PollInterval())

	go stagingJob.Start(ctx)
	go processingJob.Start(ctx)
	go sweepJob.Start(ctx)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerHealthRoute(r)
	registerAPIV1Routes(r, routeDeps{
		webhookHandler: webhookHandler,
		adminHandler:   adminHandler,
		adminAuth:      adminAuth,
	})

	log.Println("Registered routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down server...")
		stagingJob.Stop()
		processingJob.Stop()
		sweepJob.Stop()
		mailQueue.Stop()
		cancel()
	}()

	log.Printf("licensepay backend starting on port %s", cfg.Server.Port)
	log.Printf("API: http://localhost:%s/api/v1", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
