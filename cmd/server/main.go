package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/pipeline"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/lock"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/supplier"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting storefront sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	providerRepo := persistence.NewGormProviderRepository(db.DB)
	snapshotReader := persistence.NewGormSnapshotReader(db.DB)
	rateRepo := persistence.NewGormExchangeRateRepository(db.DB)
	storeGateway := persistence.NewGormStoreGateway(db.DB, log)

	// Run locks keep concurrent triggers for the same provider and
	// locale from racing each other
	locker, err := lock.NewRunLocker(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize run locker", zap.Error(err))
	}

	// Supplier catalog client
	printfulCfg := supplier.NewPrintfulConfig(cfg.Supplier.APIKey)
	if cfg.Supplier.BaseURL != "" {
		printfulCfg.APIBaseURL = cfg.Supplier.BaseURL
	}
	if cfg.Supplier.RequestTimeout > 0 {
		printfulCfg.RequestTimeout = cfg.Supplier.RequestTimeout
	}
	if cfg.Supplier.PageSize > 0 {
		printfulCfg.PageSize = cfg.Supplier.PageSize
	}
	if cfg.Supplier.Concurrency > 0 {
		printfulCfg.Concurrency = cfg.Supplier.Concurrency
	}
	if cfg.Supplier.RequestsPerSecond > 0 {
		printfulCfg.RequestsPerSecond = cfg.Supplier.RequestsPerSecond
	}
	if cfg.Supplier.Burst > 0 {
		printfulCfg.Burst = cfg.Supplier.Burst
	}
	if cfg.Supplier.MaxRetries > 0 {
		printfulCfg.MaxRetries = cfg.Supplier.MaxRetries
	}
	if cfg.Supplier.InitialBackoff > 0 {
		printfulCfg.InitialBackoff = cfg.Supplier.InitialBackoff
	}
	if cfg.Supplier.MaxBackoff > 0 {
		printfulCfg.MaxBackoff = cfg.Supplier.MaxBackoff
	}
	catalogSource, err := supplier.NewPrintfulClient(printfulCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize supplier client", zap.Error(err))
	}

	// Exchange rate client
	rateCfg := supplier.NewExchangeRateConfig()
	if cfg.Rates.BaseURL != "" {
		rateCfg.APIBaseURL = cfg.Rates.BaseURL
	}
	if cfg.Rates.RequestTimeout > 0 {
		rateCfg.RequestTimeout = cfg.Rates.RequestTimeout
	}
	rateSource, err := supplier.NewExchangeRateClient(rateCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize exchange rate client", zap.Error(err))
	}

	// Assemble the sync pipeline
	orchestrator := pipeline.NewOrchestrator(
		catalogSource,
		rateSource,
		providerRepo,
		snapshotReader,
		rateRepo,
		storeGateway,
		locker,
		pipeline.Config{
			Locales:          cfg.Sync.Locales,
			RunTimeout:       cfg.Sync.RunTimeout,
			BaseCurrency:     cfg.Rates.BaseCurrency,
			TargetCurrencies: cfg.Rates.TargetCurrencies,
			RateMaxAge:       cfg.Rates.MaxAge,
		},
		log,
	)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order matters:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. GinMiddleware - Request logging
	// 4. CORS - Handle cross-origin requests
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))

	// Register routes
	router.NewRouter(engine).
		Register(handler.NewSyncHandler(orchestrator, log)).
		Register(handler.NewHealthHandler(db)).
		Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
