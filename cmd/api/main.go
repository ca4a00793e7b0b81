package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storecore/internal/config"
	"storecore/internal/database"
	"storecore/internal/handler"
	"storecore/internal/job"
	"storecore/internal/pricing"
	"storecore/internal/promo"
	"storecore/internal/repository"
	"storecore/internal/router"
	"storecore/internal/service"
	"storecore/internal/stock"

	"github.com/rs/zerolog"
)

// maintenanceInterval is how often the cart sweep and webhook ledger purge
// jobs are scheduled.
const maintenanceInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storecore API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	unitRepo := repository.NewUnitRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	tierRepo := repository.NewTierRepository(pool, logger)
	cartRepo := repository.NewCartRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	webhookRepo := repository.NewWebhookEventRepository(pool, logger)

	// Initialize job dispatch
	jobStore := job.NewStore(pool, logger)
	dispatcher := job.NewDispatcher(jobStore, cfg.Jobs.MaxAttempts, logger)

	// Initialize stock ledger
	ledger := stock.NewLedger(pool, dispatcher, cfg.Stock.LowStockDefault, logger)

	// Initialize promo code validator with S3 and local fallback
	fileLoader := promo.NewFileLoader(logger)
	promoLoader := fileLoader

	if cfg.S3.Enabled {
		s3Loader, err := promo.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			promoLoader = promo.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, true, logger)
		}
	} else {
		logger.Info().Msg("using local file system for promo code files (S3 disabled)")
	}

	validator, err := promo.NewValidator(ctx, promo.DefaultValidatorConfig(), promoLoader, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize promo validator: %w", err)
	}
	defer validator.Close()

	// Initialize services
	engine := pricing.NewEngine()
	cartService := service.NewCartService(cartRepo, unitRepo, productRepo, tierRepo, engine, validator, cfg.Checkout, logger)
	orderService := service.NewOrderService(orderRepo, cartRepo, unitRepo, productRepo, tierRepo, ledger, engine, dispatcher, cfg.Checkout, logger)
	webhookService := service.NewWebhookService(webhookRepo, orderService, cfg.Webhook, logger)

	// Initialize background workers
	jobHandler := service.NewJobHandler(orderService, cartService, webhookService, logger)
	workerCfg := job.DefaultWorkerConfig()
	workerCfg.Count = cfg.Jobs.WorkerCount
	workerCfg.PollInterval = time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second
	workerCfg.LockTimeout = time.Duration(cfg.Jobs.LockTimeoutSeconds) * time.Second
	workerCfg.RetryFloor = time.Duration(cfg.Jobs.RetryFloorSeconds) * time.Second
	workerCfg.RetryCap = time.Duration(cfg.Jobs.RetryCapSeconds) * time.Second
	worker := job.NewWorker(jobStore, jobHandler, workerCfg, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduleMaintenance(ctx, dispatcher, logger)
	}()

	// Initialize HTTP handlers
	productHandler := handler.NewProductHandler(productRepo, logger)
	cartHandler := handler.NewCartHandler(cartService, logger)
	orderHandler := handler.NewOrderHandler(orderService, logger)
	stockHandler := handler.NewStockHandler(ledger, logger)
	webhookHandler := handler.NewWebhookHandler(webhookService, logger)

	// Initialize router
	mux := router.New(productHandler, cartHandler, orderHandler, stockHandler, webhookHandler, cfg.Auth.APIKey, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		// Stop workers and wait for in-flight jobs to settle
		cancel()
		wg.Wait()

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// scheduleMaintenance periodically enqueues the recurring housekeeping
// jobs. Sweeps and purges tolerate running twice, so a missed or doubled
// tick is harmless.
func scheduleMaintenance(ctx context.Context, dispatcher *job.Dispatcher, logger zerolog.Logger) {
	// Kick off one round at startup so a freshly booted instance catches up.
	enqueueMaintenance(ctx, dispatcher, logger)

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueueMaintenance(ctx, dispatcher, logger)
		}
	}
}

func enqueueMaintenance(ctx context.Context, dispatcher *job.Dispatcher, logger zerolog.Logger) {
	for _, p := range []job.Payload{job.CartSweep{}, job.WebhookLedgerPurge{}} {
		if err := dispatcher.Enqueue(ctx, p); err != nil {
			// The next tick retries.
			logger.Warn().Err(err).Str("job_type", string(p.Type())).Msg("failed to schedule maintenance job")
		}
	}
}
