package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"furniture-store/internal/cart"
	"furniture-store/internal/catalog"
	"furniture-store/internal/checkout"
	"furniture-store/internal/config"
	"furniture-store/internal/database"
	"furniture-store/internal/events"
	"furniture-store/internal/handler"
	"furniture-store/internal/payment"
	"furniture-store/internal/pricing"
	"furniture-store/internal/reconcile"
	"furniture-store/internal/repository"
	"furniture-store/internal/router"
	"furniture-store/internal/service"
)

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
	logger.Info().Msg("starting furniture-store API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database schema and connection pool
	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.ConnectionString(), logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(pool, logger)
	unreconciledRepo := repository.NewUnreconciledRepository(pool, logger)

	// Event bus
	publisher := newPublisher(cfg.Kafka, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	// Cart persistence
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	persister := cart.NewRedisPersister(redisClient, cfg.Redis.CartTTL, logger)
	cartService := cart.NewService(persister, logger)

	// Initialize catalog loader with S3 and local fallback
	fileLoader := catalog.NewFileLoader(logger)
	var s3Loader catalog.Loader

	if cfg.S3.Enabled {
		s3Loader, err = catalog.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		}
	} else {
		logger.Info().Msg("using local file system for price-book files (S3 disabled)")
	}

	loader := catalog.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled && s3Loader != nil, logger)

	cat, err := catalog.New(ctx, cfg.Catalog.Files, loader, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	// Initialize services
	pricer := pricing.NewCalculator(cfg.Pricing.FreeShippingThreshold, cfg.Pricing.ShippingFee)
	orderService := service.NewOrderService(orderRepo, publisher, logger)
	reporter := reconcile.NewReporter(unreconciledRepo, publisher, logger)
	gateway := payment.NewStripeGateway(payment.StripeOptions{
		SecretKey: cfg.Stripe.SecretKey,
		APIURL:    cfg.Stripe.APIURL,
	}, logger)

	orchestrator := checkout.NewOrchestrator(
		cartService,
		gateway,
		orderService,
		reporter,
		pricer,
		checkout.Config{
			Currency:     cfg.Pricing.Currency,
			OrderTimeout: cfg.Checkout.RequestTimeout,
		},
		logger,
	)

	// Initialize HTTP handlers
	cartHandler := handler.NewCartHandler(cartService, cat, pricer, logger)
	checkoutHandler := handler.NewCheckoutHandler(orchestrator, logger)
	orderHandler := handler.NewOrderHandler(orderService, cfg.Checkout.HistoryPageSize, logger)

	// Initialize router
	mux := router.New(cartHandler, checkoutHandler, orderHandler, cfg.Auth.JWTSecret, logger)

	// Background workers stop when ctx is cancelled
	workers, workerCtx := errgroup.WithContext(ctx)

	workers.Go(func() error {
		return persister.Watch(workerCtx, func(sessionID string) {
			if err := cartService.Reload(workerCtx, sessionID); err != nil {
				logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to reload cart")
			}
		})
	})

	if cfg.Kafka.Enabled {
		reader := events.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.FulfillmentTopic, cfg.Kafka.GroupID)
		defer reader.Close()

		consumer := events.NewFulfillmentConsumer(reader, orderService, logger)
		workers.Go(func() error {
			return consumer.Run(workerCtx)
		})
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server.RegisterOnShutdown(cartHandler.Close)

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
		cancel()
		return fmt.Errorf("server error: %w", err)

	case <-workerCtx.Done():
		cancel()
		if err := workers.Wait(); err != nil {
			logger.Error().Err(err).Msg("background worker failed")
		}
		_ = shutdownServer(server, logger)
		return fmt.Errorf("background worker stopped unexpectedly")

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		if err := shutdownServer(server, logger); err != nil {
			return err
		}

		cancel()
		if err := workers.Wait(); err != nil {
			logger.Error().Err(err).Msg("background worker failed during shutdown")
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

func newPublisher(cfg config.KafkaConfig, logger zerolog.Logger) events.Publisher {
	if !cfg.Enabled {
		logger.Info().Msg("kafka disabled, domain events will only be logged")
		return events.NewNopPublisher(logger)
	}

	writer := events.NewKafkaWriter(cfg.Brokers...)
	return events.NewKafkaPublisher(writer, events.Topics{
		OrderPlaced:  cfg.OrderTopic,
		Unreconciled: cfg.UnreconciledTopic,
	}, logger)
}

func shutdownServer(server *http.Server, logger zerolog.Logger) error {
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
	return nil
}
