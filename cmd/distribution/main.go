package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/client"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/config"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/encoder"
	apierrors "github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/errors"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/handler"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/health"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/metrics"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/server"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/service"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting Revocation Distribution Service")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("gateway_base_url", cfg.Gateway.BaseURL),
		zap.Duration("generation_interval", cfg.Generation.Interval))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize PostgreSQL pool and stores
	ctx := context.Background()
	pool, err := store.NewPool(ctx,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
	)
	if err != nil {
		logger.Fatal("Failed to initialize database pool", zap.Error(err))
	}
	defer pool.Close()

	hashStore := store.NewPostgresHashStore(pool, cfg.Generation.VectorThreshold, cfg.Generation.CoordinateThreshold, logger)
	batchStore := store.NewPostgresBatchStore(pool)
	datasetStore := store.NewPostgresDatasetStore(pool, logger)
	infoStore := store.NewPostgresInfoStore(pool)
	logger.Info("Stores initialized")

	// Initialize lock store (Redis)
	lockStore, err := store.NewRedisLockStore(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize lock store", zap.Error(err))
	}
	defer lockStore.Close()
	logger.Info("Lock store initialized")

	// Initialize upstream gateway client
	gateway := client.NewHTTPGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, cfg.Gateway.MaxRetries, logger)

	// Initialize active slice encoders from configuration
	encoders := make([]encoder.Encoder, 0, 2)
	if cfg.Generation.BloomFilter.Enabled {
		encoders = append(encoders, encoder.NewBloomFilterEncoder(cfg.Generation.BloomFilter.FalsePositiveRate))
	}
	if cfg.Generation.HashList.Enabled {
		encoders = append(encoders, encoder.NewVarHashListEncoder(cfg.Generation.HashList.MinByteCount, cfg.Generation.HashList.FalsePositiveRate))
	}
	logger.Info("Encoders initialized", zap.Int("active", len(encoders)))

	// Initialize services
	ingestion := service.NewIngestionService(gateway, hashStore, batchStore, infoStore, m, logger)
	changeset := service.NewChangesetService(hashStore, datasetStore, logger)
	partitions := service.NewPartitionService(hashStore, datasetStore, encoders, m, logger)
	generator := service.NewGeneratorService(changeset, partitions, hashStore, datasetStore, infoStore, m, logger)
	scheduler := service.NewSchedulerService(ingestion, generator, lockStore,
		cfg.Generation.Interval, cfg.Generation.MinLockHold, cfg.Generation.MaxLockHold, logger)
	lookup := service.NewLookupService(hashStore, logger)
	logger.Info("Services initialized")

	// Initialize handlers and servers
	errorHandler := apierrors.NewHandler(logger)
	distribution := handler.NewDistributionHandler(infoStore, datasetStore, lookup, errorHandler, logger)

	srv := server.NewServer(cfg, distribution, m, logger)
	srv.SetupRoutes()

	healthChecker := health.NewHealthChecker(hashStore, lockStore, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(srv.Start)

	if cfg.Metrics.Enabled {
		group.Go(func() error {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			metricsMux.HandleFunc("/health/live", healthChecker.LivenessHandler)
			metricsMux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	// Start the periodic ingestion + generation task
	scheduler.Start()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	case <-groupCtx.Done():
		logger.Error("Server error", zap.Error(groupCtx.Err()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Revocation distribution service stopped")
}
