package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/proctor/internal/api"
	"github.com/saturnino-fabrica-de-software/proctor/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/config"
	"github.com/saturnino-fabrica-de-software/proctor/internal/database"
	"github.com/saturnino-fabrica-de-software/proctor/internal/dedup"
	"github.com/saturnino-fabrica-de-software/proctor/internal/face"
	"github.com/saturnino-fabrica-de-software/proctor/internal/proctor"
	"github.com/saturnino-fabrica-de-software/proctor/internal/refstore"
	"github.com/saturnino-fabrica-de-software/proctor/internal/repository"
	"github.com/saturnino-fabrica-de-software/proctor/internal/service"
	"github.com/saturnino-fabrica-de-software/proctor/internal/webhook"
	"github.com/saturnino-fabrica-de-software/proctor/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Proctor API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("detector", cfg.DetectorProvider),
		slog.String("embedding", cfg.EmbeddingProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if err := database.MigrateUp(cfg.DatabaseURL, "proctor"); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	auditLogger := audit.NewSlogLogger(logger)

	// Model backends
	backends, err := face.NewBackends(ctx, cfg, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to create model backends: %w", err)
	}

	thresholds := proctor.DefaultThresholds()
	thresholds.FaceConfidence = cfg.FaceConfidence
	thresholds.DeviceConfidence = cfg.DeviceConfidence
	pipeline := proctor.NewPipeline(backends.Detector, backends.Landmarks,
		proctor.WithThresholds(thresholds),
		proctor.WithLogger(logger),
	)

	refs, err := refstore.NewFileStore(cfg.ReferenceImagesDir)
	if err != nil {
		return fmt.Errorf("failed to open reference store: %w", err)
	}

	// Duplicate guard: redis when configured, in-process otherwise
	var guard dedup.Guard = dedup.NewMemoryGuard()
	if cfg.RedisURL != "" {
		redisGuard, err := dedup.NewRedisGuardFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = redisGuard.Close() }()
		guard = redisGuard
	}

	// Event fan-out
	hub := ws.NewHub()

	webhookCfg := webhook.DefaultConfig()
	webhookCfg.URL = cfg.WebhookURL
	webhookCfg.Secret = cfg.WebhookSecret
	webhookService := webhook.NewService(webhookCfg, logger)

	violationOpts := []service.ViolationOption{
		service.WithDuplicateWindow(cfg.DuplicateWindow),
		service.WithGuard(guard),
		service.WithBroadcaster(hub),
		service.WithViolationAudit(auditLogger),
		service.WithViolationLogger(logger),
	}
	var webhookWorker *webhook.Worker
	if webhookService.Enabled() {
		violationOpts = append(violationOpts, service.WithNotifier(webhookService))
		webhookWorker = webhook.NewWorker(webhookService, logger)
	}

	violations := service.NewViolationService(
		repository.NewViolationRepository(pool),
		pipeline,
		violationOpts...,
	)
	verifier := service.NewVerificationService(refs, backends.Locator, backends.Embedder,
		service.WithVerificationThreshold(cfg.VerificationThreshold),
		service.WithVerificationAudit(auditLogger),
		service.WithVerificationLogger(logger),
	)

	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
	}
	for name, check := range backends.HealthChecks() {
		checks[name] = check
	}

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Violations:    violations,
		Verifier:      verifier,
		References:    refs,
		Hub:           hub,
		WebhookWorker: webhookWorker,
		HealthChecks:  checks,
		APIKey:        cfg.APIKey,
		RateLimitMax:  cfg.RateLimitMax,
	})
	router.Setup()

	if cfg.APIKey == "" {
		logger.Warn("API_KEY not set, proctoring routes are unauthenticated")
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}
