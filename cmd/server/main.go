package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	httpSwagger "github.com/swaggo/http-swagger"
	"gopkg.in/natefinch/lumberjack.v2"

	_ "github.com/insider-one/dispatch-service/docs"
	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/handler"
	"github.com/insider-one/dispatch-service/internal/metrics"
	"github.com/insider-one/dispatch-service/internal/middleware"
	"github.com/insider-one/dispatch-service/internal/provider"
	"github.com/insider-one/dispatch-service/internal/repository/postgres"
	"github.com/insider-one/dispatch-service/internal/repository/redis"
	"github.com/insider-one/dispatch-service/internal/resilience"
	"github.com/insider-one/dispatch-service/internal/service"
	"github.com/insider-one/dispatch-service/internal/worker"
)

// @title Dispatch Service API
// @version 1.0
// @description Multi-channel notification dispatch with idempotency, throttling and provider circuit breaking

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logFile := newLogger(cfg.App)
	if logFile != nil {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting dispatch service",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize repositories
	templateRepo := postgres.NewTemplateRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	idempotency := redis.NewIdempotencyStore(redisClient, cfg.Idempotency.TTL)
	rateLimiter := redis.NewRateLimiter(redisClient, cfg.Throttle.IdleExpiry)
	queue := redis.NewQueue(redisClient).WithLease(cfg.Worker.VisibilityTimeout)

	if cfg.Template.SeedFile != "" {
		if _, err := service.SeedTemplates(ctx, cfg.Template.SeedFile, templateRepo, logger); err != nil {
			logger.Error("failed to seed templates", "error", err)
			os.Exit(1)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Resilience
	breakers := resilience.NewRegistry(
		resilience.BreakerConfig{
			FailThreshold:    cfg.Breaker.FailThreshold,
			Window:           cfg.Breaker.Window,
			Cooldown:         cfg.Breaker.Cooldown,
			HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		},
		resilience.WithLogger(logger),
		resilience.WithTransitionHook(service.BreakerTransitions(m)),
	)
	executor := resilience.NewExecutor(breakers, resilience.RetryConfig{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		AttemptTimeout:  cfg.Retry.AttemptTimeout,
	}, logger)

	// Providers
	drivers, err := provider.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to configure providers", "error", err)
		os.Exit(1)
	}
	logger.Info("providers configured", "providers", drivers.Providers())

	// Initialize services
	overrides, err := cfg.Policy.TenantOverrides()
	if err != nil {
		logger.Error("failed to load tenant policy", "error", err)
		os.Exit(1)
	}
	policy := service.NewChannelPolicy(overrides)
	contentService := service.NewContentService(templateRepo, cfg.Template.DefaultLocale, logger)

	dispatcher := service.NewDispatcher(
		policy,
		idempotency,
		rateLimiter,
		contentService,
		drivers,
		executor,
		messageRepo,
		m,
		service.DispatcherConfig{
			Limits: service.Limits{
				TenantPerMinute:    cfg.Throttle.TenantPerMinute,
				RecipientPerMinute: cfg.Throttle.RecipientPerMinute,
			},
			Timeout:        cfg.Dispatch.Timeout,
			HistoryTimeout: cfg.Dispatch.HistoryTimeout,
		},
		logger,
	)

	// Initialize WebSocket hub
	wsHub := handler.NewWebSocketHub(logger)
	go wsHub.Run(ctx)
	dispatcher.SetEventBroadcast(wsHub.BroadcastEvent)

	// Initialize worker processor
	processor := worker.NewProcessor(queue, dispatcher, logger, cfg.Worker)

	sampler, err := service.NewGaugeSampler(queue, breakers, m, logger, cfg.Metrics.SampleInterval)
	if err != nil {
		logger.Error("failed to create gauge sampler", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	notificationHandler := handler.NewNotificationHandler(dispatcher, queue, m, logger)
	providerHandler := handler.NewProviderHandler(drivers, breakers)
	healthHandler := handler.NewHealthHandler()
	healthHandler.AddChecker("postgres", db)
	healthHandler.AddChecker("redis", redisClient)
	metricsHandler := handler.NewMetricsHandler(registry, m, queue, breakers)
	wsHandler := handler.NewWebSocketHandler(wsHub)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.Tenant)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger, m))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoints
	r.Handle("/metrics", metricsHandler.Handler())
	r.Get("/metrics/realtime", metricsHandler.RealtimeMetrics)

	// WebSocket endpoint
	r.Get("/ws", wsHandler.HandleWebSocket)

	// API docs
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", notificationHandler.RegisterRoutes)
		r.Route("/providers", providerHandler.RegisterRoutes)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start worker processor
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start processor", "error", err)
		os.Exit(1)
	}

	// Start gauge sampling
	if err := sampler.Start(ctx); err != nil {
		logger.Error("failed to start gauge sampler", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	sampler.Stop()

	// Stop processor (waits for in-flight work)
	processor.Stop()

	// Cancel context
	cancel()

	logger.Info("server stopped")
}

// newLogger builds the JSON logger. When a log file is configured the output
// is also written to a rotating file, which the caller must close.
func newLogger(cfg config.AppConfig) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer
}
