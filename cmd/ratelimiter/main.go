package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratelimiter/internal/api"
	"ratelimiter/internal/config"
	"ratelimiter/internal/logger"
	"ratelimiter/internal/models"
	"ratelimiter/internal/observability"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	exampleConfig = flag.String("example-config", "", "Write an example configuration file to this path and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}
	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *exampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	buildInfo := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	limiter, err := initializeLimiter(cfg, log)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			slog.Error("Failed to close rate limiter", "error", err)
		}
	}()

	// Violation log; nil when disabled
	violations, err := initializeViolations(cfg)
	if err != nil {
		slog.Error("Failed to initialize violation log", "error", err)
		os.Exit(1)
	}

	handlerOpts := []api.HandlerOption{api.WithVersion(buildInfo)}
	var recorder *storage.Recorder
	if violations != nil {
		defer violations.Close()
		recorder = storage.NewRecorder(violations, cfg.Storage.BufferSize, log)
		// Runs before the store is closed so queued violations are flushed.
		defer recorder.Close()
		handlerOpts = append(handlerOpts, api.WithViolations(violations, recorder))
	}

	handlers := api.NewHandlers(limiter, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.RateLimit.Enabled {
		mw, err := rateLimitMiddleware(cfg.RateLimit, limiter, handlers)
		if err != nil {
			slog.Error("Failed to build rate limit middleware", "error", err)
			os.Exit(1)
		}
		routeOpts = append(routeOpts, api.WithRateLimiter(mw))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting HTTP server",
			"addr", server.Addr,
			"store_available", limiter.StoreAvailable(),
			"rate_limit_enabled", cfg.RateLimit.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if recorder != nil {
		stats := recorder.Stats()
		slog.Info("Violation log summary",
			"written", stats.Written,
			"dropped", stats.Dropped,
			"failed", stats.Failed)
	}

	slog.Info("Server shutdown complete")
}

// initializeLimiter wires the Redis store, the local fallback and decision
// metrics into a Limiter.
func initializeLimiter(cfg *models.Config, log *slog.Logger) (*ratelimit.Limiter, error) {
	policies, err := ratelimit.PoliciesFromConfig(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	redisStore := ratelimit.NewRedisStore(ratelimit.RedisOptionsFromConfig(cfg.Redis), log)
	var store ratelimit.Store = redisStore
	opts := []ratelimit.Option{
		ratelimit.WithLogger(log),
		ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix),
		ratelimit.WithFallback(ratelimit.NewMemoryLimiter(cfg.RateLimit.FallbackSweep, log)),
	}

	if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
		instrumented, err := observability.NewInstrumentedStore(redisStore)
		if err != nil {
			redisStore.Close()
			return nil, fmt.Errorf("instrument store: %w", err)
		}
		store = instrumented

		decisions, err := observability.NewDecisionMetrics()
		if err != nil {
			instrumented.Close()
			return nil, fmt.Errorf("decision metrics: %w", err)
		}
		opts = append(opts, ratelimit.WithObserver(decisions))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		slog.Warn("Rate limit store not reachable at startup, serving from local fallback",
			"addr", cfg.Redis.Addr, "error", err)
	}

	return ratelimit.New(store, policies, opts...), nil
}

// initializeViolations opens the configured violation log. It returns nil
// when the log is disabled.
func initializeViolations(cfg *models.Config) (storage.ViolationStore, error) {
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil || store == nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled && !cfg.Observability.Tracing.Enabled {
		return store, nil
	}
	instrumented, err := observability.NewInstrumentedViolationStore(store, cfg.Storage.Type)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("instrument violation log: %w", err)
	}
	return instrumented, nil
}

func rateLimitMiddleware(cfg models.RateLimitConfig, limiter *ratelimit.Limiter, handlers *api.Handlers) (func(http.Handler) http.Handler, error) {
	classifier, err := ratelimit.ClassifierFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	// The check endpoint accounts for its callers' requests, not its own.
	skip := append([]string{api.CheckPath}, cfg.SkipPaths...)

	return ratelimit.Middleware(limiter,
		ratelimit.WithIdentifier(ratelimit.DefaultIdentifier(cfg.TrustProxyHeaders)),
		ratelimit.WithClassifier(classifier),
		ratelimit.WithSkipper(ratelimit.PathSkipper(skip)),
		ratelimit.WithDeniedHook(handlers.RecordDenied),
	), nil
}
