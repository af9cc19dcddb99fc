// Package main is the entry point for the CropSense API server.
//
// It loads configuration, opens the database pool, loads the fertilizer
// model artifact, wires the weather cache over the OpenWeather client, builds
// the HTTP server with the core chassis (middleware, routing, health checks),
// and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cropsense/internal/advisor"
	"cropsense/internal/api/handlers"
	"cropsense/internal/config"
	"cropsense/internal/core"
	"cropsense/internal/db"
	"cropsense/internal/external"
	"cropsense/internal/types"
	"cropsense/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("cropsense API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// Build the server chassis first so resource closers can be registered
	// on it as dependencies come up.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	metrics := core.NewPrometheusCollector()
	srv.Metrics = metrics
	srv.MetricsHandler = metrics.Handler()

	// Database pool. Startup fails fast if the database is unreachable.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	pool, err := db.NewPool(startupCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	srv.OnShutdown(pool.Close)

	// Fertilizer model. A missing or malformed artifact is fatal: the service
	// cannot produce advisories without it.
	model, err := advisor.LoadModel(cfg.Model.ArtifactPath)
	if err != nil {
		return fmt.Errorf("loading model artifact %q: %w", cfg.Model.ArtifactPath, err)
	}
	logger.Info("model artifact loaded",
		"path", cfg.Model.ArtifactPath,
		"model_version", model.Version(),
	)

	// Weather provider behind the TTL cache.
	clock := types.RealClock{}
	weatherClient := external.NewOpenWeatherClient(cfg.Weather, clock, external.WithMetrics(metrics))
	weatherCache := weather.NewCache(weatherClient, cfg.Weather.CacheTTL, clock, logger, metrics)

	// Advisory pipeline and persistence.
	advisoryService := advisor.NewService(weatherCache, model, nil, clock, logger, metrics)
	store := db.NewStore(pool)

	advisoryHandler := handlers.NewAdvisoryHandler(advisoryService, store, srv.Validator, logger, clock)
	weatherHandler := handlers.NewWeatherHandler(weatherCache, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		advisoryHandler.RegisterRoutes,
		weatherHandler.RegisterRoutes,
	)
	srv.HealthProbes = append(srv.HealthProbes,
		db.NewProbe(pool),
		model,
		weatherClient,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool, etc.).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
