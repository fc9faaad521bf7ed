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

	"github.com/leafsii/blog-bff/internal/api"
	"github.com/leafsii/blog-bff/internal/blog"
	"github.com/leafsii/blog-bff/internal/cache"
	"github.com/leafsii/blog-bff/internal/config"
	"github.com/leafsii/blog-bff/internal/db"
	"github.com/leafsii/blog-bff/internal/log"
	"github.com/leafsii/blog-bff/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "blog-bff: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	logger, err := log.NewSugar(log.Options{Env: cfg.Env, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	logger.Infow("Starting blog BFF",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db_type", cfg.Database.Type,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("blog-bff")
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	// Storage: the connection manager connects in the background, so the
	// server comes up even while the database is still unreachable.
	var (
		store   blog.Store
		manager *db.Manager
		health  api.HealthChecker
	)
	switch cfg.Database.Type {
	case "postgres":
		manager = db.NewManager(cfg.Database.Manager(),
			db.WithLogger(logger),
			db.WithMetrics(metricsObj),
		)
		health = manager
		if err := metricsObj.ObserveDBHandles(handleStates(manager)); err != nil {
			logger.Warnw("Failed to register handle state gauge", "error", err)
		}
		store = blog.NewPostgresStore(manager, logger)
	default:
		logger.Warnw("Using in-memory blog store; data is lost on restart")
		store = blog.NewMemoryStore()
	}

	// Setup cache
	svcOpts := []blog.ServiceOption{blog.WithServiceLogger(logger)}
	var cacheInfo api.CacheInfo
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.RedisAddr, logger, metricsObj)
		if err != nil {
			return fmt.Errorf("setup cache: %w", err)
		}
		defer c.Close()
		svcOpts = append(svcOpts, blog.WithCache(c, cfg.Cache.TTL))
		cacheInfo = c
	}
	svc := blog.NewService(store, svcOpts...)

	// Setup API handler and middleware
	handler, err := api.NewHandler(svc, health, cacheInfo, logger)
	if err != nil {
		return err
	}
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, api.RouteOptions{
		CORSOrigins:    cfg.Security.CORSAllowedOrigins,
		RateLimitRPM:   cfg.Security.RateLimitRPM,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        metricsHandler,
	})
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server: %w", err)
		}
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		logger.Infow("Server stopped")
	}

	if manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := manager.Disconnect(ctx); err != nil {
			logger.Errorw("Database disconnect failed", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	return runErr
}

func handleStates(m *db.Manager) func() map[string]string {
	return func() map[string]string {
		out := make(map[string]string, 2)
		for _, s := range m.Status() {
			out[s.Role] = s.State
		}
		return out
	}
}
