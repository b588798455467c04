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
	"rpcguard/internal/api"
	"rpcguard/internal/config"
	"rpcguard/internal/guard"
	"rpcguard/internal/logger"
	"rpcguard/internal/models"
	"rpcguard/internal/observability"
	"rpcguard/internal/ratelimit"
	"rpcguard/internal/storage"
	"rpcguard/internal/upstream"
	"rpcguard/internal/version"
	"syscall"
	"time"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	envFile      = flag.String("env-file", "", "Optional .env file exported before the configuration is loaded")
	writeExample = flag.String("write-example", "", "Write an example configuration to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *writeExample)
		return
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("Failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, ver, log); err != nil {
		log.Error("rpcguard stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until SIGINT or SIGTERM.
func run(cfg *models.Config, ver version.Info, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	store, err := initializeStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	// Initialize the upstream executor and the rate limiter
	exec, err := upstream.New(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("failed to initialize upstream: %w", err)
	}

	limiter, err := ratelimit.New(cfg.Limiter, exec, ratelimit.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer limiter.Close()

	service := guard.NewService(limiter, store, log)
	restoreCtx, cancelRestore := context.WithTimeout(ctx, 30*time.Second)
	_, _, err = service.Restore(restoreCtx)
	cancelRestore()
	if err != nil {
		return fmt.Errorf("failed to restore access lists: %w", err)
	}

	if err := limiter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start rate limiter: %w", err)
	}

	if cfg.Metrics.Enabled {
		limiterMetrics, err := observability.NewLimiterMetrics(otelProvider.MeterProvider(), limiter)
		if err != nil {
			return fmt.Errorf("failed to register limiter metrics: %w", err)
		}
		defer limiterMetrics.Close()
	}

	handlers := api.NewHandlers(service, cfg.Security)
	defer handlers.Close()

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	errCh := make(chan error, 2)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"tls", cfg.Server.TLSEnabled,
			"storage", cfg.Storage.Type,
			"upstream", cfg.Upstream.Mode)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case runErr = <-errCh:
		log.Error("Server failed", "error", runErr)
	}

	// Create a deadline to wait for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
	return runErr
}

// initializeStorage creates the configured backend and, when metrics are
// enabled, wraps it with tracing and operation metrics.
func initializeStorage(cfg *models.Config) (storage.Storage, error) {
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled && !cfg.Observability.Tracing.Enabled {
		return store, nil
	}

	instrumented, err := observability.NewInstrumentedStorage(store, cfg.Storage.Type)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to instrument storage: %w", err)
	}
	return instrumented, nil
}
