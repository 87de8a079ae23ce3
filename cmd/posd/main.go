// POS pricing service - carts, order-level discounts and taxes, and
// server-side price previews backed by the Square Orders API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"square-pos/internal/cart"
	"square-pos/internal/config"
	"square-pos/internal/handler"
	"square-pos/internal/middleware"
	"square-pos/internal/negotiation"
	"square-pos/internal/session"
	"square-pos/internal/square"
	"square-pos/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("merchant_id", cfg.MerchantID),
		slog.String("environment", cfg.Environment),
		slog.String("location_id", cfg.Merchant.LocationID),
		slog.String("currency", cfg.Merchant.Currency),
		slog.String("square_base_url", cfg.Square.BaseURL),
	)

	// Outbound Square client
	rt, err := transport.New(transport.Options{
		Timeout:      cfg.Square.Timeout,
		Fingerprint:  cfg.Square.Fingerprint,
		PingInterval: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}
	client := square.NewClient(square.ClientConfig{
		BaseURL:         cfg.Square.BaseURL,
		APIVersion:      cfg.Square.APIVersion,
		Timeout:         cfg.Square.Timeout,
		Transport:       rt,
		RateLimit:       cfg.Square.RateLimit,
		Burst:           cfg.Square.Burst,
		BreakerFailures: cfg.Square.BreakerFailures,
		BreakerCooldown: cfg.Square.BreakerCooldown,
	}, logger)
	builder := square.NewBuilder(cfg.Merchant.LocationID, cfg.Merchant.Currency, logger)
	orders := square.NewAdapter(client, builder)

	// Cart snapshots
	snaps, closeSnaps, err := createSnapshotter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}
	defer closeSnaps()

	sessions := session.NewRegistry(orders, snaps, cfg.PreviewTimeout, logger)
	defer sessions.Close()

	h := handler.New(sessions, orders, handler.Config{
		OrderOptions:     cfg.OrderOptions(),
		MinClientVersion: cfg.MinClientVersion,
	}, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → cors → client gate → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.CORS(cfg.AllowedOrigins),
		negotiation.Middleware(cfg.MinClientVersion, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createSnapshotter returns the Redis snapshot store when REDIS_ADDR is set,
// otherwise an in-process one.
func createSnapshotter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cart.Snapshotter, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("cart snapshots kept in memory")
		return cart.NewMemorySnapshotter(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("cart snapshots stored in redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Duration("ttl", cfg.SnapshotTTL),
	)
	return cart.NewRedisSnapshotter(rdb, cfg.SnapshotTTL), func() { rdb.Close() }, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	var logger *slog.Logger
	if cfg.Environment == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	return logger
}
