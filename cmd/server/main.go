/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the asset allocation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Configure structured logging (tint for terminals)
  3. Initialize SQLite store
  4. Wire catalog, engine, gate, and monitor
  5. Start the expiry scheduler
  6. Start server with graceful shutdown

CONFIGURATION:
  Flags take precedence over environment variables:
  -port / PORT                 HTTP server port (default: 8080)
  -db / DATABASE_PATH          SQLite database path (default: assets.db)
                               Use ":memory:" for in-memory database
  -sweep-interval / SWEEP_INTERVAL  Expiry check interval (default: 1h)
  -horizon / ALERT_HORIZON_DAYS     Alert lookahead in days (default: 30)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiry scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/assets.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Sweep every ten minutes
  ./server -sweep-interval=10m

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Expiry scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/api"
	"github.com/warp/asset-engine/store/sqlite"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	// .env is optional; missing file is not an error.
	_ = godotenv.Load()

	// Flags, with env fallbacks
	port := flag.Int("port", envIntOr("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envOr("DATABASE_PATH", "assets.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep-interval", envDurationOr("SWEEP_INTERVAL", time.Hour), "expiry check interval")
	horizonDays := flag.Int("horizon", envIntOr("ALERT_HORIZON_DAYS", 30), "alert lookahead in days")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire domain components
	notifier := api.NewSlogNotifier(logger)
	catalog := allocation.NewCatalog(store)
	engine := allocation.NewEngine(store, notifier)
	gate := allocation.NewGate(store, engine)
	monitor := allocation.NewMonitor(store)

	handler := api.NewHandler(catalog, engine, gate, monitor, logger)
	handler.DefaultHorizonDays = *horizonDays

	// Start the background expiry scheduler
	scheduler := api.NewExpiryScheduler(engine, monitor, logger)
	scheduler.CheckInterval = *sweepInterval
	scheduler.HorizonDays = *horizonDays
	scheduler.Start()
	defer scheduler.Stop()

	// Create router and server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
