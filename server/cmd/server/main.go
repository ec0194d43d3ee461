// Command server runs the ESXi fleet inventory server.
//
// # Usage
//
//	server --database postgres://localhost/esxifleet --config /etc/esxifleet/collector.yaml
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (ESXIFLEET_*)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilot-net/esxi-fleet/collector"
	"github.com/pilot-net/esxi-fleet/db/migrate"
	"github.com/pilot-net/esxi-fleet/server/internal/api"
	"github.com/pilot-net/esxi-fleet/server/internal/cache"
	"github.com/pilot-net/esxi-fleet/server/internal/metrics"
	"github.com/pilot-net/esxi-fleet/server/internal/service"
	"github.com/pilot-net/esxi-fleet/server/internal/store"
)

func main() {
	var (
		port            = flag.Int("port", 8080, "HTTP server port")
		dbURL           = flag.String("database", "", "Database URL (postgres://...)")
		redisURL        = flag.String("redis", "", "Redis URL for report caching (optional)")
		configFile      = flag.String("config", "", "Path to collector config file")
		refreshInterval = flag.Duration("refresh-interval", 0, "Periodic refresh interval (0 disables)")
		debug           = flag.Bool("debug", false, "Enable debug logging")
		version         = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("esxifleet-server v0.1.0")
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Get database URL from env if not provided
	if *dbURL == "" {
		*dbURL = os.Getenv("ESXIFLEET_DATABASE_URL")
	}
	if *dbURL == "" {
		*dbURL = "postgres://localhost:5432/esxifleet?sslmode=disable"
	}
	if *redisURL == "" {
		*redisURL = os.Getenv("ESXIFLEET_REDIS_URL")
	}

	// Connect to database
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.NewStoreFromURL(ctx, *dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Apply schema migrations
	if err := migrate.Run(ctx, db.Pool(), logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Report cache is optional
	var reportCache service.ReportCache
	if *redisURL != "" {
		c, err := cache.New(*redisURL, time.Hour, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		reportCache = c
		logger.Info("report cache enabled")
	}

	// Build the collector the refresh endpoint drives
	cfg := collector.DefaultConfig()
	if *configFile != "" {
		cfg, err = collector.LoadConfig(*configFile)
		if err != nil {
			logger.Error("failed to load collector config", "error", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnvOverrides()

	runner, err := collector.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create collector", "error", err)
		os.Exit(1)
	}

	// Create service and API
	svc := service.NewService(db, reportCache, runner, logger)
	apiServer := api.NewServer(svc, metrics.NewCollector(db), logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if *refreshInterval > 0 {
		go svc.RunPeriodic(runCtx, *refreshInterval)
		logger.Info("periodic refresh enabled", "interval", *refreshInterval)
	}

	go func() {
		logger.Info("starting server", "port", *port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
