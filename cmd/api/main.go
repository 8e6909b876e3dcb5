// Command api is the Vitrin notifications API server. It serves the in-app
// notification feed, runs the hourly threshold scans, listens for
// promotion_created events, and hosts the maintenance tickers.
//
// Usage:
//
//	vitrin-api
//	API_PORT=8080 vitrin-api

// @title Vitrin Notifications API
// @version 1.0.0
// @description Marketplace notification service: hourly scans for ending promotions and subscriptions, real-time promotion announcements, and the per-user in-app notification feed.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Vitrin
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/vitrin-app/vitrin-backend/internal/api"
	"github.com/vitrin-app/vitrin-backend/internal/cache"
	"github.com/vitrin-app/vitrin-backend/internal/config"
	"github.com/vitrin-app/vitrin-backend/internal/db"
	"github.com/vitrin-app/vitrin-backend/internal/listener"
	"github.com/vitrin-app/vitrin-backend/internal/maintenance"
	"github.com/vitrin-app/vitrin-backend/internal/scan"

	_ "github.com/vitrin-app/vitrin-backend/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Scan dependencies are shared by the scheduler and the admin trigger
	deps := scan.NewDeps(pool.Pool)

	// Start hourly threshold scans
	if cfg.ScanEnabled {
		go scan.StartScheduler(ctx, deps, logger)
	} else {
		logger.Info("Scan scheduler disabled (SCAN_ENABLED=false)")
	}

	// Start LISTEN/NOTIFY consumer for real-time promotion announcements
	if cfg.ListenerEnabled {
		go listener.Start(ctx, cfg.DatabaseURL, pool.Pool, logger)
	} else {
		logger.Info("Promotion listener disabled (LISTENER_ENABLED=false)")
	}

	// Start maintenance tickers (cleanup, stale-promotion sweep)
	go maintenance.Start(ctx, pool.Pool, maintenance.DefaultConfig(), logger)

	// Create router
	router := api.NewRouter(pool.Pool, appCache, cfg, deps, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Vitrin Notifications API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
