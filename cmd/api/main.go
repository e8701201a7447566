// Command api is the Carebeat API server. It also runs the care-event
// schedulers, the wellbeing listener and maintenance tickers.
//
// Usage:
//
//	carebeat-api
//	API_PORT=8080 carebeat-api

// @title Carebeat API
// @version 1.0.0
// @description Scheduled care-event dispatcher: medicine, reminder, wellbeing, inactivity and refill push notifications for elders and their families.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Carebeat
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/carebeat/internal/api"
	"github.com/albapepper/carebeat/internal/api/handler"
	"github.com/albapepper/carebeat/internal/app"
	"github.com/albapepper/carebeat/internal/config"
	"github.com/albapepper/carebeat/internal/db"
	"github.com/albapepper/carebeat/internal/listener"
	"github.com/albapepper/carebeat/internal/store"

	_ "github.com/albapepper/carebeat/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	a, err := app.Build(ctx, cfg, store.New(pool.Pool), logger)
	if err != nil {
		logger.Error("Failed to build components", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Schedulers tick only while push is configured; engines still run so
	// /health/schedulers reports them.
	a.Schedulers.Start(ctx)
	logger.Info("Schedulers started",
		"push_enabled", a.Dispatcher.Enabled(),
		"timezone", cfg.SchedulerLocation.String())

	// LISTEN/NOTIFY consumer for wellbeing writes
	go listener.Start(ctx, cfg.DatabaseURL, a.Escalation, logger)

	go a.Maintenance.Start(ctx)

	router := api.NewRouter(handler.New(a.HandlerDeps(logger)), cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Carebeat API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	a.Schedulers.Stop()
	logger.Info("Server stopped")
}
