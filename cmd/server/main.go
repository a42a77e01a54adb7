// Package main is the entry point for the qpubinder HTTP service.
// The service keeps a versioned catalog of QPU descriptors and binds
// submitted circuits to the best-suited QPU.
//
// Startup sequence:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container
// 4. Loads the first catalog snapshot
// 5. Starts the scheduler and the HTTP server
// 6. Waits for a shutdown signal and shuts down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/qpubinder/internal/config"
	"github.com/aristath/qpubinder/internal/di"
	"github.com/aristath/qpubinder/internal/server"
	"github.com/aristath/qpubinder/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("catalog_source", cfg.Catalog.Source).
		Msg("Starting qpubinder")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	// A failed first load is not fatal: binding requests get 503 until a
	// scheduled or manual refresh succeeds
	if snap, err := container.Refresher.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Initial catalog load failed")
	} else {
		log.Info().
			Uint64("version", snap.Version).
			Int("qpus", len(snap.QPUs)).
			Msg("Initial catalog loaded")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Store:     container.Store,
		Scheduler: container.Scheduler,
		Databases: container.Databases(),
		Metrics:   container.Metrics.Handler(),
		Modules: []server.RouteRegistrar{
			container.BindingHandler,
			container.CatalogHandler,
		},
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	// Stop scheduler; waits for a running refresh to finish
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
