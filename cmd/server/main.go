// Package main is the entry point for the opportunity forecast service.
// It scores sales opportunities into win probabilities and fiscal-year revenue
// projections, keeps an append-only audit of every scoring run, and serves
// results over HTTP.
//
// Startup order:
// 1. Load configuration from environment variables (.env supported)
// 2. Initialize logging
// 3. Wire databases, repositories, services and jobs via the DI container
// 4. Start the scheduler and the HTTP server
// 5. Wait for a shutdown signal and stop gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/opportunity-forecast/internal/config"
	"github.com/aristath/opportunity-forecast/internal/di"
	"github.com/aristath/opportunity-forecast/internal/scheduler"
	"github.com/aristath/opportunity-forecast/internal/server"
	"github.com/aristath/opportunity-forecast/pkg/logger"
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
		Str("model_version", cfg.ModelVersion).
		Str("data_dir", cfg.DataDir).
		Msg("Starting opportunity forecast service")

	sched := scheduler.New(log)

	container, jobs, err := di.Wire(cfg, sched, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing flushes WAL checkpoints
	defer container.Close()

	srv := server.New(server.Config{
		Log:             log,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		ModelVersion:    container.Engine.ModelVersion(),
		ForecastHandler: container.ForecastHandler,
		Databases:       container.Databases(),
		AllowedOrigins:  cfg.AllowedOrigins,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	sched.Start()

	// Score the snapshot once at startup so rankings are available immediately
	if jobs.Reforecast != nil {
		go func() {
			if err := sched.RunNow(jobs.Reforecast); err != nil {
				log.Error().Err(err).Msg("Initial re-forecast failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Let running jobs finish before the databases close
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
