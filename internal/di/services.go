package di

import (
	"context"
	"fmt"

	"github.com/aristath/opportunity-forecast/internal/config"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	forecasthandlers "github.com/aristath/opportunity-forecast/internal/modules/forecast/handlers"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/aristath/opportunity-forecast/internal/reliability"
	"github.com/aristath/opportunity-forecast/internal/snapshot"
	"github.com/rs/zerolog"
)

// InitializeServices builds the engine, the batch service and their collaborators
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.FeatureStore == nil || container.ForecastRepo == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	tables, err := reference.LoadOrDefault(cfg.ReferenceTablesPath)
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}
	container.Tables = tables

	engine, err := forecast.NewEngine(tables, forecast.WithModelVersion(cfg.ModelVersion))
	if err != nil {
		return fmt.Errorf("failed to create forecast engine: %w", err)
	}
	container.Engine = engine

	container.WorkerPool = workers.NewWorkerPool(cfg.Workers)
	container.ForecastService = forecast.NewService(
		engine,
		container.WorkerPool,
		container.FeatureStore,
		container.ForecastRepo,
		log,
	)
	container.ForecastHandler = forecasthandlers.NewHandler(
		container.ForecastService,
		container.ForecastRepo,
		container.FeatureStore,
		tables,
		engine.ModelVersion(),
		log,
	)

	if cfg.SnapshotPath != "" {
		container.SnapshotSource = snapshot.NewFileSource(cfg.SnapshotPath, log)
	}

	if cfg.Archive != nil && cfg.Archive.Enabled {
		client, err := reliability.NewS3Client(context.Background(), cfg.Archive.ToS3Config(), log)
		if err != nil {
			return fmt.Errorf("failed to create archive client: %w", err)
		}
		container.ArchiveService = reliability.NewArchiveService(
			container.AuditDB,
			client,
			cfg.StagingDir(),
			cfg.Archive.Prefix,
			engine.ModelVersion(),
			log,
		)
	}

	log.Info().
		Str("model_version", engine.ModelVersion()).
		Int("workers", container.WorkerPool.Size()).
		Bool("archive", container.ArchiveService != nil).
		Msg("Services initialized")
	return nil
}
