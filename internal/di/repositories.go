package di

import (
	"fmt"

	"github.com/aristath/opportunity-forecast/internal/config"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecasts"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the stores backed by the container's databases
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.AuditDB == nil || container.ForecastsDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.FeatureStore = featurestore.NewStore(
		container.AuditDB.Conn(),
		log,
		featurestore.WithRetryPolicy(cfg.AuditRetry),
	)
	container.ForecastRepo = forecasts.NewRepository(container.ForecastsDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
