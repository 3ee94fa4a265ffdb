// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/opportunity-forecast/internal/config"
	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. audit.db - Append-only feature records, one per scoring run
	auditDB, err := database.New(database.Config{
		Path:    cfg.AuditDBPath(),
		Profile: database.ProfileLedger, // Maximum safety for the audit trail
		Name:    database.NameAudit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	container.AuditDB = auditDB

	// 2. forecasts.db - Latest result per opportunity for rankings
	forecastsDB, err := database.New(database.Config{
		Path:    cfg.ForecastsDBPath(),
		Profile: database.ProfileStandard,
		Name:    database.NameForecasts,
	})
	if err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("failed to initialize forecasts database: %w", err)
	}
	container.ForecastsDB = forecastsDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
