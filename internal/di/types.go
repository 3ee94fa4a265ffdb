// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived dependency of the forecast service and is the
// single place the server and scheduler get their instances from.
package di

import (
	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	forecasthandlers "github.com/aristath/opportunity-forecast/internal/modules/forecast/handlers"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/modules/forecasts"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/aristath/opportunity-forecast/internal/reliability"
	"github.com/aristath/opportunity-forecast/internal/scheduler"
	"github.com/aristath/opportunity-forecast/internal/snapshot"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	AuditDB     *database.DB // append-only feature store (ledger profile)
	ForecastsDB *database.DB // latest result per opportunity

	// Repositories
	FeatureStore *featurestore.Store
	ForecastRepo *forecasts.Repository

	// Services
	Tables          *reference.Tables
	Engine          *forecast.Engine
	WorkerPool      *workers.WorkerPool
	ForecastService *forecast.Service
	ForecastHandler *forecasthandlers.Handler
	SnapshotSource  *snapshot.FileSource        // nil when no snapshot path is configured
	ArchiveService  *reliability.ArchiveService // nil when archiving is disabled
}

// Databases returns the open databases in initialization order
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.AuditDB, c.ForecastsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every database. Errors are ignored; the process is shutting down.
func (c *Container) Close() {
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}

// JobInstances holds the scheduler jobs so they can be triggered manually
type JobInstances struct {
	Reforecast    *scheduler.ReforecastJob // nil without a snapshot source
	Archive       *scheduler.ArchiveJob    // nil when archiving is disabled
	WALCheckpoint *scheduler.WALCheckpointJob
}
