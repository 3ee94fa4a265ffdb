// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/opportunity-forecast/internal/config"
	"github.com/aristath/opportunity-forecast/internal/scheduler"
	"github.com/rs/zerolog"
)

const walCheckpointSchedule = "0 */30 * * * *"

// RegisterJobs creates the background jobs and registers them with the scheduler.
// Jobs whose dependencies are not configured are skipped.
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}

	instances := &JobInstances{}

	// Re-forecast the exported snapshot
	if container.SnapshotSource != nil && cfg.ReforecastSchedule != "" {
		instances.Reforecast = scheduler.NewReforecastJob(container.SnapshotSource, container.ForecastService, 0, log)
		if err := sched.AddJob(cfg.ReforecastSchedule, instances.Reforecast); err != nil {
			return nil, fmt.Errorf("failed to register reforecast job: %w", err)
		}
	}

	// Ship the audit log to object storage
	if container.ArchiveService != nil && cfg.Archive.Schedule != "" {
		instances.Archive = scheduler.NewArchiveJob(container.ArchiveService, cfg.Archive.RetentionDays, 0, log)
		if err := sched.AddJob(cfg.Archive.Schedule, instances.Archive); err != nil {
			return nil, fmt.Errorf("failed to register archive job: %w", err)
		}
	}

	instances.WALCheckpoint = scheduler.NewWALCheckpointJob(log, container.Databases()...)
	if err := sched.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register wal checkpoint job: %w", err)
	}

	log.Info().Int("jobs", sched.Entries()).Msg("Jobs registered")
	return instances, nil
}
