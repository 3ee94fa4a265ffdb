package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/utils"
	"github.com/rs/zerolog"
)

// OpportunitySource supplies the opportunities to re-forecast
type OpportunitySource interface {
	Load(ctx context.Context) ([]domain.Record, error)
}

// BatchForecaster scores a batch of opportunities
type BatchForecaster interface {
	ForecastRecords(ctx context.Context, records []domain.Record, progress workers.ProgressFunc) *forecast.BatchResult
}

// ReforecastJob re-scores every opportunity from the source on a schedule
type ReforecastJob struct {
	source     OpportunitySource
	forecaster BatchForecaster
	timeout    time.Duration
	log        zerolog.Logger

	lastRun atomic.Pointer[forecast.BatchResult]
}

// NewReforecastJob creates a new ReforecastJob
func NewReforecastJob(source OpportunitySource, forecaster BatchForecaster, timeout time.Duration, log zerolog.Logger) *ReforecastJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &ReforecastJob{
		source:     source,
		forecaster: forecaster,
		timeout:    timeout,
		log:        log.With().Str("job", "reforecast").Logger(),
	}
}

// Name returns the job name
func (j *ReforecastJob) Name() string {
	return "reforecast"
}

// Run executes the re-forecast
func (j *ReforecastJob) Run() error {
	defer utils.OperationTimer("reforecast", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	records, err := j.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load opportunities: %w", err)
	}
	if len(records) == 0 {
		j.log.Info().Msg("No opportunities to re-forecast")
		return nil
	}

	lastLogged := time.Now()
	progress := func(current, total int, _ string) {
		if current == total || time.Since(lastLogged) > 10*time.Second {
			lastLogged = time.Now()
			j.log.Debug().Int("current", current).Int("total", total).Msg("Re-forecast progress")
		}
	}

	batch := j.forecaster.ForecastRecords(ctx, records, progress)
	j.lastRun.Store(batch)

	j.log.Info().
		Str("run_id", batch.RunID).
		Int("opportunities", len(records)).
		Int("scored", len(batch.Results)).
		Int("failed", len(batch.Failures)).
		Int("audit_failures", batch.AuditFailures).
		Dur("duration", batch.Duration).
		Msg("Re-forecast complete")

	return nil
}

// LastRun returns the result of the most recent run, if any
func (j *ReforecastJob) LastRun() *forecast.BatchResult {
	return j.lastRun.Load()
}
