package forecast

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditRecorder appends scoring runs to the feature store
type AuditRecorder interface {
	Append(ctx context.Context, e featurestore.Entry) error
}

// ResultStore keeps the latest result per opportunity
type ResultStore interface {
	Save(ctx context.Context, result *domain.ForecastResult) error
}

// Failure describes one opportunity that could not be scored
type Failure struct {
	Index         int    `json:"index"`
	OpportunityID string `json:"opportunity_id"`
	Field         string `json:"field,omitempty"`
	Error         string `json:"error"`
	Err           error  `json:"-"`
}

func newFailure(index int, id string, err error) Failure {
	f := Failure{Index: index, OpportunityID: id, Error: err.Error(), Err: err}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		f.Field = verr.Field
	}
	return f
}

// BatchResult is the outcome of ForecastBatch. Results keep input order with failures removed.
type BatchResult struct {
	RunID         string                   `json:"run_id"`
	ModelVersion  string                   `json:"model_version"`
	Results       []*domain.ForecastResult `json:"results"`
	Failures      []Failure                `json:"failures"`
	AuditFailures int                      `json:"audit_failures"`
	Duration      time.Duration            `json:"duration"`
}

type scored struct {
	result *domain.ForecastResult
	trace  *Trace
}

// Service runs the engine and persists what it produces.
// Persistence is best-effort: audit and store failures are logged and never
// prevent a result from being returned.
type Service struct {
	engine *Engine
	pool   *workers.WorkerPool
	audit  AuditRecorder
	store  ResultStore
	log    zerolog.Logger
}

// NewService creates a forecast service. audit and store may be nil.
func NewService(engine *Engine, pool *workers.WorkerPool, audit AuditRecorder, store ResultStore, log zerolog.Logger) *Service {
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &Service{
		engine: engine,
		pool:   pool,
		audit:  audit,
		store:  store,
		log:    log.With().Str("service", "forecast").Logger(),
	}
}

// Engine returns the underlying engine
func (s *Service) Engine() *Engine {
	return s.engine
}

// ForecastOne scores a single opportunity on demand
func (s *Service) ForecastOne(ctx context.Context, opp domain.Opportunity) (*domain.ForecastResult, error) {
	result, trace, err := s.engine.Forecast(opp)
	if err != nil {
		s.log.Warn().Err(err).Str("opportunity_id", opp.ID).Msg("Skipping invalid opportunity")
		return nil, err
	}
	s.persist(ctx, uuid.NewString(), opp, result, trace)
	return result, nil
}

// ForecastBatch scores opportunities in parallel. One opportunity failing never
// aborts the others; failures are reported in the batch result.
func (s *Service) ForecastBatch(ctx context.Context, opps []domain.Opportunity, progress workers.ProgressFunc) *BatchResult {
	return s.ForecastRecords(ctx, domain.RecordsOf(opps), progress)
}

// ForecastRecords scores decoded records. Records that failed to decode are
// reported as failures at their input index and the rest are scored.
func (s *Service) ForecastRecords(ctx context.Context, records []domain.Record, progress workers.ProgressFunc) *BatchResult {
	start := time.Now()
	batch := &BatchResult{
		RunID:        uuid.NewString(),
		ModelVersion: s.engine.ModelVersion(),
		Results:      make([]*domain.ForecastResult, 0, len(records)),
		Failures:     []Failure{},
	}

	opps := make([]domain.Opportunity, 0, len(records))
	positions := make([]int, 0, len(records))
	for i, rec := range records {
		if rec.Err != nil {
			s.log.Warn().Err(rec.Err).Str("opportunity_id", rec.Opportunity.ID).Int("index", i).Msg("Opportunity not decoded")
			batch.Failures = append(batch.Failures, newFailure(i, rec.Opportunity.ID, rec.Err))
			continue
		}
		opps = append(opps, rec.Opportunity)
		positions = append(positions, i)
	}

	outcomes := workers.EvaluateBatch(s.pool, opps, func(opp domain.Opportunity) (scored, error) {
		result, trace, err := s.engine.Forecast(opp)
		return scored{result: result, trace: trace}, err
	}, progress)

	for _, out := range outcomes {
		index := positions[out.Index]
		opp := opps[out.Index]
		if out.Err != nil {
			event := s.log.Error()
			if domain.IsValidationError(out.Err) {
				event = s.log.Warn()
			}
			event.Err(out.Err).Str("opportunity_id", opp.ID).Int("index", index).Msg("Opportunity not scored")

			batch.Failures = append(batch.Failures, newFailure(index, opp.ID, out.Err))
			continue
		}

		if !s.persist(ctx, batch.RunID, opp, out.Result.result, out.Result.trace) {
			batch.AuditFailures++
		}
		batch.Results = append(batch.Results, out.Result.result)
	}

	sort.SliceStable(batch.Failures, func(i, j int) bool {
		return batch.Failures[i].Index < batch.Failures[j].Index
	})

	batch.Duration = time.Since(start)
	s.log.Info().
		Str("run_id", batch.RunID).
		Int("scored", len(batch.Results)).
		Int("failed", len(batch.Failures)).
		Int("audit_failures", batch.AuditFailures).
		Dur("duration", batch.Duration).
		Msg("Batch forecast complete")

	return batch
}

// persist records the run and stores the result. It reports whether the audit append succeeded.
func (s *Service) persist(ctx context.Context, runID string, opp domain.Opportunity, result *domain.ForecastResult, trace *Trace) bool {
	for _, ref := range trace.Features.Unknown {
		s.log.Debug().
			Str("opportunity_id", result.OpportunityID).
			Str("kind", ref.Kind).
			Str("value", ref.Value).
			Msg("Unknown reference value, using default")
	}

	audited := true
	if s.audit != nil {
		derivation := featurestore.Derivation{
			StageMultiplier: trace.StageMultiplier,
			TimeDecay:       trace.TimeDecay,
			DaysToClose:     trace.DaysToClose,
		}
		if err := s.audit.Append(ctx, featurestore.NewEntry(runID, opp, result, trace.Features, derivation)); err != nil {
			audited = false
			s.log.Warn().Err(err).Str("opportunity_id", result.OpportunityID).Msg("Audit record not written")
		}
	}
	if s.store != nil {
		if err := s.store.Save(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("opportunity_id", result.OpportunityID).Msg("Failed to store forecast")
		}
	}
	return audited
}
