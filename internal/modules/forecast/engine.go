// Package forecast combines feature extraction, composite scoring, win probability,
// confidence intervals and fiscal-year allocation into a single ForecastResult.
package forecast

import (
	"fmt"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/fiscal"
	"github.com/aristath/opportunity-forecast/internal/modules/probability"
	"github.com/aristath/opportunity-forecast/internal/modules/scoring"
	"github.com/aristath/opportunity-forecast/internal/reference"
)

// Clock returns the current time. Injected so results are reproducible in tests.
type Clock func() time.Time

// Engine is a pure transform from an opportunity snapshot to a forecast.
// It holds only immutable configuration and is safe for concurrent use.
type Engine struct {
	tables       *reference.Tables
	weights      scoring.Weights
	modelVersion string
	clock        Clock
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source used for decay and scored_at
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithWeights overrides the default dimension weights
func WithWeights(w scoring.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithModelVersion overrides the model version stamped on results
func WithModelVersion(v string) Option {
	return func(e *Engine) { e.modelVersion = v }
}

// NewEngine creates an engine over the given reference tables
func NewEngine(tables *reference.Tables, opts ...Option) (*Engine, error) {
	if tables == nil {
		return nil, fmt.Errorf("reference tables are required")
	}
	e := &Engine{
		tables:       tables,
		weights:      scoring.DefaultWeights(),
		modelVersion: domain.ModelVersion,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	if e.modelVersion == "" {
		return nil, fmt.Errorf("model version must not be empty")
	}
	return e, nil
}

// ModelVersion returns the version stamped on every result
func (e *Engine) ModelVersion() string {
	return e.modelVersion
}

// Tables returns the reference tables the engine scores against
func (e *Engine) Tables() *reference.Tables {
	return e.tables
}

// Trace holds the intermediate values behind a result, for the audit log
type Trace struct {
	Features        scoring.Features  `json:"features"`
	Composite       scoring.Composite `json:"composite"`
	StageMultiplier float64           `json:"stage_multiplier"`
	TimeDecay       float64           `json:"time_decay"`
	DaysToClose     *int              `json:"days_to_close,omitempty"`
}

// Forecast scores one opportunity. The only error it returns is a *domain.ValidationError.
func (e *Engine) Forecast(opp domain.Opportunity) (*domain.ForecastResult, *Trace, error) {
	if err := opp.Validate(); err != nil {
		return nil, nil, err
	}

	now := e.clock().UTC()
	amount := opp.AmountFloat()

	features := scoring.Extract(opp, e.tables)
	composite := scoring.Score(features, e.weights)

	winProb := probability.WinProbability(composite.Scaled, opp.Stage, opp.CloseDate, now)
	interval := probability.Interval(winProb, opp.Stage, amount)

	projection, bucket, err := e.allocate(opp, now)
	if err != nil {
		return nil, nil, &domain.ValidationError{OpportunityID: opp.ID, Field: "amount", Reason: err.Error()}
	}

	trace := &Trace{
		Features:        features,
		Composite:       composite,
		StageMultiplier: probability.StageMultiplier(opp.Stage),
		TimeDecay:       probability.TimeDecay(opp.CloseDate, now),
	}
	if days, ok := probability.DaysUntil(opp.CloseDate, now); ok {
		trace.DaysToClose = &days
	}

	return &domain.ForecastResult{
		OpportunityID:       opp.ID,
		Projection:          projection,
		FYBucket:            bucket,
		WinProb:             winProb,
		ScoreRaw:            composite.Raw,
		ScoreScaled:         composite.Scaled,
		SubScores:           features.SubScores,
		TotalBonusesApplied: composite.Bonuses.Applied,
		ConfidenceInterval:  interval,
		ModelVersion:        e.modelVersion,
		ScoredAt:            now,
	}, trace, nil
}

// allocate splits the amount by close-date bucket. Without a close date the whole
// amount is triaged into the bucket containing today and flagged as Triage.
func (e *Engine) allocate(opp domain.Opportunity, now time.Time) (domain.FYProjection, domain.FYBucket, error) {
	if !opp.CloseDate.Valid {
		proj, err := fiscal.Triage(opp.Amount, fiscal.BucketFor(now))
		return proj, domain.Triage, err
	}
	bucket := fiscal.BucketFor(opp.CloseDate.Time)
	proj, err := fiscal.Distribute(opp.Amount, bucket)
	return proj, bucket, err
}
