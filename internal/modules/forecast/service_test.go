package forecast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/reference"
	testingpkg "github.com/aristath/opportunity-forecast/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, audit AuditRecorder, store ResultStore) *Service {
	t.Helper()
	return NewService(newTestEngine(t), workers.NewWorkerPool(4), audit, store, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestForecastOne_PersistsResultAndAudit(t *testing.T) {
	audit := testingpkg.NewMockAuditRecorder()
	store := testingpkg.NewMockResultStore()
	svc := newTestService(t, audit, store)

	result, err := svc.ForecastOne(context.Background(), ciscoProposal())
	require.NoError(t, err)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "opp-cisco", entry.OpportunityID)
	assert.NotEmpty(t, entry.RunID)
	assert.Equal(t, result.WinProb, entry.WinProb)
	assert.Equal(t, "Cisco", entry.Features.MatchedOEM)
	assert.Same(t, result, store.Get("opp-cisco"))

	assert.Equal(t, "1000000", entry.Inputs.Amount)
	assert.Equal(t, "Proposal", entry.Inputs.Stage)
	assert.Equal(t, "2025-11-15", entry.Inputs.CloseDate)
	assert.Equal(t, []string{"Cisco"}, entry.Inputs.OEMs)
	assert.Equal(t, 0.45, entry.Derivation.StageMultiplier)
	assert.Equal(t, 0.85, entry.Derivation.TimeDecay)
	require.NotNil(t, entry.Derivation.DaysToClose)
	assert.Equal(t, 153, *entry.Derivation.DaysToClose)
	assert.True(t, entry.Projection.Total().Equal(decimal.NewFromInt(1_000_000)))

	// the stored factors reproduce the stored probability
	assert.InDelta(t, entry.ScoreScaled*entry.Derivation.StageMultiplier*entry.Derivation.TimeDecay, entry.WinProb, 1e-9)
}

func TestForecastOne_AuditFailureStillReturnsResult(t *testing.T) {
	audit := testingpkg.NewMockAuditRecorder()
	audit.SetError(featurestore.ErrAuditWrite)
	store := testingpkg.NewMockResultStore()
	store.SetError(errors.New("disk full"))
	svc := newTestService(t, audit, store)

	result, err := svc.ForecastOne(context.Background(), ciscoProposal())
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestForecastOne_ValidationError(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.ForecastOne(context.Background(), domain.Opportunity{ID: "x", Amount: decimal.NewFromInt(-1)})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestForecastBatch_IsolatesInvalidItems(t *testing.T) {
	audit := testingpkg.NewMockAuditRecorder()
	store := testingpkg.NewMockResultStore()
	svc := newTestService(t, audit, store)

	opps := []domain.Opportunity{
		ciscoProposal(),
		{ID: "", Amount: decimal.NewFromInt(10)},
		{ID: "opp-neg", Amount: decimal.NewFromInt(-10)},
		{ID: "opp-small", Amount: decimal.NewFromInt(5_000)},
	}

	var progressCalls int
	var mu sync.Mutex
	batch := svc.ForecastBatch(context.Background(), opps, func(current, total int, message string) {
		mu.Lock()
		progressCalls++
		mu.Unlock()
	})

	assert.NotEmpty(t, batch.RunID)
	assert.Equal(t, domain.ModelVersion, batch.ModelVersion)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "opp-cisco", batch.Results[0].OpportunityID)
	assert.Equal(t, "opp-small", batch.Results[1].OpportunityID)

	require.Len(t, batch.Failures, 2)
	assert.Equal(t, 1, batch.Failures[0].Index)
	assert.Equal(t, 2, batch.Failures[1].Index)
	assert.Equal(t, "opp-neg", batch.Failures[1].OpportunityID)
	assert.Contains(t, batch.Failures[1].Error, "amount")

	assert.Equal(t, 4, progressCalls)
	assert.Len(t, audit.Entries(), 2)
	for _, e := range audit.Entries() {
		assert.Equal(t, batch.RunID, e.RunID)
	}
	assert.Equal(t, 2, store.Count())
	assert.Zero(t, batch.AuditFailures)
}

func TestForecastRecords_ReportsUndecodableRecords(t *testing.T) {
	audit := testingpkg.NewMockAuditRecorder()
	svc := newTestService(t, audit, nil)

	records, err := domain.DecodeRecords([]byte(`[
		{"id": "good-1", "amount": 250000, "stage": "Proposal"},
		{"id": "bad", "amount": "lots"},
		{"id": "opp-neg", "amount": -5},
		{"id": "good-2", "amount": 5000}
	]`))
	require.NoError(t, err)

	batch := svc.ForecastRecords(context.Background(), records, nil)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, "good-1", batch.Results[0].OpportunityID)
	assert.Equal(t, "good-2", batch.Results[1].OpportunityID)

	require.Len(t, batch.Failures, 2)
	assert.Equal(t, 1, batch.Failures[0].Index)
	assert.Equal(t, "bad", batch.Failures[0].OpportunityID)
	assert.Equal(t, "amount", batch.Failures[0].Field)
	assert.True(t, domain.IsValidationError(batch.Failures[0].Err))
	assert.Equal(t, 2, batch.Failures[1].Index)
	assert.Equal(t, "opp-neg", batch.Failures[1].OpportunityID)

	assert.Len(t, audit.Entries(), 2)
}

func TestForecastBatch_CountsAuditFailures(t *testing.T) {
	audit := testingpkg.NewMockAuditRecorder()
	audit.SetError(featurestore.ErrAuditWrite)
	svc := newTestService(t, audit, nil)

	batch := svc.ForecastBatch(context.Background(), []domain.Opportunity{ciscoProposal()}, nil)
	assert.Len(t, batch.Results, 1)
	assert.Equal(t, 1, batch.AuditFailures)
}

func TestForecastBatch_Fixtures(t *testing.T) {
	engine, err := NewEngine(reference.MustDefault(), WithClock(func() time.Time { return testingpkg.FixtureNow }))
	require.NoError(t, err)
	svc := NewService(engine, workers.NewWorkerPool(3), nil, nil, zerolog.Nop())

	opps := append(testingpkg.NewOpportunityFixtures(), testingpkg.NewInvalidOpportunityFixtures()...)
	batch := svc.ForecastBatch(context.Background(), opps, nil)

	require.Len(t, batch.Results, len(testingpkg.NewOpportunityFixtures()))
	require.Len(t, batch.Failures, 2)
	for i, r := range batch.Results {
		assert.Equal(t, opps[i].ID, r.OpportunityID)
		assert.True(t, r.Projection.Total().Equal(opps[i].Amount), r.OpportunityID)
		assert.LessOrEqual(t, r.ConfidenceInterval.LowerBound, r.WinProb)
		assert.GreaterOrEqual(t, r.ConfidenceInterval.UpperBound, r.WinProb)
		assert.LessOrEqual(t, r.TotalBonusesApplied, 15.0)
	}
}

func TestForecastBatch_Empty(t *testing.T) {
	svc := newTestService(t, nil, nil)

	batch := svc.ForecastBatch(context.Background(), nil, nil)
	assert.Empty(t, batch.Results)
	assert.Empty(t, batch.Failures)
}

func TestNewView_RoundsForPresentation(t *testing.T) {
	engine := newTestEngine(t)
	result, _, err := engine.Forecast(ciscoProposal())
	require.NoError(t, err)

	view := NewView(result)
	assert.Equal(t, 34.0, view.WinProb)
	assert.Equal(t, 75.5, view.ScoreRaw)
	assert.Equal(t, 89.0, view.ScoreScaled)
	assert.Equal(t, "100000.00", view.ProjectedAmountFY25)
	assert.Equal(t, "750000.00", view.ProjectedAmountFY26)
	assert.Equal(t, "FY26", view.FYBucket)
	assert.Equal(t, "2025-06-15T14:00:00Z", view.ScoredAt)
	assert.Equal(t, 0.8, view.ConfidenceInterval.ConfidenceLevel)

	assert.Len(t, NewViews([]*domain.ForecastResult{result, result}), 2)
}
