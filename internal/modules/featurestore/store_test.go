package featurestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/scoring"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoredAt = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		Profile: database.ProfileLedger,
		Name:    database.NameAudit,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled), opts...)
}

func testEntry(id string, win, scaled, bonus float64) Entry {
	result := &domain.ForecastResult{
		OpportunityID:       id,
		FYBucket:            domain.FY26,
		WinProb:             win,
		ScoreRaw:            scaled - bonus,
		ScoreScaled:         scaled,
		TotalBonusesApplied: bonus,
		ConfidenceInterval: domain.ConfidenceInterval{
			LowerBound: win - 10, UpperBound: win + 10, IntervalWidth: 20, ConfidenceLevel: 0.8,
		},
		Projection: domain.FYProjection{
			FY25: decimal.NewFromInt(100000),
			FY26: decimal.RequireFromString("750000.50"),
			FY27: decimal.NewFromInt(150000),
		},
		ModelVersion: domain.ModelVersion,
		ScoredAt:     scoredAt,
	}
	opp := domain.Opportunity{
		ID:                   id,
		Amount:               decimal.RequireFromString("1000000.50"),
		Stage:                domain.StageProposal,
		CloseDate:            domain.NewCloseDate(2025, time.November, 15),
		OEMs:                 []string{"Cisco"},
		Partners:             []string{"Acme"},
		ContractsRecommended: []string{"SEWP V"},
		Region:               "East",
		CustomerOrg:          "DOD",
		SourceTags:           []string{"govly"},
	}
	days := 153
	derivation := Derivation{StageMultiplier: 0.45, TimeDecay: 0.85, DaysToClose: &days}
	features := scoring.Features{
		SubScores:        domain.SubScores{OEMAlignment: 80, PartnerFit: 50, ContractVehicle: 95, GovlyRelevance: 50, DealSize: 80},
		MatchedOEM:       "Cisco",
		RegionBonus:      2.5,
		CustomerCategory: "DOD",
		CustomerBonus:    4,
		Unknown:          []scoring.UnknownReference{{Kind: scoring.RefPartner, Value: "Acme"}},
	}
	return NewEntry("run-1", opp, result, features, derivation)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{Attempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 50*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(4))
}

func TestAppendAndList_RoundTripsFeatures(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testEntry("opp-1", 34.0, 89.0, 13.5)))
	require.NoError(t, store.Append(ctx, testEntry("opp-1", 36.0, 90.0, 13.5)))
	require.NoError(t, store.Append(ctx, testEntry("opp-2", 5.0, 34.0, 0)))

	entries, err := store.ListByOpportunity(ctx, "opp-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, 34.0, first.WinProb)
	assert.Equal(t, domain.FY26, first.FYBucket)
	assert.Equal(t, domain.ModelVersion, first.ModelVersion)
	assert.Equal(t, "Cisco", first.Features.MatchedOEM)
	assert.Equal(t, 95.0, first.Features.SubScores.ContractVehicle)
	assert.Equal(t, []scoring.UnknownReference{{Kind: scoring.RefPartner, Value: "Acme"}}, first.Features.Unknown)
	assert.InDelta(t, 20.0, first.Interval.IntervalWidth, 1e-9)

	assert.Equal(t, Inputs{
		Amount:               "1000000.5",
		Stage:                "Proposal",
		CloseDate:            "2025-11-15",
		OEMs:                 []string{"Cisco"},
		Partners:             []string{"Acme"},
		ContractsRecommended: []string{"SEWP V"},
		Region:               "East",
		CustomerOrg:          "DOD",
		SourceTags:           []string{"govly"},
	}, first.Inputs)
	assert.Equal(t, 0.45, first.Derivation.StageMultiplier)
	assert.Equal(t, 0.85, first.Derivation.TimeDecay)
	require.NotNil(t, first.Derivation.DaysToClose)
	assert.Equal(t, 153, *first.Derivation.DaysToClose)
	assert.Equal(t, "100000", first.Projection.FY25.String())
	assert.Equal(t, "750000.5", first.Projection.FY26.String())
	assert.Equal(t, "150000", first.Projection.FY27.String())
	assert.True(t, first.ScoredAt.Equal(scoredAt))
	assert.False(t, first.RecordedAt.IsZero())
	assert.Less(t, entries[0].ID, entries[1].ID)

	limited, err := store.ListByOpportunity(ctx, "opp-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendAndList_MissingCloseDate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	e := testEntry("opp-triage", 10, 50, 0)
	e.Inputs.CloseDate = ""
	e.Derivation.DaysToClose = nil
	require.NoError(t, store.Append(ctx, e))

	entries, err := store.ListByOpportunity(ctx, "opp-triage", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Derivation.DaysToClose)
	assert.Empty(t, entries[0].Inputs.CloseDate)
}

func TestAppend_NeverOverwrites(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, testEntry("opp-1", float64(i), 50, 0)))
	}

	count, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = store.db.Exec(`UPDATE feature_records SET win_prob = 0`)
	assert.Error(t, err)
}

func TestAppend_ConcurrentWritersAreSerialized(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, testEntry(fmt.Sprintf("opp-%d", i%4), 10, 50, 0)))
		}(i)
	}
	wg.Wait()

	count, err := store.Count(ctx, domain.ModelVersion)
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}

func TestAppend_RetriesWithBackoff(t *testing.T) {
	store := setupStore(t, WithRetryPolicy(RetryPolicy{Attempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}))

	var delays []time.Duration
	store.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	realInsert := store.insert
	store.insert = func(ctx context.Context, e Entry, features []byte) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return realInsert(ctx, e, features)
	}

	require.NoError(t, store.Append(context.Background(), testEntry("opp-1", 10, 50, 0)))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)

	count, err := store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppend_GivesUpAfterAttempts(t *testing.T) {
	store := setupStore(t, WithRetryPolicy(RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	store.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	store.insert = func(context.Context, Entry, []byte) error {
		calls++
		return errors.New("disk I/O error")
	}

	err := store.Append(context.Background(), testEntry("opp-1", 10, 50, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuditWrite))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, 2, calls)
}

func TestAppend_StopsWhenContextCancelled(t *testing.T) {
	store := setupStore(t)
	store.insert = func(context.Context, Entry, []byte) error { return errors.New("locked") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Append(ctx, testEntry("opp-1", 10, 50, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuditWrite))
}

func TestSummary(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testEntry("a", 10, 40, 0)))
	require.NoError(t, store.Append(ctx, testEntry("b", 20, 60, 5)))
	require.NoError(t, store.Append(ctx, testEntry("c", 60, 80, 15)))

	summary, err := store.Summary(ctx, domain.ModelVersion)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 30.0, summary.MeanWinProb, 1e-9)
	assert.InDelta(t, 20.0, summary.MedianWinProb, 1e-9)
	assert.InDelta(t, 26.4575, summary.StdDevWinProb, 1e-3)
	assert.InDelta(t, 60.0, summary.MeanScoreScaled, 1e-9)
	assert.InDelta(t, 20.0, summary.StdDevScoreScaled, 1e-9)
	assert.InDelta(t, 20.0/3, summary.MeanBonusesApplied, 1e-9)
	assert.Equal(t, 1, summary.GuardrailHits)
	assert.True(t, summary.FirstScoredAt.Equal(scoredAt))
	assert.True(t, summary.LastScoredAt.Equal(scoredAt))
}

func TestSummary_UnknownVersionIsEmpty(t *testing.T) {
	store := setupStore(t)

	summary, err := store.Summary(context.Background(), "multi_factor_v1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
	assert.Zero(t, summary.MeanWinProb)
}
