package featurestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/scoring"
	"github.com/aristath/opportunity-forecast/internal/utils"
	"github.com/aristath/opportunity-forecast/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrAuditWrite is wrapped by Append when every retry has failed
var ErrAuditWrite = errors.New("audit write failed")

// RetryPolicy bounds the exponential backoff used for appends
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 50ms, capped at 1s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

// Backoff returns the delay before the retry following attempt (1-based): base * 2^(attempt-1), capped
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

const entryColumns = `id, run_id, opportunity_id, model_version, payload, stage_multiplier, time_decay, days_to_close,
score_raw, score_scaled, win_prob, ci_lower, ci_upper, ci_level, bonuses_applied, fy_bucket,
projected_fy25, projected_fy26, projected_fy27, scored_at, recorded_at`

type insertFunc func(ctx context.Context, e Entry, payload []byte) error

// Store is the feature store backed by the audit database.
// Appends are serialized through a single writer; reads run concurrently.
type Store struct {
	db     *sql.DB
	log    zerolog.Logger
	policy RetryPolicy
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	insert insertFunc

	writeMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithRetryPolicy overrides the default retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// NewStore creates a feature store over an already migrated audit database
func NewStore(db *sql.DB, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		log:    log.With().Str("repo", "feature_store").Logger(),
		policy: DefaultRetryPolicy(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	s.insert = s.insertRow
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Attempts < 1 {
		s.policy.Attempts = 1
	}
	return s
}

// Append records one entry. Failed writes are retried with exponential backoff;
// when every attempt fails the returned error wraps ErrAuditWrite.
func (s *Store) Append(ctx context.Context, e Entry) error {
	blob, err := msgpack.Marshal(&payload{Inputs: e.Inputs, Features: e.Features})
	if err != nil {
		return fmt.Errorf("%w: failed to encode payload for %s: %v", ErrAuditWrite, e.OpportunityID, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		lastErr = s.insert(ctx, e, blob)
		if lastErr == nil {
			return nil
		}
		if attempt == s.policy.Attempts {
			break
		}

		delay := s.policy.Backoff(attempt)
		s.log.Warn().
			Err(lastErr).
			Str("opportunity_id", e.OpportunityID).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Audit append failed, retrying")

		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	return fmt.Errorf("%w for %s after %d attempts: %v", ErrAuditWrite, e.OpportunityID, s.policy.Attempts, lastErr)
}

func (s *Store) insertRow(ctx context.Context, e Entry, blob []byte) error {
	query := `
		INSERT INTO feature_records
		(run_id, opportunity_id, model_version, payload, stage_multiplier, time_decay, days_to_close,
		 score_raw, score_scaled, win_prob, ci_lower, ci_upper, ci_level, bonuses_applied, fy_bucket,
		 projected_fy25, projected_fy26, projected_fy27, scored_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var daysToClose sql.NullInt64
	if e.Derivation.DaysToClose != nil {
		daysToClose = sql.NullInt64{Int64: int64(*e.Derivation.DaysToClose), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		e.RunID,
		e.OpportunityID,
		e.ModelVersion,
		blob,
		e.Derivation.StageMultiplier,
		e.Derivation.TimeDecay,
		daysToClose,
		e.ScoreRaw,
		e.ScoreScaled,
		e.WinProb,
		e.Interval.LowerBound,
		e.Interval.UpperBound,
		e.Interval.ConfidenceLevel,
		e.BonusesApplied,
		string(e.FYBucket),
		e.Projection.FY25.String(),
		e.Projection.FY26.String(),
		e.Projection.FY27.String(),
		e.ScoredAt.UTC().Format(time.RFC3339Nano),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feature record: %w", err)
	}
	return nil
}

// ListByOpportunity returns every recorded run for an opportunity, oldest first
func (s *Store) ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM feature_records WHERE opportunity_id = ? ORDER BY id"
	args := []interface{}{opportunityID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature records: %w", err)
	}
	return entries, nil
}

// Count returns the number of records, optionally restricted to one model version
func (s *Store) Count(ctx context.Context, modelVersion string) (int, error) {
	query := "SELECT COUNT(*) FROM feature_records"
	var args []interface{}
	if modelVersion != "" {
		query += " WHERE model_version = ?"
		args = append(args, modelVersion)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feature records: %w", err)
	}
	return count, nil
}

// Summary aggregates every record for a model version
func (s *Store) Summary(ctx context.Context, modelVersion string) (*Summary, error) {
	done := utils.MeasureDBQuery("feature_records_summary", s.log)

	rows, err := s.db.QueryContext(ctx, `
		SELECT win_prob, score_scaled, bonuses_applied, scored_at
		FROM feature_records
		WHERE model_version = ?
		ORDER BY scored_at
	`, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature records: %w", err)
	}
	defer rows.Close()

	summary := &Summary{ModelVersion: modelVersion}
	var winProbs, scores, bonuses []float64

	for rows.Next() {
		var win, scaled, bonus float64
		var scoredAt string
		if err := rows.Scan(&win, &scaled, &bonus, &scoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature record: %w", err)
		}
		winProbs = append(winProbs, win)
		scores = append(scores, scaled)
		bonuses = append(bonuses, bonus)
		if bonus >= scoring.MaxTotalBonus {
			summary.GuardrailHits++
		}

		t, err := time.Parse(time.RFC3339Nano, scoredAt)
		if err != nil {
			continue
		}
		if summary.FirstScoredAt.IsZero() || t.Before(summary.FirstScoredAt) {
			summary.FirstScoredAt = t
		}
		if t.After(summary.LastScoredAt) {
			summary.LastScoredAt = t
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature records: %w", err)
	}

	summary.Count = len(winProbs)
	done(int64(summary.Count))
	if summary.Count == 0 {
		return summary, nil
	}

	summary.MeanWinProb = formulas.Mean(winProbs)
	summary.StdDevWinProb = formulas.StdDev(winProbs)
	summary.MedianWinProb = formulas.Quantile(0.5, winProbs)
	summary.MeanScoreScaled = formulas.Mean(scores)
	summary.StdDevScoreScaled = formulas.StdDev(scores)
	summary.MeanBonusesApplied = formulas.Mean(bonuses)

	return summary, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e           Entry
		blob        []byte
		daysToClose sql.NullInt64
		bucket      string
		fy25        string
		fy26        string
		fy27        string
		scoredAt    string
		recordedAt  string
	)
	err := rows.Scan(
		&e.ID,
		&e.RunID,
		&e.OpportunityID,
		&e.ModelVersion,
		&blob,
		&e.Derivation.StageMultiplier,
		&e.Derivation.TimeDecay,
		&daysToClose,
		&e.ScoreRaw,
		&e.ScoreScaled,
		&e.WinProb,
		&e.Interval.LowerBound,
		&e.Interval.UpperBound,
		&e.Interval.ConfidenceLevel,
		&e.BonusesApplied,
		&bucket,
		&fy25,
		&fy26,
		&fy27,
		&scoredAt,
		&recordedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to scan feature record: %w", err)
	}

	var p payload
	if err := msgpack.Unmarshal(blob, &p); err != nil {
		return Entry{}, fmt.Errorf("failed to decode payload for record %d: %w", e.ID, err)
	}
	e.Inputs = p.Inputs
	e.Features = p.Features
	if daysToClose.Valid {
		days := int(daysToClose.Int64)
		e.Derivation.DaysToClose = &days
	}
	if e.Projection, err = parseProjection(fy25, fy26, fy27); err != nil {
		return Entry{}, fmt.Errorf("failed to decode projection for record %d: %w", e.ID, err)
	}
	e.FYBucket = domain.FYBucket(bucket)
	e.Interval.IntervalWidth = e.Interval.UpperBound - e.Interval.LowerBound
	e.ScoredAt, _ = time.Parse(time.RFC3339Nano, scoredAt)
	e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)

	return e, nil
}

func parseProjection(fy25, fy26, fy27 string) (domain.FYProjection, error) {
	var (
		p   domain.FYProjection
		err error
	)
	if p.FY25, err = decimal.NewFromString(fy25); err != nil {
		return p, err
	}
	if p.FY26, err = decimal.NewFromString(fy26); err != nil {
		return p, err
	}
	if p.FY27, err = decimal.NewFromString(fy27); err != nil {
		return p, err
	}
	return p, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
