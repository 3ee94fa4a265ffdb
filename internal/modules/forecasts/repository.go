// Package forecasts stores the latest ForecastResult per opportunity.
package forecasts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/utils"
	"github.com/rs/zerolog"
)

// RankBy selects the ordering for Top
type RankBy string

const (
	RankWinProb     RankBy = "win_prob"
	RankScoreRaw    RankBy = "score_raw"
	RankScoreScaled RankBy = "score_scaled"
	RankFY25        RankBy = "fy25"
	RankFY26        RankBy = "fy26"
	RankFY27        RankBy = "fy27"
)

// rankColumns whitelists the ORDER BY expression for each ranking
var rankColumns = map[RankBy]string{
	RankWinProb:     "win_prob",
	RankScoreRaw:    "score_raw",
	RankScoreScaled: "score_scaled",
	RankFY25:        "CAST(fy25 AS REAL)",
	RankFY26:        "CAST(fy26 AS REAL)",
	RankFY27:        "CAST(fy27 AS REAL)",
}

// ParseRankBy validates a ranking name
func ParseRankBy(s string) (RankBy, error) {
	if s == "" {
		return RankWinProb, nil
	}
	by := RankBy(s)
	if _, ok := rankColumns[by]; !ok {
		return "", fmt.Errorf("unknown ranking %q", s)
	}
	return by, nil
}

// MaxTopLimit bounds the number of rows Top returns
const MaxTopLimit = 500

// Repository persists forecasts in forecasts.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new forecasts repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "forecasts").Logger(),
	}
}

// Save stores a result, overwriting any prior forecast for the same opportunity
func (r *Repository) Save(ctx context.Context, result *domain.ForecastResult) error {
	if result == nil {
		return errors.New("forecast result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode forecast %s: %w", result.OpportunityID, err)
	}

	query := `
		INSERT INTO forecasts
		(opportunity_id, model_version, fy_bucket, win_prob, score_raw, score_scaled,
		 fy25, fy26, fy27, payload, scored_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(opportunity_id) DO UPDATE SET
			model_version = excluded.model_version,
			fy_bucket = excluded.fy_bucket,
			win_prob = excluded.win_prob,
			score_raw = excluded.score_raw,
			score_scaled = excluded.score_scaled,
			fy25 = excluded.fy25,
			fy26 = excluded.fy26,
			fy27 = excluded.fy27,
			payload = excluded.payload,
			scored_at = excluded.scored_at,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		result.OpportunityID,
		result.ModelVersion,
		string(result.FYBucket),
		result.WinProb,
		result.ScoreRaw,
		result.ScoreScaled,
		result.Projection.FY25.String(),
		result.Projection.FY26.String(),
		result.Projection.FY27.String(),
		string(payload),
		result.ScoredAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast %s: %w", result.OpportunityID, err)
	}
	return nil
}

// Get returns the latest forecast for an opportunity, or nil if none exists
func (r *Repository) Get(ctx context.Context, opportunityID string) (*domain.ForecastResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM forecasts WHERE opportunity_id = ?", opportunityID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast %s: %w", opportunityID, err)
	}
	return decode(payload)
}

// Top returns the highest-ranked forecasts. Ties are broken by opportunity id.
func (r *Repository) Top(ctx context.Context, by RankBy, limit int) ([]*domain.ForecastResult, error) {
	column, ok := rankColumns[by]
	if !ok {
		return nil, fmt.Errorf("unknown ranking %q", by)
	}
	if limit <= 0 || limit > MaxTopLimit {
		limit = MaxTopLimit
	}

	done := utils.MeasureDBQuery("forecasts_top_"+string(by), r.log)

	query := fmt.Sprintf("SELECT payload FROM forecasts ORDER BY %s DESC, opportunity_id LIMIT ?", column)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top forecasts: %w", err)
	}
	defer rows.Close()

	var results []*domain.ForecastResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		result, err := decode(payload)
		if err != nil {
			r.log.Warn().Err(err).Msg("Skipping undecodable forecast row")
			continue
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}
	done(int64(len(results)))
	return results, nil
}

// Count returns the number of stored forecasts
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM forecasts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count forecasts: %w", err)
	}
	return count, nil
}

func decode(payload string) (*domain.ForecastResult, error) {
	var result domain.ForecastResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode forecast payload: %w", err)
	}
	return &result, nil
}
