package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelVersion tags every forecast with the weights and tables it was produced under.
// Bump it whenever weights or reference tables change meaning.
const ModelVersion = "multi_factor_v2.1_audited"

// FYBucket identifies a fiscal-year projection bucket
type FYBucket string

const (
	FY25   FYBucket = "FY25"
	FY26   FYBucket = "FY26"
	FY27   FYBucket = "FY27"
	Triage FYBucket = "Triage"
)

// SubScores are the five base dimension scores, each 0-100
type SubScores struct {
	OEMAlignment    float64 `json:"oem_alignment" msgpack:"oem_alignment"`
	PartnerFit      float64 `json:"partner_fit" msgpack:"partner_fit"`
	ContractVehicle float64 `json:"contract_vehicle" msgpack:"contract_vehicle"`
	GovlyRelevance  float64 `json:"govly_relevance" msgpack:"govly_relevance"`
	DealSize        float64 `json:"deal_size" msgpack:"deal_size"`
}

// ConfidenceInterval is a symmetric bound around the win probability
type ConfidenceInterval struct {
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	IntervalWidth   float64 `json:"interval_width"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// FYProjection is the revenue split across the three fiscal-year buckets
type FYProjection struct {
	FY25 decimal.Decimal `json:"projected_amount_fy25"`
	FY26 decimal.Decimal `json:"projected_amount_fy26"`
	FY27 decimal.Decimal `json:"projected_amount_fy27"`
}

// Total returns the sum of the three buckets
func (p FYProjection) Total() decimal.Decimal {
	return p.FY25.Add(p.FY26).Add(p.FY27)
}

// Get returns the projection for one bucket
func (p FYProjection) Get(b FYBucket) decimal.Decimal {
	switch b {
	case FY25:
		return p.FY25
	case FY26:
		return p.FY26
	case FY27:
		return p.FY27
	}
	return decimal.Zero
}

// ForecastResult is the immutable output of one scoring run
type ForecastResult struct {
	OpportunityID       string             `json:"opportunity_id"`
	Projection          FYProjection       `json:"projection"`
	FYBucket            FYBucket           `json:"fy_bucket"`
	WinProb             float64            `json:"win_prob"`
	ScoreRaw            float64            `json:"score_raw"`
	ScoreScaled         float64            `json:"score_scaled"`
	SubScores           SubScores          `json:"sub_scores"`
	TotalBonusesApplied float64            `json:"total_bonuses_applied"`
	ConfidenceInterval  ConfidenceInterval `json:"confidence_interval"`
	ModelVersion        string             `json:"model_version"`
	ScoredAt            time.Time          `json:"scored_at"`
}
