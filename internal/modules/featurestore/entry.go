// Package featurestore implements the append-only audit log of scoring runs.
// Every forecast is recorded with the features and intermediate scores that produced it,
// tagged with the model version, so historical results stay interpretable after model changes.
package featurestore

import (
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/scoring"
)

// Inputs is the opportunity snapshot a forecast was computed from
type Inputs struct {
	Amount               string   `json:"amount" msgpack:"amount"`
	Stage                string   `json:"stage" msgpack:"stage"`
	CloseDate            string   `json:"close_date,omitempty" msgpack:"close_date"`
	OEMs                 []string `json:"oems" msgpack:"oems"`
	Partners             []string `json:"partners" msgpack:"partners"`
	ContractVehicle      string   `json:"contract_vehicle,omitempty" msgpack:"contract_vehicle"`
	ContractsRecommended []string `json:"contracts_recommended" msgpack:"contracts_recommended"`
	Region               string   `json:"region,omitempty" msgpack:"region"`
	CustomerOrg          string   `json:"customer_org,omitempty" msgpack:"customer_org"`
	SourceTags           []string `json:"source_tags" msgpack:"source_tags"`
}

// NewInputs captures an opportunity. The stage is recorded after defaulting.
func NewInputs(opp domain.Opportunity) Inputs {
	stage := opp.Stage
	if stage == "" {
		stage = domain.StageUnknown
	}
	return Inputs{
		Amount:               opp.Amount.String(),
		Stage:                string(stage),
		CloseDate:            opp.CloseDate.String(),
		OEMs:                 opp.OEMs,
		Partners:             opp.Partners,
		ContractVehicle:      opp.ContractVehicle,
		ContractsRecommended: opp.ContractsRecommended,
		Region:               opp.Region,
		CustomerOrg:          opp.CustomerOrg,
		SourceTags:           opp.SourceTags,
	}
}

// Derivation holds the probability factors between the composite score and win_prob
type Derivation struct {
	StageMultiplier float64 `json:"stage_multiplier"`
	TimeDecay       float64 `json:"time_decay"`
	DaysToClose     *int    `json:"days_to_close,omitempty"`
}

// Entry is one audit record
type Entry struct {
	ID             int64                     `json:"id"`
	RunID          string                    `json:"run_id"`
	OpportunityID  string                    `json:"opportunity_id"`
	ModelVersion   string                    `json:"model_version"`
	Inputs         Inputs                    `json:"inputs"`
	Features       scoring.Features          `json:"features"`
	Derivation     Derivation                `json:"derivation"`
	ScoreRaw       float64                   `json:"score_raw"`
	ScoreScaled    float64                   `json:"score_scaled"`
	WinProb        float64                   `json:"win_prob"`
	Interval       domain.ConfidenceInterval `json:"confidence_interval"`
	BonusesApplied float64                   `json:"total_bonuses_applied"`
	FYBucket       domain.FYBucket           `json:"fy_bucket"`
	Projection     domain.FYProjection       `json:"projection"`
	ScoredAt       time.Time                 `json:"scored_at"`
	RecordedAt     time.Time                 `json:"recorded_at"`
}

// NewEntry builds an audit entry from the opportunity, the forecast result and
// the intermediate values behind it
func NewEntry(runID string, opp domain.Opportunity, result *domain.ForecastResult, features scoring.Features, derivation Derivation) Entry {
	return Entry{
		RunID:          runID,
		OpportunityID:  result.OpportunityID,
		ModelVersion:   result.ModelVersion,
		Inputs:         NewInputs(opp),
		Features:       features,
		Derivation:     derivation,
		ScoreRaw:       result.ScoreRaw,
		ScoreScaled:    result.ScoreScaled,
		WinProb:        result.WinProb,
		Interval:       result.ConfidenceInterval,
		BonusesApplied: result.TotalBonusesApplied,
		FYBucket:       result.FYBucket,
		Projection:     result.Projection,
		ScoredAt:       result.ScoredAt,
	}
}

// payload is the msgpack blob stored with every record
type payload struct {
	Inputs   Inputs           `msgpack:"inputs"`
	Features scoring.Features `msgpack:"features"`
}

// Summary aggregates the audit log for offline evaluation of one model version
type Summary struct {
	ModelVersion       string    `json:"model_version"`
	Count              int       `json:"count"`
	MeanWinProb        float64   `json:"mean_win_prob"`
	StdDevWinProb      float64   `json:"stddev_win_prob"`
	MedianWinProb      float64   `json:"median_win_prob"`
	MeanScoreScaled    float64   `json:"mean_score_scaled"`
	StdDevScoreScaled  float64   `json:"stddev_score_scaled"`
	MeanBonusesApplied float64   `json:"mean_bonuses_applied"`
	GuardrailHits      int       `json:"guardrail_hits"`
	FirstScoredAt      time.Time `json:"first_scored_at,omitempty"`
	LastScoredAt       time.Time `json:"last_scored_at,omitempty"`
}
