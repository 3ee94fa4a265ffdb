package forecast

import (
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/pkg/formulas"
)

// View is the presentation form of a ForecastResult: scores rounded to one
// decimal, money to two places, timestamps as ISO-8601 UTC.
type View struct {
	OpportunityID       string       `json:"opportunity_id"`
	ProjectedAmountFY25 string       `json:"projected_amount_fy25"`
	ProjectedAmountFY26 string       `json:"projected_amount_fy26"`
	ProjectedAmountFY27 string       `json:"projected_amount_fy27"`
	FYBucket            string       `json:"fy_bucket"`
	WinProb             float64      `json:"win_prob"`
	ScoreRaw            float64      `json:"score_raw"`
	ScoreScaled         float64      `json:"score_scaled"`
	SubScores           SubScoreView `json:"sub_scores"`
	TotalBonusesApplied float64      `json:"total_bonuses_applied"`
	ConfidenceInterval  IntervalView `json:"confidence_interval"`
	ModelVersion        string       `json:"model_version"`
	ScoredAt            string       `json:"scored_at"`
}

// SubScoreView holds rounded sub-scores
type SubScoreView struct {
	OEMAlignment    float64 `json:"oem_alignment"`
	PartnerFit      float64 `json:"partner_fit"`
	ContractVehicle float64 `json:"contract_vehicle"`
	GovlyRelevance  float64 `json:"govly_relevance"`
	DealSize        float64 `json:"deal_size"`
}

// IntervalView holds the rounded confidence interval
type IntervalView struct {
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	IntervalWidth   float64 `json:"interval_width"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

func r1(v float64) float64 { return formulas.Round(v, 1) }

// NewView rounds a result for output
func NewView(result *domain.ForecastResult) View {
	ci := result.ConfidenceInterval
	return View{
		OpportunityID:       result.OpportunityID,
		ProjectedAmountFY25: result.Projection.FY25.StringFixed(2),
		ProjectedAmountFY26: result.Projection.FY26.StringFixed(2),
		ProjectedAmountFY27: result.Projection.FY27.StringFixed(2),
		FYBucket:            string(result.FYBucket),
		WinProb:             r1(result.WinProb),
		ScoreRaw:            r1(result.ScoreRaw),
		ScoreScaled:         r1(result.ScoreScaled),
		SubScores: SubScoreView{
			OEMAlignment:    r1(result.SubScores.OEMAlignment),
			PartnerFit:      r1(result.SubScores.PartnerFit),
			ContractVehicle: r1(result.SubScores.ContractVehicle),
			GovlyRelevance:  r1(result.SubScores.GovlyRelevance),
			DealSize:        r1(result.SubScores.DealSize),
		},
		TotalBonusesApplied: r1(result.TotalBonusesApplied),
		ConfidenceInterval: IntervalView{
			LowerBound:      r1(ci.LowerBound),
			UpperBound:      r1(ci.UpperBound),
			IntervalWidth:   r1(ci.IntervalWidth),
			ConfidenceLevel: ci.ConfidenceLevel,
		},
		ModelVersion: result.ModelVersion,
		ScoredAt:     result.ScoredAt.UTC().Format(time.RFC3339),
	}
}

// NewViews rounds a slice of results
func NewViews(results []*domain.ForecastResult) []View {
	views := make([]View, 0, len(results))
	for _, r := range results {
		views = append(views, NewView(r))
	}
	return views
}
