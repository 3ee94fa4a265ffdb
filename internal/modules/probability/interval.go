package probability

import (
	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/pkg/formulas"
)

// ConfidenceLevel is recorded on every interval for traceability
const ConfidenceLevel = 0.80

var baseVariances = map[domain.Stage]float64{
	domain.StageQualification: 0.40,
	domain.StageDiscovery:     0.35,
	domain.StageProposal:      0.25,
	domain.StageNegotiation:   0.15,
}

// BaseVariance returns the stage variance; stages without their own entry use Proposal's
func BaseVariance(stage domain.Stage) float64 {
	if v, ok := baseVariances[stage]; ok {
		return v
	}
	return baseVariances[domain.StageProposal]
}

// AmountMultiplier widens the interval for large deals
func AmountMultiplier(amount float64) float64 {
	switch {
	case amount > 5_000_000:
		return 1.30
	case amount >= 1_000_000:
		return 1.15
	default:
		return 1.00
	}
}

// Interval builds a symmetric interval around winProb, clipped to [0,100]
func Interval(winProb float64, stage domain.Stage, amount float64) domain.ConfidenceInterval {
	spread := BaseVariance(stage) * AmountMultiplier(amount) * 100

	lower := formulas.Clamp(winProb-spread, MinWinProb, MaxWinProb)
	upper := formulas.Clamp(winProb+spread, MinWinProb, MaxWinProb)

	return domain.ConfidenceInterval{
		LowerBound:      lower,
		UpperBound:      upper,
		IntervalWidth:   upper - lower,
		ConfidenceLevel: ConfidenceLevel,
	}
}
