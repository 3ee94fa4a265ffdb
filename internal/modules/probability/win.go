// Package probability converts a composite score into a win probability and a
// confidence interval around it.
package probability

import (
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/pkg/formulas"
)

const (
	MinWinProb = 0.0
	MaxWinProb = 100.0

	// OverdueDecay applies to past and missing close dates
	OverdueDecay = 0.50
)

var stageMultipliers = map[domain.Stage]float64{
	domain.StageQualification: 0.15,
	domain.StageDiscovery:     0.25,
	domain.StageProposal:      0.45,
	domain.StageNegotiation:   0.75,
	domain.StageClosedWon:     1.00,
	domain.StageClosedLost:    0.00,
	domain.StageUnknown:       0.20,
}

// StageMultiplier returns the pipeline-stage weight. Unrecognized stages are treated as Unknown.
func StageMultiplier(stage domain.Stage) float64 {
	if m, ok := stageMultipliers[stage]; ok {
		return m
	}
	return stageMultipliers[domain.StageUnknown]
}

// DaysUntil returns whole calendar days from now until the close date (negative when overdue)
func DaysUntil(closeDate domain.CloseDate, now time.Time) (int, bool) {
	if !closeDate.Valid {
		return 0, false
	}
	n := now.UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	c := closeDate.Time.UTC()
	target := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today).Hours() / 24), true
}

// TimeDecay discounts the probability by how far away the close date is
func TimeDecay(closeDate domain.CloseDate, now time.Time) float64 {
	days, ok := DaysUntil(closeDate, now)
	if !ok {
		return OverdueDecay
	}
	return decayForDays(days)
}

func decayForDays(days int) float64 {
	switch {
	case days < 0:
		return OverdueDecay
	case days < 30:
		return 1.00
	case days < 90:
		return 0.95
	case days < 180:
		return 0.85
	case days <= 365:
		return 0.75
	default:
		return 0.60
	}
}

// WinProbability = clamp(scaled × stage multiplier × time decay, 0, 100)
func WinProbability(scaledScore float64, stage domain.Stage, closeDate domain.CloseDate, now time.Time) float64 {
	p := scaledScore * StageMultiplier(stage) * TimeDecay(closeDate, now)
	return formulas.Clamp(p, MinWinProb, MaxWinProb)
}
