package scoring

import (
	"fmt"
	"math"

	"github.com/aristath/opportunity-forecast/pkg/formulas"
)

const (
	// Composite bounds
	MinScore      = 0.0
	MaxScore      = 100.0
	MaxTotalBonus = 15.0

	// Contract-vehicle recommendation bonus
	MultipleVehiclesBonus = 7.0 // two or more recommended vehicles
	SingleVehicleBonus    = 5.0
)

// Weights for the five base dimensions (must sum to 1.0)
type Weights struct {
	OEMAlignment    float64 `json:"oem_alignment"`
	PartnerFit      float64 `json:"partner_fit"`
	ContractVehicle float64 `json:"contract_vehicle"`
	GovlyRelevance  float64 `json:"govly_relevance"`
	DealSize        float64 `json:"deal_size"`
}

// DefaultWeights returns the audited v2.1 weights
func DefaultWeights() Weights {
	return Weights{
		OEMAlignment:    0.25,
		PartnerFit:      0.15,
		ContractVehicle: 0.20,
		GovlyRelevance:  0.10,
		DealSize:        0.30,
	}
}

// Validate checks that weights are non-negative and sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"oem_alignment":    w.OEMAlignment,
		"partner_fit":      w.PartnerFit,
		"contract_vehicle": w.ContractVehicle,
		"govly_relevance":  w.GovlyRelevance,
		"deal_size":        w.DealSize,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	sum := w.OEMAlignment + w.PartnerFit + w.ContractVehicle + w.GovlyRelevance + w.DealSize
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Bonuses records the contextual bonuses before and after the guardrail
type Bonuses struct {
	Region                float64 `json:"region"`
	Customer              float64 `json:"customer"`
	VehicleRecommendation float64 `json:"vehicle_recommendation"`
	Requested             float64 `json:"requested"`
	Applied               float64 `json:"applied"`
	Scaled                bool    `json:"scaled"`
}

// Composite is the output of Score
type Composite struct {
	Raw     float64 `json:"raw"`
	Scaled  float64 `json:"scaled"`
	Bonuses Bonuses `json:"bonuses"`
	Clamped bool    `json:"clamped"`
}

// VehicleRecommendationBonus returns the bonus for the number of recommended vehicles
func VehicleRecommendationBonus(count int) float64 {
	switch {
	case count >= 2:
		return MultipleVehiclesBonus
	case count == 1:
		return SingleVehicleBonus
	default:
		return 0
	}
}

// Score combines the sub-scores with weights, then adds the capped bonuses.
// When the bonuses exceed MaxTotalBonus they are scaled proportionally so their
// relative sizes are kept and the total is exactly the cap.
func Score(f Features, w Weights) Composite {
	s := f.SubScores
	raw := w.OEMAlignment*s.OEMAlignment +
		w.PartnerFit*s.PartnerFit +
		w.ContractVehicle*s.ContractVehicle +
		w.GovlyRelevance*s.GovlyRelevance +
		w.DealSize*s.DealSize

	b := Bonuses{
		Region:                f.RegionBonus,
		Customer:              f.CustomerBonus,
		VehicleRecommendation: VehicleRecommendationBonus(f.RecommendedVehicles),
	}
	b.Requested = b.Region + b.Customer + b.VehicleRecommendation
	b.Applied = b.Requested

	if b.Requested > MaxTotalBonus {
		factor := MaxTotalBonus / b.Requested
		b.Region *= factor
		b.Customer *= factor
		b.VehicleRecommendation *= factor
		b.Applied = MaxTotalBonus
		b.Scaled = true
	}

	total := raw + b.Applied
	scaled := formulas.Clamp(total, MinScore, MaxScore)

	return Composite{
		Raw:     raw,
		Scaled:  scaled,
		Bonuses: b,
		Clamped: scaled != total,
	}
}
