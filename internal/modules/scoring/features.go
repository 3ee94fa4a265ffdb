// Package scoring turns an opportunity into five base dimension scores and combines them,
// with capped contextual bonuses, into a bounded composite score.
package scoring

import (
	"strings"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/aristath/opportunity-forecast/pkg/formulas"
)

const (
	// DefaultScore is used whenever a reference lookup misses
	DefaultScore = 50.0

	// NoVehicleScore applies when neither a contract vehicle nor a recommendation exists
	NoVehicleScore = 15.0

	// Partner fit
	PartnerBaseNone        = 50.0
	PartnerBaseAny         = 60.0
	PartnerPerExtra        = 5.0
	PartnerExtraCap        = 20.0
	PartnerPerAffiliated   = 10.0
	PartnerAffiliationsCap = 20.0

	// Government relevance
	GovlyTag         = "govly"
	GovlyScore       = 85.0
	GovernmentPerTag = 10.0
	GovernmentTagCap = 30.0
)

// Reference kinds reported when a lookup misses
const (
	RefOEM             = "oem"
	RefPartner         = "partner"
	RefContractVehicle = "contract_vehicle"
	RefRegion          = "region"
	RefCustomerOrg     = "customer_org"
)

// UnknownReference records a value that was not found in the reference tables.
// It is informational: the documented default is used and scoring continues.
type UnknownReference struct {
	Kind  string `json:"kind" msgpack:"kind"`
	Value string `json:"value" msgpack:"value"`
}

// Features is everything the composite scorer needs from one opportunity
type Features struct {
	SubScores           domain.SubScores   `json:"sub_scores" msgpack:"sub_scores"`
	MatchedOEM          string             `json:"matched_oem,omitempty" msgpack:"matched_oem"`
	RegionBonus         float64            `json:"region_bonus" msgpack:"region_bonus"`
	CustomerCategory    string             `json:"customer_category,omitempty" msgpack:"customer_category"`
	CustomerBonus       float64            `json:"customer_bonus" msgpack:"customer_bonus"`
	RecommendedVehicles int                `json:"recommended_vehicles" msgpack:"recommended_vehicles"`
	Unknown             []UnknownReference `json:"unknown,omitempty" msgpack:"unknown"`
}

// Extract maps an opportunity to its features. It never fails: unknown values degrade to
// documented defaults and are listed in Features.Unknown.
func Extract(opp domain.Opportunity, tables *reference.Tables) Features {
	f := Features{}

	f.SubScores.OEMAlignment, f.MatchedOEM = f.oemAlignment(opp.OEMs, tables)
	f.SubScores.PartnerFit = f.partnerFit(opp.Partners, opp.OEMs, tables)
	f.SubScores.ContractVehicle = f.contractVehicle(opp.ContractVehicle, opp.ContractsRecommended, tables)
	f.SubScores.GovlyRelevance = govlyRelevance(opp.SourceTags, tables)
	f.SubScores.DealSize = DealSizeScore(opp.AmountFloat())

	f.RegionBonus = f.regionBonus(opp.Region, tables)
	f.CustomerCategory, f.CustomerBonus = f.customerBonus(opp.CustomerOrg, tables)
	f.RecommendedVehicles = countDistinct(opp.ContractsRecommended)

	return f
}

func (f *Features) unknown(kind, value string) {
	f.Unknown = append(f.Unknown, UnknownReference{Kind: kind, Value: value})
}

// oemAlignment takes the best-aligned OEM on the deal
func (f *Features) oemAlignment(oems []string, tables *reference.Tables) (float64, string) {
	best := -1.0
	matched := ""
	for _, oem := range oems {
		if strings.TrimSpace(oem) == "" {
			continue
		}
		score, ok := tables.OEMAlignment(oem)
		if !ok {
			f.unknown(RefOEM, oem)
			score = DefaultScore
		}
		if score > best {
			best = score
			matched = oem
		}
	}
	if best < 0 {
		return DefaultScore, ""
	}
	return best, matched
}

func (f *Features) partnerFit(partners, oems []string, tables *reference.Tables) float64 {
	partners = nonEmpty(partners)
	if len(partners) == 0 {
		return PartnerBaseNone
	}

	extra := PartnerPerExtra * float64(len(partners)-1)
	if extra > PartnerExtraCap {
		extra = PartnerExtraCap
	}

	affiliated := 0.0
	for _, partner := range partners {
		oem, ok := tables.PartnerOEM(partner)
		if !ok {
			f.unknown(RefPartner, partner)
			continue
		}
		if containsOEM(oems, oem) {
			affiliated += PartnerPerAffiliated
		}
	}
	if affiliated > PartnerAffiliationsCap {
		affiliated = PartnerAffiliationsCap
	}

	return formulas.Clamp(PartnerBaseAny+extra+affiliated, 0, 100)
}

// contractVehicle scores the named vehicle, falling back to the best recommended one
func (f *Features) contractVehicle(vehicle string, recommended []string, tables *reference.Tables) float64 {
	if strings.TrimSpace(vehicle) != "" {
		if score, ok := tables.VehiclePriority(vehicle); ok {
			return score
		}
		f.unknown(RefContractVehicle, vehicle)
		return DefaultScore
	}

	recommended = nonEmpty(recommended)
	if len(recommended) == 0 {
		return NoVehicleScore
	}

	best := 0.0
	for _, rec := range recommended {
		score, ok := tables.VehiclePriority(rec)
		if !ok {
			f.unknown(RefContractVehicle, rec)
			score = DefaultScore
		}
		if score > best {
			best = score
		}
	}
	return best
}

func govlyRelevance(tags []string, tables *reference.Tables) float64 {
	seen := make(map[string]struct{})
	for _, tag := range tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == GovlyTag {
			return GovlyScore
		}
		if tables.IsGovernmentTag(key) {
			seen[key] = struct{}{}
		}
	}

	bonus := GovernmentPerTag * float64(len(seen))
	if bonus > GovernmentTagCap {
		bonus = GovernmentTagCap
	}
	return DefaultScore + bonus
}

func (f *Features) regionBonus(region string, tables *reference.Tables) float64 {
	if strings.TrimSpace(region) == "" {
		return 0
	}
	bonus, ok := tables.RegionBonus(region)
	if !ok {
		f.unknown(RefRegion, region)
		return 0
	}
	return bonus
}

func (f *Features) customerBonus(org string, tables *reference.Tables) (string, float64) {
	if strings.TrimSpace(org) == "" {
		return "", 0
	}
	category, ok := tables.CustomerCategory(org)
	if !ok {
		f.unknown(RefCustomerOrg, org)
		return "", 0
	}
	return category, tables.CategoryBonus(category)
}

func containsOEM(oems []string, oem string) bool {
	target := strings.ToLower(strings.TrimSpace(oem))
	for _, o := range oems {
		candidate := strings.ToLower(strings.TrimSpace(o))
		if candidate == "" {
			continue
		}
		if candidate == target || strings.Contains(candidate, target) || strings.Contains(target, candidate) {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func countDistinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key != "" {
			seen[key] = struct{}{}
		}
	}
	return len(seen)
}
