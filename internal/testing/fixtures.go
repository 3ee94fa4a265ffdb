package testing

import (
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/shopspring/decimal"
)

// FixtureNow is the clock the opportunity fixtures are dated against
var FixtureNow = time.Date(2025, time.June, 15, 14, 0, 0, 0, time.UTC)

// NewOpportunityFixtures returns a small pipeline covering every stage, a triage
// opportunity without a close date and one overdue deal
func NewOpportunityFixtures() []domain.Opportunity {
	return []domain.Opportunity{
		{
			ID:                   "opp-cisco-proposal",
			Name:                 "Network refresh",
			Amount:               decimal.NewFromInt(250000),
			Stage:                domain.StageProposal,
			CloseDate:            domain.NewCloseDate(2025, time.November, 15),
			OEMs:                 []string{"Cisco"},
			Partners:             []string{"WWT"},
			ContractVehicle:      "SEWP V",
			ContractsRecommended: []string{"SEWP V"},
			Region:               "East",
			CustomerOrg:          "DOD",
			SourceTags:           []string{"govly"},
		},
		{
			ID:                   "opp-dod-negotiation",
			Name:                 "Enterprise security",
			Amount:               decimal.NewFromInt(10000000),
			Stage:                domain.StageNegotiation,
			CloseDate:            domain.NewCloseDate(2025, time.June, 25),
			OEMs:                 []string{"Cisco"},
			Partners:             []string{"WWT", "Presidio"},
			ContractVehicle:      "SEWP V",
			ContractsRecommended: []string{"SEWP V", "GSA Schedule"},
			Region:               "East",
			CustomerOrg:          "DOD",
			SourceTags:           []string{"govly"},
		},
		{
			ID:     "opp-small-qualification",
			Amount: decimal.NewFromInt(8000),
			Stage:  domain.StageQualification,
		},
		{
			ID:        "opp-discovery-fy27",
			Amount:    decimal.RequireFromString("333.33"),
			Stage:     domain.StageDiscovery,
			CloseDate: domain.NewCloseDate(2026, time.December, 1),
			OEMs:      []string{"Unheard Of Systems"},
		},
		{
			ID:        "opp-overdue",
			Amount:    decimal.NewFromInt(75000),
			Stage:     domain.StageProposal,
			CloseDate: domain.NewCloseDate(2025, time.January, 10),
		},
		{
			ID:     "opp-won",
			Amount: decimal.NewFromInt(120000),
			Stage:  domain.StageClosedWon,
		},
	}
}

// NewInvalidOpportunityFixtures returns opportunities that fail validation
func NewInvalidOpportunityFixtures() []domain.Opportunity {
	return []domain.Opportunity{
		{ID: "", Amount: decimal.NewFromInt(100)},
		{ID: "opp-negative", Amount: decimal.NewFromInt(-5)},
	}
}
