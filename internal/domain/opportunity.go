// Package domain holds the opportunity and forecast models shared by every forecast component.
package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Opportunity is a read-only snapshot of a sales opportunity supplied by the ingestion layer
type Opportunity struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Amount               decimal.Decimal `json:"amount"`
	Stage                Stage           `json:"stage"`
	CloseDate            CloseDate       `json:"close_date"`
	OEMs                 []string        `json:"oems"`
	Partners             []string        `json:"partners"`
	ContractVehicle      string          `json:"contract_vehicle,omitempty"`
	ContractsRecommended []string        `json:"contracts_recommended"`
	Region               string          `json:"region,omitempty"`
	CustomerOrg          string          `json:"customer_org,omitempty"`
	SourceTags           []string        `json:"source_tags"`
}

// Validate checks the structural requirements for scoring
func (o *Opportunity) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if o.Amount.IsNegative() {
		return &ValidationError{OpportunityID: o.ID, Field: "amount", Reason: "must not be negative"}
	}
	if o.Stage == "" {
		o.Stage = StageUnknown
	}
	return nil
}

// AmountFloat returns the amount as float64 for score lookups
func (o *Opportunity) AmountFloat() float64 {
	f, _ := o.Amount.Float64()
	return f
}
