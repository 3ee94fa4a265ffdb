package domain

import (
	"encoding/json"
	"strings"
)

// Stage represents a sales-pipeline stage
type Stage string

const (
	StageQualification Stage = "Qualification"
	StageDiscovery     Stage = "Discovery"
	StageProposal      Stage = "Proposal"
	StageNegotiation   Stage = "Negotiation"
	StageClosedWon     Stage = "ClosedWon"
	StageClosedLost    Stage = "ClosedLost"
	StageUnknown       Stage = "Unknown"
)

// AllStages lists every stage in pipeline order
var AllStages = []Stage{
	StageQualification,
	StageDiscovery,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
	StageUnknown,
}

// ParseStage normalizes CRM stage labels. Anything unrecognised is StageUnknown.
func ParseStage(s string) Stage {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)

	switch key {
	case "qualification", "qualify", "qualified":
		return StageQualification
	case "discovery":
		return StageDiscovery
	case "proposal", "proposalsubmitted":
		return StageProposal
	case "negotiation", "negotiate":
		return StageNegotiation
	case "closedwon", "won":
		return StageClosedWon
	case "closedlost", "lost":
		return StageClosedLost
	default:
		return StageUnknown
	}
}

// UnmarshalJSON accepts any string and never fails on unknown labels
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = StageUnknown
		return nil
	}
	*s = ParseStage(raw)
	return nil
}
