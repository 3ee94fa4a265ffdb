package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const opportunities = `[
  {"id": "low", "amount": 5000, "stage": "Qualification", "close_date": "2026-03-01"},
  {"id": "high", "amount": 10000000, "stage": "Negotiation", "close_date": "2025-12-01",
   "oems": ["Cisco"], "partners": ["WWT", "Presidio"], "contract_vehicle": "SEWP V",
   "contracts_recommended": ["SEWP V", "GSA Schedule"], "region": "East",
   "customer_org": "DOD", "source_tags": ["govly"]},
  {"id": "", "amount": 100},
  {"id": "typo", "amount": "lots"}
]`

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opps.json")
	require.NoError(t, os.WriteFile(path, []byte(opportunities), 0644))
	return path
}

func TestRun_Table(t *testing.T) {
	var out bytes.Buffer
	err := run(writeInput(t), "", "", 0, false, 2, &out, zerolog.Nop())
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "OPPORTUNITY")
	assert.Less(t, strings.Index(text, "high"), strings.Index(text, "low"), "ranked by win probability")
	assert.Contains(t, text, "2 opportunities skipped")
	assert.Contains(t, text, "#3 typo")
}

func TestRun_JSONTop(t *testing.T) {
	var out bytes.Buffer
	err := run(writeInput(t), "", "", 1, true, 2, &out, zerolog.Nop())
	require.NoError(t, err)

	var decoded struct {
		RunID   string `json:"run_id"`
		Results []struct {
			OpportunityID string  `json:"opportunity_id"`
			WinProb       float64 `json:"win_prob"`
		} `json:"results"`
		Failures []struct {
			Index int    `json:"index"`
			Field string `json:"field"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.NotEmpty(t, decoded.RunID)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "high", decoded.Results[0].OpportunityID)
	require.Len(t, decoded.Failures, 2)
	assert.Equal(t, 2, decoded.Failures[0].Index)
	assert.Equal(t, 3, decoded.Failures[1].Index)
	assert.Equal(t, "amount", decoded.Failures[1].Field)
}

func TestRun_WithAudit(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.db")
	var out bytes.Buffer
	require.NoError(t, run(writeInput(t), "", auditPath, 0, true, 2, &out, zerolog.Nop()))

	_, err := os.Stat(auditPath)
	assert.NoError(t, err)
}

func TestRun_MissingInput(t *testing.T) {
	var out bytes.Buffer
	err := run(filepath.Join(t.TempDir(), "nope.json"), "", "", 0, false, 2, &out, zerolog.Nop())
	assert.Error(t, err)
}
