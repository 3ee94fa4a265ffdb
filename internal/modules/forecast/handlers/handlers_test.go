package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/modules/forecasts"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryResults struct {
	byID map[string]*domain.ForecastResult
	err  error
}

func (m *memoryResults) Save(_ context.Context, r *domain.ForecastResult) error {
	m.byID[r.OpportunityID] = r
	return nil
}

func (m *memoryResults) Get(_ context.Context, id string) (*domain.ForecastResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byID[id], nil
}

func (m *memoryResults) Top(_ context.Context, by forecasts.RankBy, limit int) ([]*domain.ForecastResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*domain.ForecastResult, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryAudit struct {
	entries []featurestore.Entry
}

func (m *memoryAudit) Append(_ context.Context, e featurestore.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAudit) ListByOpportunity(_ context.Context, id string, limit int) ([]featurestore.Entry, error) {
	var out []featurestore.Entry
	for _, e := range m.entries {
		if e.OpportunityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAudit) Summary(_ context.Context, version string) (*featurestore.Summary, error) {
	return &featurestore.Summary{ModelVersion: version, Count: len(m.entries)}, nil
}

type fixture struct {
	router  chi.Router
	results *memoryResults
	audit   *memoryAudit
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	tables := reference.MustDefault()

	engine, err := forecast.NewEngine(tables, forecast.WithClock(func() time.Time {
		return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	results := &memoryResults{byID: map[string]*domain.ForecastResult{}}
	audit := &memoryAudit{}
	svc := forecast.NewService(engine, workers.NewWorkerPool(2), audit, results, log)

	h := NewHandler(svc, results, audit, tables, engine.ModelVersion(), log)
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)

	return &fixture{router: r, results: results, audit: audit}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const ciscoJSON = `{
	"id": "opp-cisco",
	"name": "Network refresh",
	"amount": "1000000",
	"stage": "proposal",
	"close_date": "2025-11-15",
	"oems": ["Cisco"],
	"region": "East",
	"customer_org": "DOD",
	"contracts_recommended": ["SEWP V", "GSA Schedule"]
}`

func TestHandleScore(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/score", ciscoJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var view forecast.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "opp-cisco", view.OpportunityID)
	assert.Equal(t, 89.0, view.ScoreScaled)
	assert.Equal(t, 75.5, view.ScoreRaw)
	assert.Equal(t, "FY26", view.FYBucket)
	assert.Equal(t, "750000.00", view.ProjectedAmountFY26)

	assert.Contains(t, f.results.byID, "opp-cisco")
	assert.Len(t, f.audit.entries, 1)
}

func TestHandleScore_InvalidBody(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/score", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleScore_ValidationError(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/score", `{"id": "neg", "amount": "-5"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "amount", body["field"])
	assert.Equal(t, "neg", body["opportunity_id"])
}

func TestHandleBatch(t *testing.T) {
	f := setup(t)

	body := `{"opportunities": [` + ciscoJSON + `, {"id": "", "amount": "1"}, {"id": "opp-small", "amount": "5000"}]}`
	w := f.do(t, http.MethodPost, "/api/forecasts/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, domain.ModelVersion, resp.ModelVersion)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "opp-cisco", resp.Results[0].OpportunityID)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, 1, resp.Failures[0].Index)
}

func TestHandleBatch_MalformedItemIsReportedNotFatal(t *testing.T) {
	f := setup(t)

	body := `{"opportunities": [{"id": "good", "amount": 250000, "stage": "Proposal"}, {"id": "bad", "amount": "n/a"}]}`
	w := f.do(t, http.MethodPost, "/api/forecasts/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "good", resp.Results[0].OpportunityID)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, 1, resp.Failures[0].Index)
	assert.Equal(t, "bad", resp.Failures[0].OpportunityID)
	assert.Equal(t, "amount", resp.Failures[0].Field)

	stored, err := f.results.Get(context.Background(), "good")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestHandleBatch_InvalidEnvelope(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/batch", `{"opportunities": "all of them"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/forecasts/batch", `{"opportunities": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleScore_MalformedField(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/score", `{"id": "bad", "amount": "n/a"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "amount", body["field"])
	assert.Equal(t, "bad", body["opportunity_id"])
}

func TestHandleBatch_Limits(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/forecasts/batch", `{"opportunities": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var buf bytes.Buffer
	buf.WriteString(`{"opportunities": [`)
	for i := 0; i <= MaxBatchSize; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"id":"x","amount":"1"}`)
	}
	buf.WriteString(`]}`)

	w = f.do(t, http.MethodPost, "/api/forecasts/batch", buf.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleGet(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forecasts/score", ciscoJSON).Code)

	w := f.do(t, http.MethodGet, "/api/forecasts/opp-cisco", "")
	require.Equal(t, http.StatusOK, w.Code)

	var view forecast.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "opp-cisco", view.OpportunityID)

	w = f.do(t, http.MethodGet, "/api/forecasts/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGet_StoreError(t *testing.T) {
	f := setup(t)
	f.results.err = errors.New("db closed")

	w := f.do(t, http.MethodGet, "/api/forecasts/opp-cisco", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleTop(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forecasts/score", ciscoJSON).Code)

	w := f.do(t, http.MethodGet, "/api/forecasts/top?by=fy26&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var views []forecast.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/forecasts/top?by=amount", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/forecasts/top?limit=abc", "").Code)
}

func TestHandleAudit(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forecasts/score", ciscoJSON).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forecasts/score", ciscoJSON).Code)

	w := f.do(t, http.MethodGet, "/api/audit/opp-cisco", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []featurestore.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	w = f.do(t, http.MethodGet, "/api/audit/unknown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/audit/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary featurestore.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, domain.ModelVersion, summary.ModelVersion)
	assert.Equal(t, 2, summary.Count)
}

func TestHandleReference(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/api/reference", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReferenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.ModelVersion, resp.ModelVersion)
	assert.Equal(t, 80.0, resp.Tables.OEMs["Cisco"].Alignment)
	assert.Equal(t, []string{"credit union", "bank", "inc", "llc", "ltd", "corp", "corporation", "company"}, resp.Tables.CommercialMarkers)

	require.Len(t, resp.Stages, len(domain.AllStages))
	assert.Equal(t, StageFactors{Stage: domain.StageProposal, Multiplier: 0.45, BaseVariance: 0.25}, resp.Stages[2])
	assert.Equal(t, StageFactors{Stage: domain.StageUnknown, Multiplier: 0.20, BaseVariance: 0.25}, resp.Stages[6])
}
