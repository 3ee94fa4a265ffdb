// Package handlers provides HTTP handlers for the forecast API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/modules/forecasts"
	"github.com/aristath/opportunity-forecast/internal/modules/probability"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	// MaxBatchSize caps the number of opportunities per batch request
	MaxBatchSize = 10000

	maxBodyBytes   = 32 << 20
	defaultTop     = 20
	defaultHistory = 100
)

// Forecaster scores opportunities
type Forecaster interface {
	ForecastOne(ctx context.Context, opp domain.Opportunity) (*domain.ForecastResult, error)
	ForecastRecords(ctx context.Context, records []domain.Record, progress workers.ProgressFunc) *forecast.BatchResult
}

// ForecastReader reads stored forecasts
type ForecastReader interface {
	Get(ctx context.Context, opportunityID string) (*domain.ForecastResult, error)
	Top(ctx context.Context, by forecasts.RankBy, limit int) ([]*domain.ForecastResult, error)
}

// AuditReader reads the feature store
type AuditReader interface {
	ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]featurestore.Entry, error)
	Summary(ctx context.Context, modelVersion string) (*featurestore.Summary, error)
}

// Handler provides HTTP handlers for the forecast module
type Handler struct {
	forecaster   Forecaster
	results      ForecastReader
	audit        AuditReader
	tables       *reference.Tables
	modelVersion string
	log          zerolog.Logger
}

// NewHandler creates a new forecast handler
func NewHandler(
	forecaster Forecaster,
	results ForecastReader,
	audit AuditReader,
	tables *reference.Tables,
	modelVersion string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		forecaster:   forecaster,
		results:      results,
		audit:        audit,
		tables:       tables,
		modelVersion: modelVersion,
		log:          log.With().Str("handler", "forecast").Logger(),
	}
}

// BatchRequest is the body of POST /api/forecasts/batch. Elements are decoded
// one by one so a malformed opportunity fails alone.
type BatchRequest struct {
	Opportunities []json.RawMessage `json:"opportunities"`
}

// BatchResponse is the presentation form of a batch result
type BatchResponse struct {
	RunID         string             `json:"run_id"`
	ModelVersion  string             `json:"model_version"`
	Results       []forecast.View    `json:"results"`
	Failures      []forecast.Failure `json:"failures"`
	AuditFailures int                `json:"audit_failures"`
	DurationMs    int64              `json:"duration_ms"`
}

// ReferenceResponse describes the model configuration in effect
type ReferenceResponse struct {
	ModelVersion string         `json:"model_version"`
	Tables       reference.Spec `json:"tables"`
	Stages       []StageFactors `json:"stages"`
}

// StageFactors are the per-stage probability parameters
type StageFactors struct {
	Stage        domain.Stage `json:"stage"`
	Multiplier   float64      `json:"multiplier"`
	BaseVariance float64      `json:"base_variance"`
}

func stageFactors() []StageFactors {
	factors := make([]StageFactors, 0, len(domain.AllStages))
	for _, stage := range domain.AllStages {
		factors = append(factors, StageFactors{
			Stage:        stage,
			Multiplier:   probability.StageMultiplier(stage),
			BaseVariance: probability.BaseVariance(stage),
		})
	}
	return factors
}

// HandleScore handles POST /api/forecasts/score
func (h *Handler) HandleScore(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := h.decode(w, r, &raw); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record := domain.DecodeRecord(raw)
	if record.Err != nil {
		h.writeForecastError(w, record.Err)
		return
	}

	result, err := h.forecaster.ForecastOne(r.Context(), record.Opportunity)
	if err != nil {
		h.writeForecastError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, forecast.NewView(result))
}

// HandleBatch handles POST /api/forecasts/batch
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Opportunities) == 0 {
		h.writeError(w, "At least one opportunity is required", http.StatusBadRequest)
		return
	}
	if len(req.Opportunities) > MaxBatchSize {
		h.writeError(w, "Batch exceeds maximum size of "+strconv.Itoa(MaxBatchSize), http.StatusRequestEntityTooLarge)
		return
	}

	batch := h.forecaster.ForecastRecords(r.Context(), domain.DecodeRawRecords(req.Opportunities), nil)

	h.writeJSON(w, http.StatusOK, BatchResponse{
		RunID:         batch.RunID,
		ModelVersion:  batch.ModelVersion,
		Results:       forecast.NewViews(batch.Results),
		Failures:      batch.Failures,
		AuditFailures: batch.AuditFailures,
		DurationMs:    batch.Duration.Milliseconds(),
	})
}

// HandleTop handles GET /api/forecasts/top?by=win_prob&limit=20
func (h *Handler) HandleTop(w http.ResponseWriter, r *http.Request) {
	by, err := forecasts.ParseRankBy(r.URL.Query().Get("by"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultTop)
	if err != nil {
		h.writeError(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	results, err := h.results.Top(r.Context(), by, limit)
	if err != nil {
		h.log.Error().Err(err).Str("by", string(by)).Msg("Failed to load top forecasts")
		h.writeError(w, "Failed to load forecasts", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, forecast.NewViews(results))
}

// HandleGet handles GET /api/forecasts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.results.Get(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("opportunity_id", id).Msg("Failed to load forecast")
		h.writeError(w, "Failed to load forecast", http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.writeError(w, "Forecast not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, forecast.NewView(result))
}

// HandleAuditHistory handles GET /api/audit/{id}
func (h *Handler) HandleAuditHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := queryInt(r, "limit", defaultHistory)
	if err != nil {
		h.writeError(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	entries, err := h.audit.ListByOpportunity(r.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("opportunity_id", id).Msg("Failed to load audit history")
		h.writeError(w, "Failed to load audit history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []featurestore.Entry{}
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// HandleAuditSummary handles GET /api/audit/summary?model_version=...
func (h *Handler) HandleAuditSummary(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("model_version")
	if version == "" {
		version = h.modelVersion
	}

	summary, err := h.audit.Summary(r.Context(), version)
	if err != nil {
		h.log.Error().Err(err).Str("model_version", version).Msg("Failed to summarize audit log")
		h.writeError(w, "Failed to summarize audit log", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleReference handles GET /api/reference
func (h *Handler) HandleReference(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ReferenceResponse{
		ModelVersion: h.modelVersion,
		Tables:       h.tables.Spec(),
		Stages:       stageFactors(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode request body")
		return err
	}
	return nil
}

func (h *Handler) writeForecastError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":          verr.Error(),
			"field":          verr.Field,
			"opportunity_id": verr.OpportunityID,
		})
		return
	}
	h.log.Error().Err(err).Msg("Forecast failed")
	h.writeError(w, "Forecast failed", http.StatusInternalServerError)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid integer")
	}
	return v, nil
}

// writeJSON writes a JSON response with status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
