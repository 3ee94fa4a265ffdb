package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all forecast routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/forecasts", func(r chi.Router) {
		r.Post("/score", h.HandleScore) // Score one opportunity
		r.Post("/batch", h.HandleBatch) // Score up to MaxBatchSize opportunities
		r.Get("/top", h.HandleTop)      // Ranked by win_prob, score or FY amount
		r.Get("/{id}", h.HandleGet)     // Latest forecast for an opportunity
	})

	r.Route("/audit", func(r chi.Router) {
		r.Get("/summary", h.HandleAuditSummary) // Aggregates per model version
		r.Get("/{id}", h.HandleAuditHistory)    // Every recorded run for an opportunity
	})

	r.Get("/reference", h.HandleReference)
}
