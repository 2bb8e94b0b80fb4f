package api

import (
	"net/http"

	"github.com/everkeep/email-retry-system/internal/engine"
	"github.com/everkeep/email-retry-system/internal/store"
)

type MetricsHandler struct {
	store  *store.PostgresStore
	policy engine.Policy
}

func NewMetricsHandler(s *store.PostgresStore, policy engine.Policy) *MetricsHandler {
	return &MetricsHandler{store: s, policy: policy}
}

func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetFailureMetrics(r.Context(), h.policy)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get failure metrics")
		return
	}

	respondJSON(w, http.StatusOK, metrics)
}
