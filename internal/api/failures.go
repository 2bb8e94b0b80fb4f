package api

import (
	"net/http"
	"strconv"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/store"
	"github.com/go-chi/chi/v5"
)

type FailureHandler struct {
	store *store.PostgresStore
}

func NewFailureHandler(s *store.PostgresStore) *FailureHandler {
	return &FailureHandler{store: s}
}

func (h *FailureHandler) List(w http.ResponseWriter, r *http.Request) {
	emailType := domain.EmailType(r.URL.Query().Get("email_type"))
	resolvedStr := r.URL.Query().Get("resolved")
	limitStr := r.URL.Query().Get("limit")

	resolved := false
	if resolvedStr == "true" {
		resolved = true
	}

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	failures, err := h.store.ListFailures(r.Context(), emailType, resolved, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list email failures")
		return
	}

	respondJSON(w, http.StatusOK, failures)
}

func (h *FailureHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	failure, err := h.store.GetFailure(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get email failure")
		return
	}
	if failure == nil {
		respondError(w, http.StatusNotFound, "email failure not found")
		return
	}

	respondJSON(w, http.StatusOK, failure)
}
