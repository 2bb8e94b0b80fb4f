package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/engine"
	"github.com/everkeep/email-retry-system/internal/store"
	"github.com/go-chi/chi/v5"
)

type RetryHandler struct {
	engine      *engine.Engine
	coordinator *engine.Coordinator
	lock        *engine.RunLock
	factory     engine.SendFactory
	store       *store.PostgresStore
	logger      *slog.Logger
}

func NewRetryHandler(e *engine.Engine, c *engine.Coordinator, lock *engine.RunLock, factory engine.SendFactory, s *store.PostgresStore, logger *slog.Logger) *RetryHandler {
	return &RetryHandler{
		engine:      e,
		coordinator: c,
		lock:        lock,
		factory:     factory,
		store:       s,
		logger:      logger,
	}
}

type retryResponse struct {
	Outcome     engine.Outcome `json:"outcome"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
}

// RetryOne runs the retry engine for a single failure record. The request
// blocks through the backoff sleep, so responses for deep retry counts can
// take up to the backoff cap.
func (h *RetryHandler) RetryOne(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	failure, err := h.store.GetFailure(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load email failure")
		return
	}
	if failure == nil {
		respondError(w, http.StatusNotFound, "email failure not found")
		return
	}

	result, err := h.engine.RetryFailure(r.Context(), id, h.factory(*failure))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			respondError(w, http.StatusNotFound, "email failure not found")
			return
		}
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "email failure changed concurrently")
			return
		}
		h.logger.Error("manual retry failed", "failure_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "retry failed")
		return
	}

	resp := retryResponse{Outcome: result.Outcome}
	if !result.NextRetryAt.IsZero() {
		resp.NextRetryAt = &result.NextRetryAt
	}
	respondJSON(w, http.StatusOK, resp)
}

type runBatchRequest struct {
	EmailType string `json:"email_type,omitempty"`
}

// RunBatch triggers a full retry run, guarded by the same lock the
// scheduler uses so a manual trigger cannot overlap a scheduled run.
func (h *RetryHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	token, ok, err := h.lock.Acquire(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to acquire retry run lock")
		return
	}
	if !ok {
		respondError(w, http.StatusConflict, "a retry run is already in progress")
		return
	}
	defer func() {
		// The request context may already be cancelled by the time the run
		// finishes; the lock must still be released.
		if err := h.lock.Release(context.WithoutCancel(r.Context()), token); err != nil {
			h.logger.Error("releasing retry run lock", "error", err)
		}
	}()

	summary, err := h.coordinator.RetryAll(r.Context(), h.factory, domain.EmailType(req.EmailType))
	if err != nil {
		h.logger.Error("manual retry run failed", "error", err)
		respondError(w, http.StatusInternalServerError, "retry run failed")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
