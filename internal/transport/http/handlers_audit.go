package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chronicle/internal/audit"
	"chronicle/internal/rollback"
	"chronicle/pkg/requestcontext"
	"chronicle/pkg/sentinel"
)

// Handler is the thin administrative surface over the audit trail: record
// queries and replay. It delegates to the store and the rollback engine
// without embedding engine logic.
type Handler struct {
	records  audit.Store
	rollback *rollback.Engine
	logger   *slog.Logger
}

// NewHandler constructs the audit admin handler.
func NewHandler(records audit.Store, rb *rollback.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{records: records, rollback: rb, logger: logger}
}

// Register mounts the audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/records", h.handleListRecords)
	r.Get("/audit/records/{id}", h.handleGetRecord)
	r.Post("/audit/records/{id}/rollback", h.handleRollback)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		ActorID:    q.Get("actor"),
		Action:     audit.Action(q.Get("action")),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", "until must be RFC3339")
			return
		}
		filter.Until = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_filter", "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	records, err := h.records.Find(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not query audit records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "record id must be a UUID")
		return
	}

	record, err := h.records.FindByID(r.Context(), id)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record_not_found", "no such audit record")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not load audit record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleRollback resolves the record and asks the engine to restore the
// entity. Failure reasons are surfaced specifically so operators can decide
// whether to intervene manually.
func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "record id must be a UUID")
		return
	}

	record, err := h.records.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record_not_found", "no such audit record")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not load audit record")
		return
	}

	restored, err := h.rollback.Rollback(ctx, record)
	switch {
	case errors.Is(err, rollback.ErrNotRollbackable):
		writeError(w, http.StatusUnprocessableEntity, "not_rollbackable", err.Error())
		return
	case errors.Is(err, rollback.ErrEntityGone):
		writeError(w, http.StatusConflict, "entity_gone", err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "rollback failed",
			"error", err,
			"record_id", id,
			"actor", requestcontext.ActorID(ctx),
		)
		writeError(w, http.StatusInternalServerError, "rollback_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "restored",
		"entityType": record.EntityType,
		"entityId":   record.EntityID,
		"entity":     restored,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
