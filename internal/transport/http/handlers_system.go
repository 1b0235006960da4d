package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chronicle/internal/audit"
)

// SystemHandler receives completion reports from scheduled jobs (backup and
// restore runners) and forwards them to the async audit worker. The runner
// itself lives outside this service; this endpoint is its collaborator
// interface.
type SystemHandler struct {
	inbox  chan<- audit.Record
	logger *slog.Logger
}

// NewSystemHandler constructs the system event handler.
func NewSystemHandler(inbox chan<- audit.Record, logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{inbox: inbox, logger: logger}
}

// Register mounts the system event endpoint on the router.
func (h *SystemHandler) Register(r chi.Router) {
	r.Post("/system/events", h.handleSystemEvent)
}

type systemEventRequest struct {
	Label      string         `json:"label"`
	Status     string         `json:"status"`
	DurationMs int64          `json:"durationMs"`
	Errors     []string       `json:"errors"`
	Before     audit.Snapshot `json:"before"`
}

func (h *SystemHandler) handleSystemEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[systemEventRequest](w, r)
	if !ok {
		return
	}
	if req.Label == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "label and status are required")
		return
	}

	after := audit.Snapshot{
		"status":     req.Status,
		"durationMs": req.DurationMs,
	}
	if len(req.Errors) > 0 {
		after["errors"] = req.Errors
	}

	record := audit.Record{
		Action:     audit.ActionSystem,
		EntityType: req.Label,
		Before:     req.Before,
		After:      after,
	}
	record.ActorID, record.SourceIP, record.SessionKey = audit.Attribution(r.Context())

	select {
	case h.inbox <- record:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		// Inbox full: the job already completed, so drop rather than block
		// the reporter; same best-effort policy as every other append.
		h.logger.WarnContext(r.Context(), "system event inbox full, record dropped",
			"label", req.Label)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dropped"})
	}
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return req, false
	}
	return req, true
}
