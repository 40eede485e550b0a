package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"podqueue/internal/store"
	"podqueue/pkg/api"

	"github.com/google/uuid"
)

// GetJobLogs handles GET /jobs/{id}/logs?after_id=&limit=.
// Clients follow a running job by passing the last id they saw as after_id.
func (h *Handlers) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	limit := 1000
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 10000 {
			limit = parsed
		}
	}

	var afterID int64
	if after := query.Get("after_id"); after != "" {
		if parsed, err := strconv.ParseInt(after, 10, 64); err == nil {
			afterID = parsed
		}
	}

	if _, err := h.store.GetJobByID(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "Failed to fetch job", err)
		return
	}

	logs, err := h.store.GetJobLogs(ctx, jobID, afterID, limit)
	if err != nil {
		h.internalError(w, r, "Failed to fetch logs", err)
		return
	}

	apiLogs := make([]api.LogEntry, len(logs))
	for i, entry := range logs {
		apiLogs[i] = api.LogEntry{
			ID:        entry.ID,
			Content:   entry.Content,
			CreatedAt: entry.CreatedAt,
		}
	}

	h.respondJson(w, http.StatusOK, api.GetLogsResponse{Logs: apiLogs})
}
