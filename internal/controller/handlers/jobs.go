package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"podqueue/internal/jobs"
	"podqueue/internal/scheduler"
	"podqueue/internal/store"
	"podqueue/pkg/api"

	"github.com/google/uuid"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJobByID(r.Context(), jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, "Failed to fetch job", err)
		return
	}

	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /jobs?status=&type=&limit=&offset=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.JobFilter{Limit: defaultJobsLimit}

	if s := query.Get("status"); s != "" {
		status := store.JobStatus(s)
		if !status.Valid() {
			h.httpError(w, "Invalid status", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}

	if t := query.Get("type"); t != "" {
		if !jobs.Type(t).Valid() {
			h.httpError(w, "Invalid job type", http.StatusBadRequest)
			return
		}
		filter.Type = t
	}

	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			h.httpError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = min(parsed, maxJobsLimit)
	}

	if o := query.Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			h.httpError(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = parsed
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, "Failed to list jobs", err)
		return
	}

	resp := api.ListJobsResponse{Jobs: make([]api.JobResponse, len(list))}
	for i := range list {
		resp.Jobs[i] = toJobResponse(&list[i])
	}
	h.respondJson(w, http.StatusOK, resp)
}

// TriggerSync handles POST /internal/sync.
// It answers 202 when a sync job was queued and 200 when one was already active.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	job, created, err := scheduler.Trigger(r.Context(), h.store)
	if err != nil {
		h.internalError(w, r, "Failed to trigger sync", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	h.respondJson(w, status, api.SyncResponse{JobID: job.ID.String(), Created: created})
}
