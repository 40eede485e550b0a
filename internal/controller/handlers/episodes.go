package handlers

import (
	"errors"
	"net/http"

	"podqueue/internal/jobs"
	"podqueue/internal/store"
	"podqueue/pkg/api"

	"github.com/google/uuid"
)

// EnqueueEpisodeJob returns a handler for POST /episodes/{id}/<action>
// that queues a job of type t for the episode.
func (h *Handlers) EnqueueEpisodeJob(t jobs.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		episodeID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			h.httpError(w, "Invalid episode id", http.StatusBadRequest)
			return
		}

		if _, err := h.store.GetEpisodeByID(ctx, episodeID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.httpError(w, "Episode not found", http.StatusNotFound)
				return
			}
			h.internalError(w, r, "Failed to look up episode", err)
			return
		}

		job, err := jobs.Enqueue(ctx, h.store, nil, t, jobs.EpisodePayload{EpisodeID: episodeID})
		if err != nil {
			h.internalError(w, r, "Failed to enqueue", err)
			return
		}

		h.respondJson(w, http.StatusAccepted, api.EnqueueResponse{JobID: job.ID.String()})
	}
}
