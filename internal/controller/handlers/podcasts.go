package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"podqueue/internal/jobs"
	"podqueue/internal/store"
	"podqueue/pkg/api"

	"github.com/google/uuid"
)

// ImportPodcast handles POST /podcasts/import.
// A new feed URL creates the podcast and queues its import in one transaction.
// A podcast in the error state is reset and queued again. Any other existing
// podcast is returned as is.
func (h *Handlers) ImportPodcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ImportPodcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	feedURL := strings.TrimSpace(req.FeedURL)
	if !validFeedURL(feedURL) {
		h.httpError(w, "feed_url must be an http or https URL", http.StatusBadRequest)
		return
	}

	existing, err := h.store.GetPodcastByFeedURL(ctx, feedURL)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.internalError(w, r, "Failed to look up podcast", err)
		return
	}

	if existing != nil && existing.Status != store.PodcastStatusError {
		h.respondJson(w, http.StatusOK, api.ImportPodcastResponse{
			PodcastID: existing.ID.String(),
			Status:    string(existing.Status),
		})
		return
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.internalError(w, r, "Internal database error", err)
		return
	}
	defer tx.Rollback()

	isNew := existing == nil
	podcastID := uuid.New()
	if isNew {
		podcast := &store.Podcast{
			ID:      podcastID,
			Title:   "Importing...",
			FeedURL: feedURL,
			Status:  store.PodcastStatusImporting,
		}
		if err := h.store.CreatePodcast(ctx, tx, podcast); err != nil {
			h.internalError(w, r, "Failed to create podcast", err)
			return
		}
	} else {
		podcastID = existing.ID
		if err := h.store.MarkImporting(ctx, tx, podcastID); err != nil {
			h.internalError(w, r, "Failed to reset podcast", err)
			return
		}
	}

	job, err := jobs.Enqueue(ctx, h.store, tx, jobs.PodcastImport, jobs.PodcastImportPayload{
		PodcastID: podcastID,
		FeedURL:   feedURL,
	})
	if err != nil {
		h.internalError(w, r, "Failed to enqueue", err)
		return
	}

	if err := tx.Commit(); err != nil {
		h.internalError(w, r, "Failed to commit transaction", err)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.ImportPodcastResponse{
		PodcastID: podcastID.String(),
		JobID:     job.ID.String(),
		Status:    string(store.PodcastStatusImporting),
		IsNew:     isNew,
	})
}

func validFeedURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
