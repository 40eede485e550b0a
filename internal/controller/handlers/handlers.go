// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"podqueue/internal/logger"
	"podqueue/internal/store"
	"podqueue/pkg/api"
)

// Store combines the interfaces the controller needs.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.Queue
	store.JobStore
	store.JobLogStore
	store.CatalogStore
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store  Store
	logger *slog.Logger
}

func New(s Store, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: s, logger: log}
}

func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// internalError logs err with the request id and returns a 500 with message.
func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger.FromContext(r.Context(), h.logger).Error(message, "error", err)
	h.httpError(w, message, http.StatusInternalServerError)
}

func toJobResponse(j *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:          j.ID.String(),
		Type:        j.Type,
		Status:      string(j.Status),
		Payload:     j.Payload,
		Retries:     j.Retries,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
	}
}
