package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"podqueue/internal/store"

	"github.com/google/uuid"
)

// LogSink stores log lines written by handlers so they can be read back per job.
type LogSink interface {
	AddJobLog(ctx context.Context, jobID uuid.UUID, content string) error
}

// Handle is what a handler sees of the job it is running.
type Handle struct {
	ID      uuid.UUID
	Type    Type
	Payload json.RawMessage
	Retries int

	logger *slog.Logger
	sink   LogSink
}

// NewHandle wraps a claimed job. sink may be nil.
func NewHandle(job *store.Job, logger *slog.Logger, sink LogSink) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		ID:      job.ID,
		Type:    Type(job.Type),
		Payload: job.Payload,
		Retries: job.Retries,
		logger:  logger.With("job_id", job.ID.String(), "job_type", job.Type),
		sink:    sink,
	}
}

// Decode unmarshals the payload into v.
func (h *Handle) Decode(v any) error {
	if err := json.Unmarshal(h.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", h.Type, err)
	}
	return nil
}

// Logf writes a line to the process log and to the job's log.
// A failing sink never fails the job.
func (h *Handle) Logf(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	h.logger.InfoContext(ctx, msg)

	if h.sink == nil {
		return
	}
	if err := h.sink.AddJobLog(ctx, h.ID, msg); err != nil {
		h.logger.WarnContext(ctx, "failed to store job log", "error", err)
	}
}

// Logger returns the handle's structured logger.
func (h *Handle) Logger() *slog.Logger {
	return h.logger
}
