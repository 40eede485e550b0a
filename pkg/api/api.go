// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// ImportPodcastRequest is the request body for importing a feed.
type ImportPodcastRequest struct {
	FeedURL string `json:"feed_url"`
}

// ImportPodcastResponse is returned by POST /podcasts/import.
// JobID is empty when an existing podcast did not need a new import.
type ImportPodcastResponse struct {
	PodcastID string `json:"podcast_id"`
	JobID     string `json:"job_id,omitempty"`
	Status    string `json:"status"`
	IsNew     bool   `json:"is_new"`
}

// EnqueueResponse is returned by every endpoint that queues a job.
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// SyncResponse is returned by POST /internal/sync.
type SyncResponse struct {
	JobID   string `json:"job_id"`
	Created bool   `json:"created"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Retries     int             `json:"retries"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListJobsResponse is the response body of GET /jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// LogEntry represents a single log line in the response.
type LogEntry struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GetLogsResponse is the response body for fetching logs.
type GetLogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// Terminal reports whether a job status can no longer change.
func Terminal(status string) bool {
	return status == "completed" || status == "failed"
}
