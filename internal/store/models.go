// Package store contains the database layer for podqueue.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of asynchronous work. The row itself is the lock:
// a job is owned by whichever worker moved it to processing.
type Job struct {
	ID          uuid.UUID
	Type        string
	Payload     json.RawMessage
	Status      JobStatus
	Retries     int
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// JobStatus represents the state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobFilter narrows ListJobs results. Zero values mean "any".
type JobFilter struct {
	Status JobStatus
	Type   string
	Limit  int
	Offset int
}

// LogEntry is a single line written by a job handler.
type LogEntry struct {
	ID        int64
	JobID     uuid.UUID
	Content   string
	CreatedAt time.Time
}

// PodcastStatus is the import state of a podcast.
type PodcastStatus string

const (
	PodcastStatusImporting PodcastStatus = "importing"
	PodcastStatusReady     PodcastStatus = "ready"
	PodcastStatusError     PodcastStatus = "error"
)

// Podcast is a subscribed RSS feed.
type Podcast struct {
	ID            uuid.UUID
	Title         string
	Description   string
	FeedURL       string
	ImageURL      string
	Author        string
	WebsiteURL    string
	Status        PodcastStatus
	ImportError   *string
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Episode is a single item of a podcast feed.
type Episode struct {
	ID          uuid.UUID
	PodcastID   uuid.UUID
	Title       string
	Description string
	ImageURL    string
	AudioURL    string
	PublishedAt *time.Time
	Duration    *int // seconds
	GUID        string
}

// Segment is a timed slice of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech-to-text output for an episode.
type Transcript struct {
	EpisodeID uuid.UUID
	Content   string
	Language  string
	Segments  []Segment
	AudioHash string
	CreatedAt time.Time
}

// Entity is a named thing mentioned in an episode.
type Entity struct {
	Name string
	Type string
}
