package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrEmptyJobType is returned by Enqueue for an empty type.
	ErrEmptyJobType = errors.New("job type is required")

	// ErrNotFound is returned when a catalog record does not exist.
	ErrNotFound = errors.New("record not found")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// JobStore exposes read access to job records for the API, CLI and scheduler.
type JobStore interface {
	// GetJobByID returns a job by its ID or ErrJobNotFound.
	GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)

	// ActivePayloads returns the payloads of pending or processing jobs of a type.
	ActivePayloads(ctx context.Context, jobType string) ([]json.RawMessage, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
}

// JobLogStore persists log lines written by job handlers.
type JobLogStore interface {
	AddJobLog(ctx context.Context, jobID uuid.UUID, content string) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID, afterID int64, limit int) ([]LogEntry, error)
}

// CatalogStore handles podcasts, episodes and their enrichment results.
type CatalogStore interface {
	// CreatePodcast inserts a podcast in the importing state.
	CreatePodcast(ctx context.Context, tx DBTransaction, podcast *Podcast) error

	GetPodcastByID(ctx context.Context, id uuid.UUID) (*Podcast, error)
	GetPodcastByFeedURL(ctx context.Context, feedURL string) (*Podcast, error)

	// ListStalePodcasts returns ready podcasts never scraped or last scraped before cutoff.
	ListStalePodcasts(ctx context.Context, cutoff time.Time) ([]Podcast, error)

	// SaveImport updates podcast metadata, marks it ready and upserts its episodes
	// in a single transaction.
	SaveImport(ctx context.Context, podcast *Podcast, episodes []Episode) error

	// MarkImporting moves a podcast back to importing and clears its import error.
	MarkImporting(ctx context.Context, tx DBTransaction, podcastID uuid.UUID) error

	// MarkImportFailed sets the podcast to the error state.
	MarkImportFailed(ctx context.Context, podcastID uuid.UUID, message string) error

	GetEpisodeByID(ctx context.Context, id uuid.UUID) (*Episode, error)

	// GetTranscript returns the transcript of an episode or ErrNotFound.
	GetTranscript(ctx context.Context, episodeID uuid.UUID) (*Transcript, error)

	// HasTranscript reports whether a transcript with the given audio hash exists.
	HasTranscript(ctx context.Context, episodeID uuid.UUID, audioHash string) (bool, error)

	// ReplaceTranscript deletes any previous transcript and stores t.
	ReplaceTranscript(ctx context.Context, t *Transcript) error

	// ReplaceSummary deletes any previous summary and stores content.
	ReplaceSummary(ctx context.Context, episodeID uuid.UUID, content string) error

	// LinkEntities upserts entity types and entities and links them to the episode.
	LinkEntities(ctx context.Context, episodeID uuid.UUID, entities []Entity) error

	// LinkTopics upserts topics by name and links them to the episode.
	LinkTopics(ctx context.Context, episodeID uuid.UUID, topics []string) error
}
