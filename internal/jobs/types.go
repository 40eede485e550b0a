// Package jobs defines the closed set of job types, their payloads and the
// registry mapping each type to a handler and a concurrency limit.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"podqueue/internal/store"

	"github.com/google/uuid"
)

// Type names a kind of job. The set is closed: every Type has a handler.
type Type string

const (
	PodcastImport        Type = "podcast_import"
	EpisodeTranscription Type = "episode_transcription"
	EpisodeSummary       Type = "episode_summary"
	ExtractEntities      Type = "extract_entities"
	ExtractTopics        Type = "extract_topics"
	SyncPodcasts         Type = "sync_podcasts"
)

// All lists every job type.
var All = []Type{
	PodcastImport,
	EpisodeTranscription,
	EpisodeSummary,
	ExtractEntities,
	ExtractTopics,
	SyncPodcasts,
}

var defaultConcurrency = map[Type]int{
	PodcastImport:        3,
	EpisodeTranscription: 3,
	EpisodeSummary:       3,
	ExtractEntities:      5,
	ExtractTopics:        5,
	SyncPodcasts:         1,
}

// Valid reports whether t belongs to the closed set.
func (t Type) Valid() bool {
	_, ok := defaultConcurrency[t]
	return ok
}

// DefaultConcurrency returns the cluster-wide limit of concurrently processing jobs of type t.
func (t Type) DefaultConcurrency() int {
	if c, ok := defaultConcurrency[t]; ok {
		return c
	}
	return 1
}

func (t Type) String() string { return string(t) }

// PodcastImportPayload is the payload of podcast_import jobs.
type PodcastImportPayload struct {
	PodcastID uuid.UUID `json:"podcastId"`
	FeedURL   string    `json:"feedUrl"`
}

// EpisodePayload is the payload of every per-episode job.
type EpisodePayload struct {
	EpisodeID uuid.UUID `json:"episodeId"`
}

// Enqueue marshals payload and enqueues a job of type t. tx is optional.
func Enqueue(ctx context.Context, q store.Queue, tx store.DBTransaction, t Type, payload any) (*store.Job, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		raw = b
	}
	return q.Enqueue(ctx, tx, string(t), raw)
}
