// Package pipeline contains the job handlers that import podcasts and
// enrich episodes with transcripts, summaries, entities and topics.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"podqueue/internal/ai"
	"podqueue/internal/feed"
	"podqueue/internal/jobs"
	"podqueue/internal/store"
	"podqueue/internal/transcribe"
)

// MaxTranscriptChars caps the transcript text sent to the model.
const MaxTranscriptChars = 500000

// FeedParser fetches and parses a podcast feed.
type FeedParser interface {
	Parse(ctx context.Context, feedURL string) (*feed.Podcast, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, filename string, r io.Reader) (*transcribe.Result, error)
	TranscribeURL(ctx context.Context, audioURL string) (*transcribe.Result, error)
}

// Generator produces text and structured data from transcripts.
type Generator interface {
	Summarize(ctx context.Context, title, language, transcript string) (string, error)
	ExtractEntities(ctx context.Context, transcript string) ([]ai.Entity, error)
	ExtractTopics(ctx context.Context, transcript, language string) ([]string, error)
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Catalog     store.CatalogStore
	Queue       store.Queue
	Feeds       FeedParser
	Transcriber Transcriber
	Generator   Generator

	// HTTPClient downloads episode audio. Defaults to a client with a 30 minute timeout.
	HTTPClient *http.Client
	// TempDir holds downloaded audio. Defaults to os.TempDir().
	TempDir string
	// MaxUploadSize is the largest audio file uploaded to the transcriber;
	// larger files are transcribed by URL. Defaults to transcribe.MaxUploadSize.
	MaxUploadSize int64
}

// Pipeline holds the job handlers.
type Pipeline struct {
	catalog     store.CatalogStore
	queue       store.Queue
	feeds       FeedParser
	transcriber Transcriber
	generator   Generator
	httpClient  *http.Client
	tempDir     string
	maxUpload   int64
}

func New(d Deps) *Pipeline {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if d.TempDir == "" {
		d.TempDir = os.TempDir()
	}
	if d.MaxUploadSize <= 0 {
		d.MaxUploadSize = transcribe.MaxUploadSize
	}
	return &Pipeline{
		catalog:     d.Catalog,
		queue:       d.Queue,
		feeds:       d.Feeds,
		transcriber: d.Transcriber,
		generator:   d.Generator,
		httpClient:  d.HTTPClient,
		tempDir:     d.TempDir,
		maxUpload:   d.MaxUploadSize,
	}
}

// Registrations returns the handler of every job type. sync handles
// sync_podcasts, which lives with the scheduler.
func (p *Pipeline) Registrations(sync jobs.Handler) map[jobs.Type]jobs.Registration {
	return map[jobs.Type]jobs.Registration{
		jobs.PodcastImport:        {Handler: p.ImportPodcast},
		jobs.EpisodeTranscription: {Handler: p.TranscribeEpisode},
		jobs.EpisodeSummary:       {Handler: p.SummarizeEpisode},
		jobs.ExtractEntities:      {Handler: p.ExtractEntities},
		jobs.ExtractTopics:        {Handler: p.ExtractTopics},
		jobs.SyncPodcasts:         {Handler: sync},
	}
}
