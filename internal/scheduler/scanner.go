// Package scheduler finds podcasts whose feeds need a refresh and enqueues
// import jobs for them, either on a cron schedule or on demand.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"podqueue/internal/jobs"
	"podqueue/internal/store"

	"github.com/google/uuid"
)

// DefaultStaleAfter is how old a feed scrape may get before a refresh is scheduled.
const DefaultStaleAfter = 24 * time.Hour

// PodcastLister is the part of the catalog the scanner reads.
type PodcastLister interface {
	ListStalePodcasts(ctx context.Context, cutoff time.Time) ([]store.Podcast, error)
}

// ActiveLister reports the payloads of jobs not yet in a terminal state.
type ActiveLister interface {
	ActivePayloads(ctx context.Context, jobType string) ([]json.RawMessage, error)
}

// Scanner enqueues podcast_import jobs for stale podcasts.
type Scanner struct {
	podcasts   PodcastLister
	active     ActiveLister
	queue      store.Queue
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewScanner creates a scanner. staleAfter <= 0 means DefaultStaleAfter.
func NewScanner(podcasts PodcastLister, active ActiveLister, queue store.Queue, staleAfter time.Duration, logger *slog.Logger) *Scanner {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		podcasts:   podcasts,
		active:     active,
		queue:      queue,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// ScanStale enqueues an import for every ready podcast last scraped before
// now-staleAfter (or never), skipping podcasts that already have an import
// pending or processing. It returns the number of jobs enqueued.
func (s *Scanner) ScanStale(ctx context.Context) (int, error) {
	payloads, err := s.active.ActivePayloads(ctx, string(jobs.PodcastImport))
	if err != nil {
		return 0, fmt.Errorf("failed to list active imports: %w", err)
	}

	inFlight := make(map[uuid.UUID]struct{}, len(payloads))
	for _, raw := range payloads {
		var p jobs.PodcastImportPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping unreadable import payload", "error", err)
			continue
		}
		inFlight[p.PodcastID] = struct{}{}
	}

	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.podcasts.ListStalePodcasts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale podcasts: %w", err)
	}

	scheduled := 0
	for _, p := range stale {
		if _, ok := inFlight[p.ID]; ok {
			continue
		}
		payload := jobs.PodcastImportPayload{PodcastID: p.ID, FeedURL: p.FeedURL}
		if _, err := jobs.Enqueue(ctx, s.queue, nil, jobs.PodcastImport, payload); err != nil {
			return scheduled, fmt.Errorf("failed to schedule import of podcast %s: %w", p.ID, err)
		}
		inFlight[p.ID] = struct{}{}
		scheduled++
	}

	s.logger.Info("stale podcast scan finished", "stale", len(stale), "scheduled", scheduled, "cutoff", cutoff)
	return scheduled, nil
}

// Handle is the sync_podcasts job handler.
func (s *Scanner) Handle(ctx context.Context, job *jobs.Handle) error {
	n, err := s.ScanStale(ctx)
	if err != nil {
		return err
	}
	job.Logf(ctx, "[Sync] Scheduled %d podcast imports", n)
	return nil
}
