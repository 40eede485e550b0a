package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"podqueue/internal/jobs"
	"podqueue/internal/store"
	"podqueue/internal/store/memstore"

	"github.com/google/uuid"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// importPayloads returns the decoded payloads of all pending imports.
func importPayloads(t *testing.T, s *memstore.Store) []jobs.PodcastImportPayload {
	t.Helper()
	list, err := s.ListJobs(context.Background(), store.JobFilter{Type: string(jobs.PodcastImport), Status: store.JobStatusPending})
	if err != nil {
		t.Fatal(err)
	}
	var out []jobs.PodcastImportPayload
	for _, j := range list {
		var p jobs.PodcastImportPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p)
	}
	return out
}

func readyPodcast(t *testing.T, s *memstore.Store, feed string) *store.Podcast {
	t.Helper()
	p := &store.Podcast{FeedURL: feed}
	if err := s.CreatePodcast(context.Background(), nil, p); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveImport(context.Background(), p, nil); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestScanStale(t *testing.T) {
	s := memstore.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	s.SetClock(func() time.Time { return now })

	stale := readyPodcast(t, s, "https://stale.example.com/rss")
	now = base.Add(30 * time.Hour)
	readyPodcast(t, s, "https://fresh.example.com/rss")
	importing := &store.Podcast{FeedURL: "https://importing.example.com/rss"}
	s.CreatePodcast(context.Background(), nil, importing)

	scanner := NewScanner(s, s, s, 24*time.Hour, quietLogger())
	scanner.now = func() time.Time { return now }

	n, err := scanner.ScanStale(context.Background())
	if err != nil {
		t.Fatalf("ScanStale failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 scheduled import, got %d", n)
	}

	payloads := importPayloads(t, s)
	if len(payloads) != 1 || payloads[0].PodcastID != stale.ID || payloads[0].FeedURL != stale.FeedURL {
		t.Errorf("unexpected payloads: %+v", payloads)
	}

	// A second scan must not duplicate the pending import.
	n, err = scanner.ScanStale(context.Background())
	if err != nil {
		t.Fatalf("second ScanStale failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no new imports, got %d", n)
	}
}

func TestScanStale_NeverScraped(t *testing.T) {
	lister := stubLister{podcasts: []store.Podcast{{ID: uuid.New(), FeedURL: "https://a/rss", Status: store.PodcastStatusReady}}}
	q := memstore.New()

	scanner := NewScanner(lister, q, q, 0, quietLogger())
	n, err := scanner.ScanStale(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 import, got (%d, %v)", n, err)
	}
	if scanner.staleAfter != DefaultStaleAfter {
		t.Errorf("expected default stale window, got %v", scanner.staleAfter)
	}
}

func TestScanStale_ListError(t *testing.T) {
	q := memstore.New()
	scanner := NewScanner(stubLister{err: errors.New("db gone")}, q, q, 0, quietLogger())

	if _, err := scanner.ScanStale(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestScanner_Handle(t *testing.T) {
	q := memstore.New()
	lister := stubLister{podcasts: []store.Podcast{{ID: uuid.New()}, {ID: uuid.New()}}}
	scanner := NewScanner(lister, q, q, 0, quietLogger())

	syncJob, _ := jobs.Enqueue(context.Background(), q, nil, jobs.SyncPodcasts, nil)
	h := jobs.NewHandle(syncJob, quietLogger(), q)

	if err := scanner.Handle(context.Background(), h); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	logs, _ := q.GetJobLogs(context.Background(), syncJob.ID, 0, 10)
	if len(logs) != 1 || logs[0].Content != "[Sync] Scheduled 2 podcast imports" {
		t.Errorf("unexpected job logs: %+v", logs)
	}
}

type stubLister struct {
	podcasts []store.Podcast
	err      error
}

func (l stubLister) ListStalePodcasts(ctx context.Context, cutoff time.Time) ([]store.Podcast, error) {
	return l.podcasts, l.err
}
