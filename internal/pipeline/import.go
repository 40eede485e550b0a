package pipeline

import (
	"context"
	"errors"
	"fmt"

	"podqueue/internal/feed"
	"podqueue/internal/jobs"
	"podqueue/internal/store"

	"github.com/google/uuid"
)

// ImportPodcast parses the feed and stores podcast metadata and episodes.
// On failure the podcast is moved to the error state and the error is
// returned so the attempt is retried.
func (p *Pipeline) ImportPodcast(ctx context.Context, job *jobs.Handle) error {
	var payload jobs.PodcastImportPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	if payload.PodcastID == uuid.Nil || payload.FeedURL == "" {
		return errors.New("podcast_import payload needs podcastId and feedUrl")
	}

	job.Logf(ctx, "[Import] Fetching feed %s for podcast %s", payload.FeedURL, payload.PodcastID)

	parsed, err := p.feeds.Parse(ctx, payload.FeedURL)
	if err != nil {
		return p.importFailed(ctx, job, payload.PodcastID, err)
	}

	podcast := &store.Podcast{
		ID:          payload.PodcastID,
		Title:       parsed.Title,
		Description: parsed.Description,
		FeedURL:     payload.FeedURL,
		ImageURL:    parsed.ImageURL,
		Author:      parsed.Author,
		WebsiteURL:  parsed.WebsiteURL,
	}

	episodes := make([]store.Episode, 0, len(parsed.Episodes))
	for _, ep := range parsed.Episodes {
		episodes = append(episodes, toStoreEpisode(payload.PodcastID, ep))
	}

	if err := p.catalog.SaveImport(ctx, podcast, episodes); err != nil {
		return p.importFailed(ctx, job, payload.PodcastID, err)
	}

	job.Logf(ctx, "[Import] Imported %q with %d episodes", parsed.Title, len(episodes))
	return nil
}

func (p *Pipeline) importFailed(ctx context.Context, job *jobs.Handle, podcastID uuid.UUID, cause error) error {
	job.Logf(ctx, "[Import] Failed: %v", cause)
	if err := p.catalog.MarkImportFailed(ctx, podcastID, cause.Error()); err != nil {
		job.Logger().ErrorContext(ctx, "failed to save import error", "podcast_id", podcastID, "error", err)
	}
	return fmt.Errorf("import podcast %s: %w", podcastID, cause)
}

func toStoreEpisode(podcastID uuid.UUID, ep feed.Episode) store.Episode {
	return store.Episode{
		PodcastID:   podcastID,
		Title:       ep.Title,
		Description: ep.Description,
		ImageURL:    ep.ImageURL,
		AudioURL:    ep.AudioURL,
		PublishedAt: ep.PublishedAt,
		Duration:    ep.Duration,
		GUID:        ep.GUID,
	}
}
