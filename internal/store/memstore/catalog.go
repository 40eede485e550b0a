package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"podqueue/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreatePodcast(ctx context.Context, tx store.DBTransaction, podcast *store.Podcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.podcasts {
		if p.FeedURL == podcast.FeedURL {
			return fmt.Errorf("podcast with feed %s already exists", podcast.FeedURL)
		}
	}

	if podcast.ID == uuid.Nil {
		podcast.ID = uuid.New()
	}
	if podcast.Status == "" {
		podcast.Status = store.PodcastStatusImporting
	}
	now := s.now()
	podcast.CreatedAt = now
	podcast.UpdatedAt = now

	p := *podcast
	s.podcasts[p.ID] = &p
	return nil
}

func (s *Store) GetPodcastByID(ctx context.Context, id uuid.UUID) (*store.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.podcasts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) GetPodcastByFeedURL(ctx context.Context, feedURL string) (*store.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.podcasts {
		if p.FeedURL == feedURL {
			c := *p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListStalePodcasts(ctx context.Context, cutoff time.Time) ([]store.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Podcast
	for _, p := range s.podcasts {
		if p.Status != store.PodcastStatusReady {
			continue
		}
		if p.LastScrapedAt == nil || p.LastScrapedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i].LastScrapedAt, out[k].LastScrapedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

func (s *Store) SaveImport(ctx context.Context, podcast *store.Podcast, episodes []store.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.podcasts[podcast.ID]
	if !ok {
		return fmt.Errorf("podcast %s: %w", podcast.ID, store.ErrNotFound)
	}

	now := s.now()
	p.Title = podcast.Title
	p.Description = podcast.Description
	p.ImageURL = podcast.ImageURL
	p.Author = podcast.Author
	p.WebsiteURL = podcast.WebsiteURL
	p.Status = store.PodcastStatusReady
	p.ImportError = nil
	p.LastScrapedAt = &now
	p.UpdatedAt = now

	for _, ep := range episodes {
		ep.PodcastID = p.ID
		if existing := s.findEpisode(p.ID, ep.GUID); existing != nil {
			ep.ID = existing.ID
		} else {
			ep.ID = uuid.New()
		}
		e := ep
		s.episodes[e.ID] = &e
	}
	return nil
}

func (s *Store) findEpisode(podcastID uuid.UUID, guid string) *store.Episode {
	for _, e := range s.episodes {
		if e.PodcastID == podcastID && e.GUID == guid {
			return e
		}
	}
	return nil
}

func (s *Store) MarkImporting(ctx context.Context, tx store.DBTransaction, podcastID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.podcasts[podcastID]
	if !ok {
		return nil
	}
	p.Status = store.PodcastStatusImporting
	p.ImportError = nil
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkImportFailed(ctx context.Context, podcastID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.podcasts[podcastID]
	if !ok {
		return nil
	}
	msg := message
	p.Status = store.PodcastStatusError
	p.ImportError = &msg
	p.UpdatedAt = s.now()
	return nil
}

// AddEpisode stores an episode directly. Used to seed local runs and tests.
func (s *Store) AddEpisode(ep store.Episode) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	s.episodes[ep.ID] = &ep
	return ep.ID
}

// EpisodesOf returns the episodes of a podcast ordered by guid.
func (s *Store) EpisodesOf(podcastID uuid.UUID) []store.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Episode
	for _, e := range s.episodes {
		if e.PodcastID == podcastID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].GUID < out[k].GUID })
	return out
}

func (s *Store) GetEpisodeByID(ctx context.Context, id uuid.UUID) (*store.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.episodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *Store) GetTranscript(ctx context.Context, episodeID uuid.UUID) (*store.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[episodeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	c.Segments = append([]store.Segment(nil), t.Segments...)
	return &c, nil
}

func (s *Store) HasTranscript(ctx context.Context, episodeID uuid.UUID, audioHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[episodeID]
	return ok && t.AudioHash == audioHash, nil
}

func (s *Store) ReplaceTranscript(ctx context.Context, t *store.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *t
	c.Segments = append([]store.Segment(nil), t.Segments...)
	c.CreatedAt = s.now()
	s.transcripts[t.EpisodeID] = &c
	return nil
}

func (s *Store) ReplaceSummary(ctx context.Context, episodeID uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[episodeID] = content
	return nil
}

// Summary returns the stored summary of an episode.
func (s *Store) Summary(episodeID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.summaries[episodeID]
	return v, ok
}

func (s *Store) LinkEntities(ctx context.Context, episodeID uuid.UUID, entities []store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	linked := s.entities[episodeID]
	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		if name == "" || containsEntity(linked, name) {
			continue
		}
		linked = append(linked, store.Entity{Name: name, Type: strings.TrimSpace(e.Type)})
	}
	s.entities[episodeID] = linked
	return nil
}

// Entities returns the entities linked to an episode.
func (s *Store) Entities(episodeID uuid.UUID) []store.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Entity(nil), s.entities[episodeID]...)
}

func containsEntity(list []store.Entity, name string) bool {
	for _, e := range list {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) LinkTopics(ctx context.Context, episodeID uuid.UUID, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	linked := s.topics[episodeID]
	for _, name := range topics {
		dup := false
		for _, t := range linked {
			if t == name {
				dup = true
				break
			}
		}
		if !dup {
			linked = append(linked, name)
		}
	}
	s.topics[episodeID] = linked
	return nil
}

// Topics returns the topics linked to an episode.
func (s *Store) Topics(episodeID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics[episodeID]...)
}
