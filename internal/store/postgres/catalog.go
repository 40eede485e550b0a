package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"podqueue/internal/store"

	"github.com/google/uuid"
)

const podcastColumns = `id, title, description, feed_url, image_url, author, website_url, status, import_error, last_scraped_at, created_at, updated_at`

// CreatePodcast inserts a new podcast row in the importing state.
func (s *Store) CreatePodcast(ctx context.Context, tx store.DBTransaction, podcast *store.Podcast) error {
	if podcast.ID == uuid.Nil {
		podcast.ID = uuid.New()
	}
	if podcast.Status == "" {
		podcast.Status = store.PodcastStatusImporting
	}

	query := `
		INSERT INTO podcasts (id, title, feed_url, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := s.getExecutor(tx).QueryRowContext(ctx, query, podcast.ID, podcast.Title, podcast.FeedURL, podcast.Status).
		Scan(&podcast.CreatedAt, &podcast.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create podcast %s: %w", podcast.FeedURL, err)
	}
	return nil
}

func (s *Store) GetPodcastByID(ctx context.Context, id uuid.UUID) (*store.Podcast, error) {
	return s.getPodcast(ctx, "id = $1", id)
}

func (s *Store) GetPodcastByFeedURL(ctx context.Context, feedURL string) (*store.Podcast, error) {
	return s.getPodcast(ctx, "feed_url = $1", feedURL)
}

func (s *Store) getPodcast(ctx context.Context, where string, arg interface{}) (*store.Podcast, error) {
	podcast, err := scanPodcast(s.db.QueryRowContext(ctx, "SELECT "+podcastColumns+" FROM podcasts WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return podcast, err
}

// ListStalePodcasts returns ready podcasts that were never scraped or were last scraped before cutoff.
func (s *Store) ListStalePodcasts(ctx context.Context, cutoff time.Time) ([]store.Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+podcastColumns+`
		FROM podcasts
		WHERE status = $1
		  AND (last_scraped_at < $2 OR last_scraped_at IS NULL)
		ORDER BY last_scraped_at ASC NULLS FIRST
	`, store.PodcastStatusReady, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale podcasts query failed: %w", err)
	}
	defer rows.Close()

	var podcasts []store.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, *p)
	}

	return podcasts, rows.Err()
}

// SaveImport stores the result of a feed import in one transaction.
// Episodes are upserted on (podcast_id, guid) so re-imports are safe.
func (s *Store) SaveImport(ctx context.Context, podcast *store.Podcast, episodes []store.Episode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE podcasts
		SET title = $1, description = $2, image_url = $3, author = $4, website_url = $5,
		    status = $6, import_error = NULL, last_scraped_at = NOW(), updated_at = NOW()
		WHERE id = $7
	`, podcast.Title, podcast.Description, podcast.ImageURL, podcast.Author, podcast.WebsiteURL,
		store.PodcastStatusReady, podcast.ID)
	if err != nil {
		return fmt.Errorf("failed to update podcast %s: %w", podcast.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("podcast %s: %w", podcast.ID, store.ErrNotFound)
	}

	for _, ep := range episodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO episodes (id, podcast_id, title, description, image_url, audio_url, published_at, duration, guid)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (podcast_id, guid) DO UPDATE
			SET title = EXCLUDED.title,
			    description = EXCLUDED.description,
			    image_url = EXCLUDED.image_url,
			    audio_url = EXCLUDED.audio_url,
			    published_at = EXCLUDED.published_at,
			    duration = EXCLUDED.duration,
			    updated_at = NOW()
		`, uuid.New(), podcast.ID, ep.Title, ep.Description, ep.ImageURL, ep.AudioURL, ep.PublishedAt, ep.Duration, ep.GUID)
		if err != nil {
			return fmt.Errorf("failed to upsert episode %s: %w", ep.GUID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) MarkImporting(ctx context.Context, tx store.DBTransaction, podcastID uuid.UUID) error {
	_, err := s.getExecutor(tx).ExecContext(ctx, `
		UPDATE podcasts
		SET status = $1, import_error = NULL, updated_at = NOW()
		WHERE id = $2
	`, store.PodcastStatusImporting, podcastID)
	return err
}

// MarkImportFailed moves a podcast to the error state.
func (s *Store) MarkImportFailed(ctx context.Context, podcastID uuid.UUID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE podcasts
		SET status = $1, import_error = $2, updated_at = NOW()
		WHERE id = $3
	`, store.PodcastStatusError, message, podcastID)
	return err
}

func (s *Store) GetEpisodeByID(ctx context.Context, id uuid.UUID) (*store.Episode, error) {
	var (
		ep          store.Episode
		publishedAt sql.NullTime
		duration    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, podcast_id, title, description, image_url, audio_url, published_at, duration, guid
		FROM episodes
		WHERE id = $1
	`, id).Scan(&ep.ID, &ep.PodcastID, &ep.Title, &ep.Description, &ep.ImageURL, &ep.AudioURL, &publishedAt, &duration, &ep.GUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		ep.PublishedAt = &publishedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		ep.Duration = &d
	}
	return &ep, nil
}

func (s *Store) GetTranscript(ctx context.Context, episodeID uuid.UUID) (*store.Transcript, error) {
	var (
		t        store.Transcript
		segments []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT episode_id, content, language, segments, audio_hash, created_at
		FROM transcripts
		WHERE episode_id = $1
	`, episodeID).Scan(&t.EpisodeID, &t.Content, &t.Language, &segments, &t.AudioHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &t.Segments); err != nil {
			return nil, fmt.Errorf("invalid segments for episode %s: %w", episodeID, err)
		}
	}
	return &t, nil
}

func (s *Store) HasTranscript(ctx context.Context, episodeID uuid.UUID, audioHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM transcripts WHERE episode_id = $1 AND audio_hash = $2)",
		episodeID, audioHash).Scan(&exists)
	return exists, err
}

// ReplaceTranscript keeps a single transcript per episode.
func (s *Store) ReplaceTranscript(ctx context.Context, t *store.Transcript) error {
	segments := t.Segments
	if segments == nil {
		segments = []store.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (episode_id, content, language, segments, audio_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (episode_id) DO UPDATE
		SET content = EXCLUDED.content,
		    language = EXCLUDED.language,
		    segments = EXCLUDED.segments,
		    audio_hash = EXCLUDED.audio_hash,
		    created_at = NOW()
	`, t.EpisodeID, t.Content, t.Language, segmentsJSON, t.AudioHash)
	if err != nil {
		return fmt.Errorf("failed to save transcript for episode %s: %w", t.EpisodeID, err)
	}
	return nil
}

func (s *Store) ReplaceSummary(ctx context.Context, episodeID uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (episode_id, content)
		VALUES ($1, $2)
		ON CONFLICT (episode_id) DO UPDATE
		SET content = EXCLUDED.content, created_at = NOW()
	`, episodeID, content)
	return err
}

// LinkEntities resolves entity types and entities by name, creating them on first sight.
func (s *Store) LinkEntities(ctx context.Context, episodeID uuid.UUID, entities []store.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		typeName := strings.TrimSpace(e.Type)
		if name == "" {
			continue
		}

		var typeID sql.NullInt64
		if typeName != "" {
			err := tx.QueryRowContext(ctx, `
				INSERT INTO entity_types (name) VALUES ($1)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			`, typeName).Scan(&typeID)
			if err != nil {
				return fmt.Errorf("failed to resolve entity type %q: %w", typeName, err)
			}
		}

		var entityID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO entities (name, type_id) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET type_id = COALESCE(entities.type_id, EXCLUDED.type_id)
			RETURNING id
		`, name, typeID).Scan(&entityID)
		if err != nil {
			return fmt.Errorf("failed to resolve entity %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO episodes_entities (episode_id, entity_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, episodeID, entityID); err != nil {
			return fmt.Errorf("failed to link entity %q: %w", name, err)
		}
	}

	return tx.Commit()
}

func (s *Store) LinkTopics(ctx context.Context, episodeID uuid.UUID, topics []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range topics {
		var topicID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO topics (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&topicID)
		if err != nil {
			return fmt.Errorf("failed to resolve topic %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO episodes_topics (episode_id, topic_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, episodeID, topicID); err != nil {
			return fmt.Errorf("failed to link topic %q: %w", name, err)
		}
	}

	return tx.Commit()
}

func scanPodcast(row rowScanner) (*store.Podcast, error) {
	var (
		p             store.Podcast
		status        string
		importError   sql.NullString
		lastScrapedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.FeedURL, &p.ImageURL, &p.Author, &p.WebsiteURL,
		&status, &importError, &lastScrapedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Status = store.PodcastStatus(status)
	if importError.Valid {
		p.ImportError = &importError.String
	}
	if lastScrapedAt.Valid {
		p.LastScrapedAt = &lastScrapedAt.Time
	}
	return &p, nil
}
