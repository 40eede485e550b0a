package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"podqueue/internal/jobs"
	"podqueue/internal/store"

	"github.com/google/uuid"
)

// SummarizeEpisode writes a markdown summary with timestamp references.
func (p *Pipeline) SummarizeEpisode(ctx context.Context, job *jobs.Handle) error {
	episode, err := p.loadEpisode(ctx, job)
	if err != nil {
		return err
	}
	transcript, err := p.loadTranscript(ctx, episode.ID)
	if err != nil {
		return err
	}

	job.Logf(ctx, "[Summary] Starting summary for episode %s", episode.ID)

	summary, err := p.generator.Summarize(ctx, episode.Title, transcript.Language, timestampedInput(transcript))
	if err != nil {
		return fmt.Errorf("summary of episode %s failed: %w", episode.ID, err)
	}

	if err := p.catalog.ReplaceSummary(ctx, episode.ID, summary); err != nil {
		return err
	}
	job.Logf(ctx, "[Summary] Summary generated and saved")
	return nil
}

// ExtractEntities links the people, places and organizations of an episode.
func (p *Pipeline) ExtractEntities(ctx context.Context, job *jobs.Handle) error {
	transcript, err := p.transcriptFor(ctx, job)
	if err != nil {
		return err
	}

	extracted, err := p.generator.ExtractEntities(ctx, plainInput(transcript))
	if err != nil {
		return fmt.Errorf("entity extraction for episode %s failed: %w", transcript.EpisodeID, err)
	}
	if len(extracted) == 0 {
		job.Logf(ctx, "[Entities] No entities found for episode %s", transcript.EpisodeID)
		return nil
	}

	entities := make([]store.Entity, 0, len(extracted))
	for _, e := range extracted {
		entities = append(entities, store.Entity{Name: e.Name, Type: e.Type})
	}

	job.Logf(ctx, "[Entities] Found %d entities. Upserting...", len(entities))
	if err := p.catalog.LinkEntities(ctx, transcript.EpisodeID, entities); err != nil {
		return err
	}
	return nil
}

// ExtractTopics links the topics of an episode, in the transcript's language.
func (p *Pipeline) ExtractTopics(ctx context.Context, job *jobs.Handle) error {
	transcript, err := p.transcriptFor(ctx, job)
	if err != nil {
		return err
	}

	extracted, err := p.generator.ExtractTopics(ctx, plainInput(transcript), transcript.Language)
	if err != nil {
		return fmt.Errorf("topic extraction for episode %s failed: %w", transcript.EpisodeID, err)
	}

	topics := uniqueTrimmed(extracted)
	if len(topics) == 0 {
		job.Logf(ctx, "[Topics] No topics found for episode %s", transcript.EpisodeID)
		return nil
	}

	job.Logf(ctx, "[Topics] Found %d topics. Upserting...", len(topics))
	if err := p.catalog.LinkTopics(ctx, transcript.EpisodeID, topics); err != nil {
		return err
	}
	job.Logf(ctx, "[Topics] Extraction complete for episode %s", transcript.EpisodeID)
	return nil
}

func (p *Pipeline) transcriptFor(ctx context.Context, job *jobs.Handle) (*store.Transcript, error) {
	var payload jobs.EpisodePayload
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}
	return p.loadTranscript(ctx, payload.EpisodeID)
}

func (p *Pipeline) loadTranscript(ctx context.Context, episodeID uuid.UUID) (*store.Transcript, error) {
	t, err := p.catalog.GetTranscript(ctx, episodeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("transcript for episode %s not found, transcribe it first", episodeID)
	}
	return t, err
}

// plainInput joins segment texts, or falls back to the full content.
func plainInput(t *store.Transcript) string {
	if len(t.Segments) == 0 {
		return truncate(t.Content, MaxTranscriptChars)
	}
	texts := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		texts[i] = s.Text
	}
	return truncate(strings.Join(texts, "\n"), MaxTranscriptChars)
}

// timestampedInput prefixes each segment with its start time for footnote citations.
func timestampedInput(t *store.Transcript) string {
	if len(t.Segments) == 0 {
		return truncate(t.Content, MaxTranscriptChars)
	}
	lines := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		lines[i] = fmt.Sprintf("[%s] %s", formatTimestamp(s.Start), s.Text)
	}
	return truncate(strings.Join(lines, "\n"), MaxTranscriptChars)
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func uniqueTrimmed(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
