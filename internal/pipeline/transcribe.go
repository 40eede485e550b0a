package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"

	"podqueue/internal/jobs"
	"podqueue/internal/store"
	"podqueue/internal/transcribe"

	"github.com/google/uuid"
)

// TranscribeEpisode downloads the episode audio, skips it if a transcript of
// the same audio exists, transcribes it and queues topic and entity extraction.
func (p *Pipeline) TranscribeEpisode(ctx context.Context, job *jobs.Handle) error {
	episode, err := p.loadEpisode(ctx, job)
	if err != nil {
		return err
	}
	if episode.AudioURL == "" {
		return fmt.Errorf("episode %s has no audio URL", episode.ID)
	}

	job.Logf(ctx, "[Transcription] Downloading audio from %s", episode.AudioURL)
	audio, err := p.download(ctx, episode.ID, episode.AudioURL)
	if err != nil {
		return err
	}
	defer audio.Close()

	job.Logf(ctx, "[Transcription] Audio hash: %s", audio.hash)

	exists, err := p.catalog.HasTranscript(ctx, episode.ID, audio.hash)
	if err != nil {
		return fmt.Errorf("failed to check existing transcript: %w", err)
	}
	if exists {
		job.Logf(ctx, "[Transcription] Transcript already exists for this audio version. Skipping.")
		return nil
	}

	var result *transcribe.Result
	if audio.size > p.maxUpload {
		job.Logf(ctx, "[Transcription] File size %.2fMB exceeds %.2fMB, transcribing by URL",
			float64(audio.size)/1024/1024, float64(p.maxUpload)/1024/1024)
		result, err = p.transcriber.TranscribeURL(ctx, episode.AudioURL)
	} else {
		job.Logf(ctx, "[Transcription] Uploading %.2fMB for transcription", float64(audio.size)/1024/1024)
		if _, err := audio.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		result, err = p.transcriber.TranscribeFile(ctx, audioFilename(episode.AudioURL), audio.file)
	}
	if err != nil {
		return fmt.Errorf("transcription of episode %s failed: %w", episode.ID, err)
	}

	segments := make([]store.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		segments = append(segments, store.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	job.Logf(ctx, "[Transcription] Complete. Language: %s, Length: %d, Segments: %d", result.Language, len(result.Text), len(segments))

	if err := p.catalog.ReplaceTranscript(ctx, &store.Transcript{
		EpisodeID: episode.ID,
		Content:   result.Text,
		Language:  result.Language,
		Segments:  segments,
		AudioHash: audio.hash,
	}); err != nil {
		return err
	}

	next := jobs.EpisodePayload{EpisodeID: episode.ID}
	for _, t := range []jobs.Type{jobs.ExtractTopics, jobs.ExtractEntities} {
		queued, err := jobs.Enqueue(ctx, p.queue, nil, t, next)
		if err != nil {
			return fmt.Errorf("failed to queue %s: %w", t, err)
		}
		job.Logf(ctx, "[Transcription] Queued %s job %s", t, queued.ID)
	}
	return nil
}

type downloadedAudio struct {
	file *os.File
	hash string
	size int64
}

func (d *downloadedAudio) Close() error {
	d.file.Close()
	return os.Remove(d.file.Name())
}

// download streams audio into a temp file while hashing it.
func (p *Pipeline) download(ctx context.Context, episodeID uuid.UUID, audioURL string) (*downloadedAudio, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid audio URL: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download audio: %s", resp.Status)
	}

	f, err := os.CreateTemp(p.tempDir, episodeID.String()+"_*.tmp")
	if err != nil {
		return nil, err
	}
	audio := &downloadedAudio{file: f}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), resp.Body)
	if err != nil {
		audio.Close()
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}

	audio.size = n
	audio.hash = hex.EncodeToString(h.Sum(nil))
	return audio, nil
}

func audioFilename(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil {
		return "audio.mp3"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "audio.mp3"
	}
	return name
}

func (p *Pipeline) loadEpisode(ctx context.Context, job *jobs.Handle) (*store.Episode, error) {
	var payload jobs.EpisodePayload
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}

	episode, err := p.catalog.GetEpisodeByID(ctx, payload.EpisodeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("episode %s not found", payload.EpisodeID)
	}
	if err != nil {
		return nil, err
	}
	return episode, nil
}
