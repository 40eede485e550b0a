// Package memstore is an in-process implementation of the store interfaces.
// It follows the same queue rules as the postgres store and is used for
// local runs (database_url: memory://) and tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"podqueue/internal/store"

	"github.com/google/uuid"
)

type jobRecord struct {
	job store.Job
	seq int64
}

// Store keeps every record behind a single mutex. Holding it across the
// select-and-update of ClaimNext is what makes claims atomic.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq     int64
	jobs    map[uuid.UUID]*jobRecord
	logs    []store.LogEntry
	nextLog int64

	podcasts    map[uuid.UUID]*store.Podcast
	episodes    map[uuid.UUID]*store.Episode
	transcripts map[uuid.UUID]*store.Transcript
	summaries   map[uuid.UUID]string
	entities    map[uuid.UUID][]store.Entity
	topics      map[uuid.UUID][]string
}

// New returns an empty store using the wall clock.
func New() *Store {
	return &Store{
		now:         time.Now,
		jobs:        make(map[uuid.UUID]*jobRecord),
		podcasts:    make(map[uuid.UUID]*store.Podcast),
		episodes:    make(map[uuid.UUID]*store.Episode),
		transcripts: make(map[uuid.UUID]*store.Transcript),
		summaries:   make(map[uuid.UUID]string),
		entities:    make(map[uuid.UUID][]store.Entity),
		topics:      make(map[uuid.UUID][]string),
	}
}

// SetClock replaces the time source. Used by tests to age processing jobs.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// BeginTx returns a no-op transaction. Writes made "inside" it are visible immediately.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	return noopTx{}, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Enqueue inserts a pending job. tx is ignored.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, jobType string, payload json.RawMessage) (*store.Job, error) {
	if jobType == "" {
		return nil, store.ErrEmptyJobType
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(jobType, payload), nil
}

// EnqueueIfIdle checks for an active job and inserts under one lock.
func (s *Store) EnqueueIfIdle(ctx context.Context, jobType string, payload json.RawMessage) (*store.Job, bool, error) {
	if jobType == "" {
		return nil, false, store.ErrEmptyJobType
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var active *jobRecord
	for _, rec := range s.jobs {
		j := &rec.job
		if j.Type != jobType || (j.Status != store.JobStatusPending && j.Status != store.JobStatusProcessing) {
			continue
		}
		if active == nil || older(rec, active) {
			active = rec
		}
	}
	if active != nil {
		return copyJob(&active.job), false, nil
	}
	return s.insertLocked(jobType, payload), true, nil
}

func (s *Store) insertLocked(jobType string, payload json.RawMessage) *store.Job {
	s.seq++
	rec := &jobRecord{
		seq: s.seq,
		job: store.Job{
			ID:        uuid.New(),
			Type:      jobType,
			Payload:   append(json.RawMessage(nil), payload...),
			Status:    store.JobStatusPending,
			CreatedAt: s.now(),
		},
	}
	s.jobs[rec.job.ID] = rec

	return copyJob(&rec.job)
}

func (s *Store) ActiveCounts(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-store.StuckTimeout)
	counts := make(map[string]int)
	for _, rec := range s.jobs {
		j := &rec.job
		if j.Status == store.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.After(cutoff) {
			counts[j.Type]++
		}
	}
	return counts, nil
}

func (s *Store) ClaimNext(ctx context.Context, limits map[string]int) (*store.Job, error) {
	if len(limits) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-store.StuckTimeout)

	active := make(map[string]int)
	for _, rec := range s.jobs {
		j := &rec.job
		if j.Status == store.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.After(cutoff) {
			active[j.Type]++
		}
	}

	var next *jobRecord
	for _, rec := range s.jobs {
		j := &rec.job
		limit, ok := limits[j.Type]
		if !ok || active[j.Type] >= limit {
			continue
		}
		eligible := j.Status == store.JobStatusPending ||
			(j.Status == store.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff))
		if !eligible {
			continue
		}
		if next == nil || older(rec, next) {
			next = rec
		}
	}
	if next == nil {
		return nil, nil
	}

	next.job.Status = store.JobStatusProcessing
	next.job.StartedAt = &now

	return copyJob(&next.job), nil
}

func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("complete %s: %w", id, store.ErrJobNotFound)
	}
	if rec.job.Status == store.JobStatusFailed {
		return nil
	}

	now := s.now()
	rec.job.Status = store.JobStatusCompleted
	rec.job.StartedAt = nil
	rec.job.CompletedAt = &now
	return nil
}

func (s *Store) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("fail %s: %w", id, store.ErrJobNotFound)
	}
	j := &rec.job
	if j.Status.Terminal() {
		return nil
	}

	msg := errMsg
	j.Error = &msg
	j.StartedAt = nil
	if store.Retryable(j.Retries) {
		j.Status = store.JobStatusPending
		j.Retries++
		return nil
	}

	now := s.now()
	j.Status = store.JobStatusFailed
	j.CompletedAt = &now
	return nil
}

func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(&rec.job), nil
}

func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*jobRecord
	for _, rec := range s.jobs {
		if filter.Status != "" && rec.job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rec.job.Type != filter.Type {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, k int) bool { return older(matched[k], matched[i]) })

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var jobs []store.Job
	for i := offset; i < len(matched) && len(jobs) < limit; i++ {
		jobs = append(jobs, *copyJob(&matched[i].job))
	}
	return jobs, nil
}

func (s *Store) ActivePayloads(ctx context.Context, jobType string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payloads []json.RawMessage
	for _, rec := range s.jobs {
		if rec.job.Type == jobType && !rec.job.Status.Terminal() {
			payloads = append(payloads, append(json.RawMessage(nil), rec.job.Payload...))
		}
	}
	return payloads, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[store.JobStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[store.JobStatus]int64)
	for _, rec := range s.jobs {
		counts[rec.job.Status]++
	}
	return counts, nil
}

func (s *Store) AddJobLog(ctx context.Context, jobID uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	s.logs = append(s.logs, store.LogEntry{
		ID:        s.nextLog,
		JobID:     jobID,
		Content:   content,
		CreatedAt: s.now(),
	})
	return nil
}

func (s *Store) GetJobLogs(ctx context.Context, jobID uuid.UUID, afterID int64, limit int) ([]store.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.LogEntry
	for _, entry := range s.logs {
		if entry.JobID != jobID || entry.ID <= afterID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, entry)
	}
	return out, nil
}

// older reports whether a was created before b, using insertion order on ties.
func older(a, b *jobRecord) bool {
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

func copyJob(j *store.Job) *store.Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var (
	_ store.Queue        = (*Store)(nil)
	_ store.JobStore     = (*Store)(nil)
	_ store.JobLogStore  = (*Store)(nil)
	_ store.CatalogStore = (*Store)(nil)
)
