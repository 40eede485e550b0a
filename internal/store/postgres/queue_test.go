package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"podqueue/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var jobCols = []string{"id", "type", "payload", "status", "retries", "error", "started_at", "completed_at", "created_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestEnqueue_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	payload := json.RawMessage(`{"episodeId":"abc"}`)
	id := uuid.New()
	createdAt := time.Now()

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "episode_summary", []byte(payload), store.JobStatusPending).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(id.String(), "episode_summary", []byte(payload), "pending", 0, nil, nil, nil, createdAt))

	job, err := s.Enqueue(ctx, nil, "episode_summary", payload)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID != id {
		t.Errorf("got id %v, want %v", job.ID, id)
	}
	if job.Status != store.JobStatusPending || job.Retries != 0 {
		t.Errorf("unexpected initial state: status=%s retries=%d", job.Status, job.Retries)
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("new job must not have started_at or completed_at")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueue_EmptyType(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	_, err := s.Enqueue(context.Background(), nil, "", nil)
	if !errors.Is(err, store.ErrEmptyJobType) {
		t.Errorf("expected ErrEmptyJobType, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store must not be touched: %v", err)
	}
}

func TestEnqueue_NilPayloadStoredAsEmptyObject(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "sync_podcasts", []byte(`{}`), store.JobStatusPending).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(uuid.NewString(), "sync_podcasts", []byte(`{}`), "pending", 0, nil, nil, nil, time.Now()))

	if _, err := s.Enqueue(context.Background(), nil, "sync_podcasts", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueue_StoreError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`INSERT INTO jobs`).WillReturnError(errors.New("connection reset"))

	_, err := s.Enqueue(context.Background(), nil, "podcast_import", json.RawMessage(`{}`))
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestActiveCounts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT type, COUNT\(\*\) FROM jobs WHERE status = \$1 AND started_at > NOW\(\)`).
		WithArgs(store.JobStatusProcessing, store.StuckTimeout.Seconds()).
		WillReturnRows(sqlmock.NewRows([]string{"type", "count"}).
			AddRow("podcast_import", 2).
			AddRow("extract_topics", 5))

	counts, err := s.ActiveCounts(context.Background())
	if err != nil {
		t.Fatalf("ActiveCounts failed: %v", err)
	}
	if counts["podcast_import"] != 2 || counts["extract_topics"] != 5 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if _, ok := counts["episode_summary"]; ok {
		t.Error("types without active jobs should be absent")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func expectTypeLock(mock sqlmock.Sqlmock, jobType string, locked bool) {
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs(jobType).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(locked))
}

func expectActiveCount(mock sqlmock.Sqlmock, jobType string, active int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs WHERE type = \$1 AND status = \$2 AND started_at > NOW\(\)`).
		WithArgs(jobType, store.JobStatusProcessing, store.StuckTimeout.Seconds()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(active))
}

func TestClaimNext_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type FROM jobs`).
		WithArgs(sqlmock.AnyArg(), store.JobStatusPending, store.JobStatusProcessing, store.StuckTimeout.Seconds()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).AddRow(id.String(), "podcast_import"))
	expectTypeLock(mock, "podcast_import", true)
	expectActiveCount(mock, "podcast_import", 2)
	mock.ExpectQuery(`UPDATE jobs SET status = \$1, started_at = NOW\(\)`).
		WithArgs(store.JobStatusProcessing, id).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(id.String(), "podcast_import", []byte(`{"podcastId":"p1"}`), "processing", 1, "boom", now, nil, now.Add(-time.Minute)))
	mock.ExpectCommit()

	job, err := s.ClaimNext(context.Background(), map[string]int{"podcast_import": 3})
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("expected job %v, got %+v", id, job)
	}
	if job.Status != store.JobStatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("claimed job must have started_at")
	}
	if job.Retries != 1 {
		t.Errorf("claim must not touch retries, got %d", job.Retries)
	}
	if job.Error == nil || *job.Error != "boom" {
		t.Errorf("expected previous error to be kept, got %v", job.Error)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_QueryStructure(t *testing.T) {
	// sqlmock cannot check ordering or locking, but it can pin the SQL that provides them.
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type FROM jobs WHERE type = ANY\(\$1\) AND \(status = \$2 OR \(status = \$3 AND started_at < NOW\(\) .*\)\) ORDER BY created_at ASC, seq ASC LIMIT 1 FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}))
	mock.ExpectRollback()

	job, err := s.ClaimNext(context.Background(), map[string]int{"a": 1, "b": 1})
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected no job, got %+v", job)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_EmptyAllowedSet(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	for _, limits := range []map[string]int{nil, {"x": 0}} {
		job, err := s.ClaimNext(context.Background(), limits)
		if err != nil || job != nil {
			t.Errorf("limits %v: expected (nil, nil), got (%v, %v)", limits, job, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store must not be touched: %v", err)
	}
}

func TestClaimNext_FullTypeIsSkipped(t *testing.T) {
	// A second worker read the counts before the first committed its claim:
	// the count inside the claim sees the committed job and moves on.
	s, mock := newMockStore(t)
	defer s.db.Close()

	syncID := uuid.New()
	topicID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type FROM jobs`).
		WithArgs(sqlmock.AnyArg(), store.JobStatusPending, store.JobStatusProcessing, store.StuckTimeout.Seconds()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).AddRow(syncID.String(), "sync_podcasts"))
	expectTypeLock(mock, "sync_podcasts", true)
	expectActiveCount(mock, "sync_podcasts", 1)
	mock.ExpectQuery(`SELECT id, type FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).AddRow(topicID.String(), "extract_topics"))
	expectTypeLock(mock, "extract_topics", true)
	expectActiveCount(mock, "extract_topics", 0)
	mock.ExpectQuery(`UPDATE jobs SET status = \$1, started_at = NOW\(\)`).
		WithArgs(store.JobStatusProcessing, topicID).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(topicID.String(), "extract_topics", []byte(`{}`), "processing", 0, nil, now, nil, now))
	mock.ExpectCommit()

	job, err := s.ClaimNext(context.Background(), map[string]int{"sync_podcasts": 1, "extract_topics": 5})
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil || job.ID != topicID {
		t.Fatalf("expected the topics job, got %+v", job)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_TypeLockedElsewhere(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).AddRow(uuid.New().String(), "sync_podcasts"))
	expectTypeLock(mock, "sync_podcasts", false)
	mock.ExpectRollback()

	job, err := s.ClaimNext(context.Background(), map[string]int{"sync_podcasts": 1})
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected no claim while another worker holds the type, got %+v", job)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_UpdateError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type"}).AddRow(id.String(), "x"))
	expectTypeLock(mock, "x", true)
	expectActiveCount(mock, "x", 0)
	mock.ExpectQuery(`UPDATE jobs`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	if _, err := s.ClaimNext(context.Background(), map[string]int{"x": 1}); err == nil {
		t.Error("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()

	// Twice: completing an already completed job must not error.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`UPDATE jobs SET status = \$1, started_at = NULL, completed_at = NOW\(\) WHERE id = \$2 AND status <> \$3`).
			WithArgs(store.JobStatusCompleted, id, store.JobStatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		if err := s.Complete(context.Background(), id); err != nil {
			t.Fatalf("Complete #%d failed: %v", i+1, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete_FailedJobIsLeftAlone(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(store.JobStatusCompleted, id, store.JobStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM jobs WHERE id = \$1\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := s.Complete(context.Background(), id); err != nil {
		t.Errorf("late Complete of a failed job must not error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE jobs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.Complete(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestFail_Retry(t *testing.T) {
	for retries := 0; retries < store.MaxRetries; retries++ {
		s, mock := newMockStore(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT retries, status FROM jobs WHERE id = \$1 FOR UPDATE`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"retries", "status"}).AddRow(retries, "processing"))
		mock.ExpectExec(`UPDATE jobs SET status = \$1, retries = retries \+ 1, error = \$2, started_at = NULL`).
			WithArgs(store.JobStatusPending, "rate limited", id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := s.Fail(context.Background(), id, "rate limited"); err != nil {
			t.Fatalf("Fail with retries=%d failed: %v", retries, err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("retries=%d: unfulfilled expectations: %v", retries, err)
		}
		s.db.Close()
	}
}

func TestFail_Exhausted(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT retries, status FROM jobs`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"retries", "status"}).AddRow(store.MaxRetries, "processing"))
	mock.ExpectExec(`UPDATE jobs SET status = \$1, error = \$2, started_at = NULL, completed_at = NOW\(\)`).
		WithArgs(store.JobStatusFailed, "still broken", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Fail(context.Background(), id, "still broken"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFail_TerminalJobIsIgnored(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT retries, status FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"retries", "status"}).AddRow(0, "completed"))
	mock.ExpectRollback()

	if err := s.Fail(context.Background(), id, "late"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFail_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT retries, status FROM jobs`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.Fail(context.Background(), uuid.New(), "x")
	if !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestEnqueueIfIdle_InsertsWhenIdle(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("enqueue:sync_podcasts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM jobs WHERE type = \$1 AND status IN \(\$2, \$3\)`).
		WithArgs("sync_podcasts", store.JobStatusPending, store.JobStatusProcessing).
		WillReturnRows(sqlmock.NewRows(jobCols))
	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "sync_podcasts", []byte(`{}`), store.JobStatusPending).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(id.String(), "sync_podcasts", []byte(`{}`), "pending", 0, nil, nil, nil, now))
	mock.ExpectCommit()

	job, created, err := s.EnqueueIfIdle(context.Background(), "sync_podcasts", nil)
	if err != nil {
		t.Fatalf("EnqueueIfIdle failed: %v", err)
	}
	if !created || job.ID != id {
		t.Errorf("expected new job %s, got %+v (created=%v)", id, job, created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueueIfIdle_ReturnsActiveJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM jobs WHERE type = \$1 AND status IN`).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(id.String(), "sync_podcasts", []byte(`{}`), "processing", 0, nil, now, nil, now))
	mock.ExpectRollback()

	job, created, err := s.EnqueueIfIdle(context.Background(), "sync_podcasts", nil)
	if err != nil {
		t.Fatalf("EnqueueIfIdle failed: %v", err)
	}
	if created || job.ID != id {
		t.Errorf("expected active job %s, got %+v (created=%v)", id, job, created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueueIfIdle_EmptyType(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	if _, _, err := s.EnqueueIfIdle(context.Background(), "", nil); !errors.Is(err, store.ErrEmptyJobType) {
		t.Errorf("expected ErrEmptyJobType, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store must not be touched: %v", err)
	}
}
