package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"podqueue/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const jobColumns = `id, type, payload, status, retries, error, started_at, completed_at, created_at`

// Enqueue inserts a pending job and returns it.
// Passing tx makes the job visible only when the caller commits.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, jobType string, payload json.RawMessage) (*store.Job, error) {
	if jobType == "" {
		return nil, store.ErrEmptyJobType
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO jobs (id, type, payload, status, retries)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING ` + jobColumns

	job, err := scanJob(s.getExecutor(tx).QueryRowContext(ctx, query,
		uuid.New(), jobType, []byte(payload), store.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}

	return job, nil
}

// EnqueueIfIdle serializes callers for jobType with a transaction-scoped
// advisory lock, then inserts only if no job of that type is pending or processing.
func (s *Store) EnqueueIfIdle(ctx context.Context, jobType string, payload json.RawMessage) (*store.Job, bool, error) {
	if jobType == "" {
		return nil, false, store.ErrEmptyJobType
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "enqueue:"+jobType); err != nil {
		return nil, false, fmt.Errorf("enqueue lock failed for %s: %w", jobType, err)
	}

	existing, err := scanJob(tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE type = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC, seq ASC
		LIMIT 1
	`, jobType, store.JobStatusPending, store.JobStatusProcessing))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("active %s lookup failed: %w", jobType, err)
	}

	job, err := s.Enqueue(ctx, tx, jobType, payload)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// ActiveCounts returns the number of live processing jobs per type.
// Jobs processing for longer than StuckTimeout are left out so that
// a crashed worker cannot hold a concurrency slot forever.
func (s *Store) ActiveCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM jobs
		WHERE status = $1
		  AND started_at > NOW() - ($2 * INTERVAL '1 second')
		GROUP BY type
	`, store.JobStatusProcessing, store.StuckTimeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("active counts query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var jobType string
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("active counts scan failed: %w", err)
		}
		counts[jobType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active counts rows error: %w", err)
	}

	return counts, nil
}

// ClaimNext claims the oldest eligible job of the types in limits using SELECT ... FOR UPDATE SKIP LOCKED.
// Eligible means pending, or processing with a start time older than StuckTimeout.
// Before claiming, the candidate's type is locked with a transaction-scoped
// advisory lock and its live processing count is checked against its limit.
// A type that is full, or whose lock another claimer holds, is dropped and
// the next candidate is tried. Returns nil if no job is available.
func (s *Store) ClaimNext(ctx context.Context, limits map[string]int) (*store.Job, error) {
	types := make([]string, 0, len(limits))
	for t, n := range limits {
		if n > 0 {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, nil
	}
	sort.Strings(types)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for len(types) > 0 {
		var id uuid.UUID
		var jobType string
		err = tx.QueryRowContext(ctx, `
			SELECT id, type
			FROM jobs
			WHERE type = ANY($1)
			  AND (status = $2 OR (status = $3 AND started_at < NOW() - ($4 * INTERVAL '1 second')))
			ORDER BY created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, pq.Array(types), store.JobStatusPending, store.JobStatusProcessing, store.StuckTimeout.Seconds()).Scan(&id, &jobType)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim query failed: %w", err)
		}

		full, err := typeFull(ctx, tx, jobType, limits[jobType])
		if err != nil {
			return nil, err
		}
		if full {
			types = slices.DeleteFunc(types, func(t string) bool { return t == jobType })
			continue
		}

		// Retries are left untouched: reclaiming a stuck job is the same attempt.
		job, err := scanJob(tx.QueryRowContext(ctx, `
			UPDATE jobs
			SET status = $1, started_at = NOW()
			WHERE id = $2
			RETURNING `+jobColumns,
			store.JobStatusProcessing, id))
		if err != nil {
			return nil, fmt.Errorf("claim update failed for %s: %w", id, err)
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return job, nil
	}

	return nil, nil
}

// typeFull takes the advisory lock of jobType without waiting and reports
// whether the type is at its limit. A lock held elsewhere counts as full.
// The lock is released when tx ends.
func typeFull(ctx context.Context, tx *sql.Tx, jobType string, limit int) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, jobType).Scan(&locked); err != nil {
		return false, fmt.Errorf("type lock failed for %s: %w", jobType, err)
	}
	if !locked {
		return true, nil
	}

	var active int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM jobs
		WHERE type = $1
		  AND status = $2
		  AND started_at > NOW() - ($3 * INTERVAL '1 second')
	`, jobType, store.JobStatusProcessing, store.StuckTimeout.Seconds()).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("active count failed for %s: %w", jobType, err)
	}
	return active >= limit, nil
}

// Complete marks the job completed. Completing an already completed job only
// refreshes completed_at. A failed job is left as it is.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, started_at = NULL, completed_at = NOW()
		WHERE id = $2 AND status <> $3
	`, store.JobStatusCompleted, id, store.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("complete %s: %w", id, store.ErrJobNotFound)
	}
	return nil
}

// Fail handles a failed attempt.
// Below MaxRetries the job goes straight back to pending with no delay.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var retries int
	var status store.JobStatus
	err = tx.QueryRowContext(ctx, "SELECT retries, status FROM jobs WHERE id = $1 FOR UPDATE", id).Scan(&retries, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fail %s: %w", id, store.ErrJobNotFound)
	}
	if err != nil {
		return err
	}

	// A late report for a job that already reached a terminal state is dropped.
	if status.Terminal() {
		return nil
	}

	if store.Retryable(retries) {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, retries = retries + 1, error = $2, started_at = NULL
			WHERE id = $3
		`, store.JobStatusPending, errMsg, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, error = $2, started_at = NULL, completed_at = NOW()
			WHERE id = $3
		`, store.JobStatusFailed, errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record failure of job %s: %w", id, err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*store.Job, error) {
	var (
		job         store.Job
		payload     []byte
		status      string
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	if err := row.Scan(&job.ID, &job.Type, &payload, &status, &job.Retries, &errMsg, &startedAt, &completedAt, &job.CreatedAt); err != nil {
		return nil, err
	}

	job.Payload = json.RawMessage(payload)
	job.Status = store.JobStatus(status)
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}
