package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue policy shared by every backend.
const (
	// MaxRetries is the number of times a failed job returns to pending.
	MaxRetries = 3

	// StuckTimeout is how long a job may stay processing before it is
	// excluded from active counts and becomes claimable again.
	StuckTimeout = 5 * time.Minute
)

// Queue defines the interface for job queue operations.
// Claims must be atomic: two concurrent callers never receive the same job.
type Queue interface {
	// Enqueue inserts a pending job. tx is optional.
	Enqueue(ctx context.Context, tx DBTransaction, jobType string, payload json.RawMessage) (*Job, error)

	// EnqueueIfIdle enqueues a pending job unless a job of jobType is already
	// pending or processing, in which case that job is returned with
	// created=false. The check and the insert are atomic across callers.
	EnqueueIfIdle(ctx context.Context, jobType string, payload json.RawMessage) (job *Job, created bool, err error)

	// ActiveCounts returns, per type, the number of jobs processing
	// for less than StuckTimeout.
	ActiveCounts(ctx context.Context) (map[string]int, error)

	// ClaimNext moves the oldest eligible job whose type is a key of limits
	// to processing. A type is skipped while its live processing count is at
	// its limit; the count is checked inside the claim, so concurrent callers
	// cannot push a type past its limit. Returns nil when nothing is eligible.
	ClaimNext(ctx context.Context, limits map[string]int) (*Job, error)

	// Complete marks a job completed. Completing twice is harmless, and a
	// job that already failed stays failed.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records errMsg and either returns the job to pending or,
	// once retries reach MaxRetries, marks it failed.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Retryable reports whether a job with the given retry count goes back to pending on failure.
func Retryable(retries int) bool {
	return retries < MaxRetries
}
