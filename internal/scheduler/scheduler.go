package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"podqueue/internal/jobs"
	"podqueue/internal/store"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs the sync once a day at midnight.
const DefaultSpec = "0 0 * * *"

// Scheduler enqueues a sync_podcasts job on a cron schedule.
// The scan itself runs on a worker, so any number of schedulers is safe.
type Scheduler struct {
	cron   *cron.Cron
	queue  store.Queue
	logger *slog.Logger
}

// New validates spec and registers the sync trigger.
func New(queue store.Queue, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		queue:  queue,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()

	// Wait for a tick that is already running.
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	job, created, err := Trigger(context.Background(), s.queue)
	if err != nil {
		s.logger.Error("failed to trigger podcast sync", "error", err)
		return
	}
	if !created {
		s.logger.Info("podcast sync already queued", "job_id", job.ID)
		return
	}
	s.logger.Info("podcast sync queued", "job_id", job.ID)
}

// Trigger enqueues a sync_podcasts job unless one is already pending or
// processing, in which case that job is returned with created=false.
func Trigger(ctx context.Context, queue store.Queue) (*store.Job, bool, error) {
	job, created, err := queue.EnqueueIfIdle(ctx, string(jobs.SyncPodcasts), nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to trigger sync: %w", err)
	}
	return job, created, nil
}

// cronLogger routes cron's logr-style logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
