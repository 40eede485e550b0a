// Package worker runs the pull-loop that claims jobs and dispatches them to handlers.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"podqueue/internal/jobs"
	"podqueue/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID           string
	PollInterval time.Duration // wait when nothing is claimable (default: 5s)
	YieldDelay   time.Duration // wait after a successful claim (default: 50ms)
}

// Agent is the main worker agent that runs the pull-loop for job execution.
type Agent struct {
	queue    store.Queue
	registry *jobs.Registry
	logs     jobs.LogSink
	config   AgentConfig
	logger   *slog.Logger
	metrics  *agentMetrics

	// slots bounds in-process handlers per type; the cluster-wide bound
	// comes from ActiveCounts.
	slots map[string]chan struct{}
	done  chan struct{}
}

// New creates a new worker agent. logs may be nil.
func New(q store.Queue, registry *jobs.Registry, logs jobs.LogSink, config AgentConfig, logger *slog.Logger) *Agent {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.YieldDelay <= 0 {
		config.YieldDelay = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	slots := make(map[string]chan struct{})
	for _, t := range registry.Types() {
		slots[t] = make(chan struct{}, registry.Concurrency(t))
	}

	return &Agent{
		queue:    q,
		registry: registry,
		logs:     logs,
		config:   config,
		logger:   logger.With("worker_id", config.ID),
		metrics:  newAgentMetrics(logger),
		slots:    slots,
		done:     make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On cancellation it stops claiming and waits for in-flight handlers to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "types", a.registry.Types())

	var wg sync.WaitGroup

	// Signals an immediate poll, e.g. when a handler frees a slot.
	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	triggerPoll()
	wait := a.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(wait):
			triggerPoll()

		case <-pollNow:
			wait = a.poll(ctx, &wg, triggerPoll)
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// poll runs one claim cycle and returns how long to wait before the next one.
func (a *Agent) poll(ctx context.Context, wg *sync.WaitGroup, triggerPoll func()) time.Duration {
	counts, err := a.queue.ActiveCounts(ctx)
	if err != nil {
		a.logger.Error("failed to read active counts", "error", err)
		return a.config.PollInterval
	}

	allowed := a.allowedTypes(counts)
	if len(allowed) == 0 {
		return a.config.PollInterval
	}

	job, err := a.queue.ClaimNext(ctx, allowed)
	if err != nil {
		a.logger.Error("failed to claim job", "error", err)
		return a.config.PollInterval
	}
	if job == nil {
		return a.config.PollInterval
	}

	a.dispatch(ctx, job, wg, triggerPoll)
	return a.config.YieldDelay
}

// allowedTypes returns the cluster-wide limit of every type below its limit
// both cluster-wide and in this process. The store re-checks the limit when
// claiming, since counts can change between the two calls.
func (a *Agent) allowedTypes(active map[string]int) map[string]int {
	allowed := make(map[string]int)
	for _, t := range a.registry.Types() {
		limit := a.registry.Concurrency(t)
		if active[t] >= limit {
			continue
		}
		if slot := a.slots[t]; len(slot) >= cap(slot) {
			continue
		}
		allowed[t] = limit
	}
	return allowed
}

func (a *Agent) dispatch(ctx context.Context, job *store.Job, wg *sync.WaitGroup, triggerPoll func()) {
	// Handlers outlive the poll context so that shutdown drains instead of aborting.
	jobCtx := context.WithoutCancel(ctx)
	a.metrics.claimed(jobCtx, job.Type)

	handler, ok := a.registry.Handler(job.Type)
	if !ok {
		msg := fmt.Sprintf("no handler registered for job type %s", job.Type)
		a.logger.Error(msg, "job_id", job.ID)
		if err := a.queue.Fail(jobCtx, job.ID, msg); err != nil {
			a.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
		}
		a.metrics.failed(jobCtx, job.Type)
		return
	}

	slot := a.slots[job.Type]
	slot <- struct{}{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			<-slot
			triggerPoll()
		}()
		a.process(jobCtx, job, handler)
	}()
}

// process runs a claimed job and records the outcome.
func (a *Agent) process(ctx context.Context, job *store.Job, handler jobs.Handler) {
	tracer := otel.Tracer("podqueue-worker")
	spanCtx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.type", job.Type),
			attribute.Int("job.retries", job.Retries),
			attribute.String("worker.id", a.config.ID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	logger := a.logger.With("job_id", job.ID.String(), "job_type", job.Type)
	logger.Info("processing job", "retries", job.Retries)

	start := time.Now()
	err := a.run(spanCtx, job, handler)
	a.metrics.observe(spanCtx, job.Type, time.Since(start))

	if err == nil {
		if err := a.queue.Complete(spanCtx, job.ID); err != nil {
			logger.Error("failed to mark job completed", "error", err)
			span.RecordError(err)
			return
		}
		a.metrics.completed(spanCtx, job.Type)
		logger.Info("job completed", "duration", time.Since(start))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("job failed", "error", err, "retryable", store.Retryable(job.Retries))

	if err := a.queue.Fail(spanCtx, job.ID, err.Error()); err != nil {
		logger.Error("failed to record job failure", "error", err)
		return
	}
	a.metrics.failed(spanCtx, job.Type)
}

// run invokes the handler, turning a panic into an error.
func (a *Agent) run(ctx context.Context, job *store.Job, handler jobs.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, jobs.NewHandle(job, a.logger, a.logs))
}
