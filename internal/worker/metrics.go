package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type agentMetrics struct {
	claimedCount   metric.Int64Counter
	completedCount metric.Int64Counter
	failedCount    metric.Int64Counter
	duration       metric.Float64Histogram
}

// newAgentMetrics registers the worker instruments on the global MeterProvider.
// Instruments that fail to register fall back to no-ops.
func newAgentMetrics(logger *slog.Logger) *agentMetrics {
	meter := otel.Meter("podqueue-worker")
	m := &agentMetrics{}

	var err error
	if m.claimedCount, err = meter.Int64Counter("podqueue.jobs.claimed",
		metric.WithDescription("Jobs claimed by this worker")); err != nil {
		logger.Warn("failed to register metric", "name", "podqueue.jobs.claimed", "error", err)
	}
	if m.completedCount, err = meter.Int64Counter("podqueue.jobs.completed",
		metric.WithDescription("Jobs completed by this worker")); err != nil {
		logger.Warn("failed to register metric", "name", "podqueue.jobs.completed", "error", err)
	}
	if m.failedCount, err = meter.Int64Counter("podqueue.jobs.failed",
		metric.WithDescription("Failed job attempts on this worker")); err != nil {
		logger.Warn("failed to register metric", "name", "podqueue.jobs.failed", "error", err)
	}
	if m.duration, err = meter.Float64Histogram("podqueue.job.duration",
		metric.WithDescription("Handler run time"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("failed to register metric", "name", "podqueue.job.duration", "error", err)
	}

	return m
}

func typeAttr(jobType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job.type", jobType))
}

func (m *agentMetrics) claimed(ctx context.Context, jobType string) {
	if m.claimedCount != nil {
		m.claimedCount.Add(ctx, 1, typeAttr(jobType))
	}
}

func (m *agentMetrics) completed(ctx context.Context, jobType string) {
	if m.completedCount != nil {
		m.completedCount.Add(ctx, 1, typeAttr(jobType))
	}
}

func (m *agentMetrics) failed(ctx context.Context, jobType string) {
	if m.failedCount != nil {
		m.failedCount.Add(ctx, 1, typeAttr(jobType))
	}
}

func (m *agentMetrics) observe(ctx context.Context, jobType string, d time.Duration) {
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), typeAttr(jobType))
	}
}
