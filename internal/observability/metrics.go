// Package observability wires OpenTelemetry tracing and Prometheus metrics
// for the controller and worker processes.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs a global meter provider backed by a Prometheus
// exporter. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// DepthFunc returns the number of jobs per status.
type DepthFunc func(ctx context.Context) (map[string]int64, error)

// RegisterQueueDepth exposes podqueue.queue.depth{status} as an observable
// gauge read from depth on every collection.
func RegisterQueueDepth(meter metric.Meter, depth DepthFunc) error {
	_, err := meter.Int64ObservableGauge(
		"podqueue.queue.depth",
		metric.WithDescription("Number of jobs per status"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			counts, err := depth(ctx)
			if err != nil {
				return err
			}
			for status, n := range counts {
				o.Observe(n, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}),
	)
	return err
}
