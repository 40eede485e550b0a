// Package main is the entry point for the podqueue controller, the HTTP API
// that accepts import and enrichment requests and reports job progress.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"podqueue/internal/config"
	"podqueue/internal/controller"
	"podqueue/internal/logger"
	"podqueue/internal/observability"
	"podqueue/internal/store/storage"

	"go.opentelemetry.io/otel"
)

func main() {
	migrate := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, *migrate, log); err != nil {
		log.Error("controller stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, migrate bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.DatabaseURL, migrate, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	shutdownTracer, err := observability.InitTracer(ctx, "podqueue-controller", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Queried only when scraped.
	err = observability.RegisterQueueDepth(otel.Meter("podqueue-controller"), func(ctx context.Context) (map[string]int64, error) {
		counts, err := backend.CountByStatus(ctx)
		if err != nil {
			log.Warn("failed to count queue depth", "error", err)
			return nil, nil
		}
		out := make(map[string]int64, len(counts))
		for status, n := range counts {
			out[string(status)] = n
		}
		return out, nil
	})
	if err != nil {
		log.Warn("failed to register queue depth metric", "error", err)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, backend, controller.Options{
		InternalSecret: cfg.InternalSecret,
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        metricsHandler,
		Logger:         log,
	})

	log.Info("controller starting", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("controller exited properly")
	return nil
}
