// Package main is the entry point for the podqueue worker. It claims jobs
// from the shared queue, runs the pipeline handlers and, unless disabled,
// schedules the daily podcast sync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podqueue/internal/ai"
	"podqueue/internal/config"
	"podqueue/internal/controller"
	"podqueue/internal/feed"
	"podqueue/internal/jobs"
	"podqueue/internal/logger"
	"podqueue/internal/observability"
	"podqueue/internal/pipeline"
	"podqueue/internal/scheduler"
	"podqueue/internal/store/storage"
	"podqueue/internal/transcribe"
	"podqueue/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	migrate := flag.Bool("migrate", false, "Run database migrations before starting")
	serveAPI := flag.Bool("api", false, "Also serve the controller API on http_port (single-process mode, required for memory://)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, *migrate, *serveAPI, log); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, migrate, serveAPI bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsMemory() && !serveAPI {
		log.Warn("memory:// store without -api: jobs can only come from the scheduler")
	}

	backend, err := storage.Open(ctx, cfg.DatabaseURL, migrate, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	shutdownTracer, err := observability.InitTracer(ctx, "podqueue-worker", cfg.OTELEndpoint)
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

	if cfg.GroqAPIKey == "" {
		log.Warn("groq_api_key is not set, transcription jobs will fail")
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("gemini_api_key is not set, summary and extraction jobs will fail")
	}

	p := pipeline.New(pipeline.Deps{
		Catalog:     backend,
		Queue:       backend,
		Feeds:       feed.NewParser(nil),
		Transcriber: transcribe.NewClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel),
		Generator:   ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel),
	})
	scanner := scheduler.NewScanner(backend, backend, backend, cfg.StaleAfter, log)

	registry, err := jobs.NewRegistry(p.Registrations(scanner.Handle), cfg.JobConcurrency)
	if err != nil {
		return fmt.Errorf("invalid job registry: %w", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	agent := worker.New(backend, registry, backend, worker.AgentConfig{
		ID:           workerID,
		PollInterval: cfg.WorkerPollInterval,
		YieldDelay:   cfg.WorkerYieldDelay,
	}, log)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		if sched, err = scheduler.New(backend, cfg.SchedulerSpec, log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := agent.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if sched != nil {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	g.Go(func() error {
		return serveMetrics(gctx, fmt.Sprintf(":%d", cfg.MetricsPort), metricsHandler, log)
	})

	if serveAPI {
		srv := controller.New(fmt.Sprintf(":%d", cfg.HTTPPort), backend, controller.Options{
			InternalSecret: cfg.InternalSecret,
			RateLimit:      cfg.RateLimit,
			RateLimitBurst: cfg.RateLimitBurst,
			Metrics:        metricsHandler,
			Logger:         log,
		})
		g.Go(func() error {
			log.Info("controller API starting", "port", cfg.HTTPPort)
			return srv.Run(gctx)
		})
	}

	log.Info("worker started", "worker_id", workerID, "types", registry.Types())

	err = g.Wait()
	<-agent.Done()
	log.Info("worker exited properly")
	return err
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("worker metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
