// Package controller serves the podqueue HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"podqueue/internal/controller/handlers"
	"podqueue/internal/controller/middleware"
	"podqueue/internal/jobs"
)

// Options configures the server.
type Options struct {
	// InternalSecret guards /internal routes. Empty disables them.
	InternalSecret string

	// RateLimit is requests per second per client, RateLimitBurst the bucket size.
	RateLimit      float64
	RateLimitBurst int

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, s handlers.Store, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(s, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewHandler builds the routed, middleware-wrapped API handler.
func NewHandler(s handlers.Store, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateLimitBurst < 1 {
		opts.RateLimitBurst = 20
	}

	h := handlers.New(s, opts.Logger)
	limit := middleware.NewRateLimiter(opts.RateLimit, opts.RateLimitBurst).Middleware()
	internal := middleware.RequireInternalAuth(opts.InternalSecret)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.Handle("POST /podcasts/import", limit(http.HandlerFunc(h.ImportPodcast)))
	mux.Handle("POST /episodes/{id}/transcribe", limit(h.EnqueueEpisodeJob(jobs.EpisodeTranscription)))
	mux.Handle("POST /episodes/{id}/summarize", limit(h.EnqueueEpisodeJob(jobs.EpisodeSummary)))
	mux.Handle("POST /episodes/{id}/extract-entities", limit(h.EnqueueEpisodeJob(jobs.ExtractEntities)))
	mux.Handle("POST /episodes/{id}/extract-topics", limit(h.EnqueueEpisodeJob(jobs.ExtractTopics)))

	mux.Handle("GET /jobs", limit(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /jobs/{id}", limit(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /jobs/{id}/logs", limit(http.HandlerFunc(h.GetJobLogs)))

	// Called by operators and cron jobs outside the cluster scheduler.
	mux.Handle("POST /internal/sync", internal(http.HandlerFunc(h.TriggerSync)))

	return middleware.RequestID(opts.Logger)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
