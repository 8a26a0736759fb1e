// Package server exposes the ingestion and search pipeline over HTTP:
// job management, uploads, SSE progress, and vector search endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridiandb/meridian/pkg/config"
	"github.com/meridiandb/meridian/pkg/jobs"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/search"
)

const progressPollInterval = 500 * time.Millisecond

type Server struct {
	config     *config.Config
	engine     *search.Engine
	controller *jobs.Controller
	queue      *jobs.Queue
	jobs       jobs.Store
	watcher    *jobs.Watcher
	logger     *slog.Logger

	httpServer *http.Server
}

type Options struct {
	Config     *config.Config
	Engine     *search.Engine
	Controller *jobs.Controller
	Queue      *jobs.Queue
	Jobs       jobs.Store
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("job controller is required")
	}
	if opts.Jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}

	s := &Server{
		config:     opts.Config,
		engine:     opts.Engine,
		controller: opts.Controller,
		queue:      opts.Queue,
		jobs:       opts.Jobs,
		watcher:    jobs.NewWatcher(opts.Jobs, progressPollInterval),
		logger:     logger.GetLogger(),
	}

	addr := fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Router builds the HTTP route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.config.Metrics.Enabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Post("/query", s.handleQuery)
			r.Post("/hybrid-search", s.handleHybridSearch)
			r.Post("/text-search", s.handleTextSearch)
		})

		r.Route("/ingestion", func(r chi.Router) {
			r.Get("/templates", s.handleListTemplates)
			r.Post("/upload", s.handleUpload)

			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs", s.handleListJobs)
			r.Route("/jobs/{job_id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Get("/progress", s.handleJobProgress)
				r.Delete("/", s.handleCancelJob)
				r.Post("/retry", s.handleRetryJob)
			})
		})
	})

	return r
}

// Start serves HTTP until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
