// Package web exposes the job queue over HTTP and streams job outcomes over websockets.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/gorilla/mux"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	Addr string
	// RateLimit and RateBurst bound admissions per client address.
	RateLimit float64
	RateBurst int
}

// Deps are the components the routes are served from. Processor is nil when the
// process does not consume jobs.
type Deps struct {
	Queue          JobQueue
	Store          Pinger
	Processor      ProcessorState
	Hub            *Hub
	Recorder       Recorder
	MetricsHandler http.Handler
	Log            logger.Logger
}

// Server is the HTTP API.
type Server struct {
	srv     *http.Server
	limiter *RateLimiter
	hub     *Hub
	log     logger.Logger
}

// NewServer builds the router:
//
//	POST   /v1/jobs/start
//	GET    /v1/jobs/queued
//	GET    /v1/jobs/queued/count
//	DELETE /v1/jobs/queued
//	DELETE /v1/jobs/{job_id}/queued
//	GET    /v1/jobs/ws
//	GET    /health
//	GET    /metrics
func NewServer(cfg Config, deps Deps) *Server {
	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	h := &handlers{
		queue:     deps.Queue,
		rec:       deps.Recorder,
		store:     deps.Store,
		processor: deps.Processor,
		log:       deps.Log,
	}

	router := mux.NewRouter()
	router.Use(requestID, recovery(deps.Log), instrument(deps.Log, deps.Recorder))

	jobs := router.PathPrefix("/v1/jobs").Subrouter()
	jobs.Handle("/start", limiter.Middleware(http.HandlerFunc(h.start))).Methods(http.MethodPost)
	jobs.HandleFunc("/queued", h.queued).Methods(http.MethodGet)
	jobs.HandleFunc("/queued/count", h.count).Methods(http.MethodGet)
	jobs.HandleFunc("/queued", h.clear).Methods(http.MethodDelete)
	jobs.HandleFunc("/{job_id}/queued", h.remove).Methods(http.MethodDelete)
	jobs.HandleFunc("/ws", deps.Hub.ServeWS).Methods(http.MethodGet)

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if deps.MetricsHandler != nil {
		router.Handle("/metrics", deps.MetricsHandler).Methods(http.MethodGet)
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           enableCORS(router),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		limiter: limiter,
		hub:     deps.Hub,
		log:     deps.Log,
	}
}

// Handler returns the root handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.limiter.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server starting", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
