// SPDX-License-Identifier: MIT

// Package api exposes the profile engine over HTTP: composed profile reads,
// index queries, device-classifier administration, event ingestion and
// reaper operations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/events"
	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/reaper"
	"github.com/pulsehub/pulsehub/internal/store"
)

// Server wires the engine's components behind the HTTP surface.
type Server struct {
	profiles   *profile.Store
	indices    *index.Maintainer
	aggregator *aggregate.Aggregator
	classifier *device.Classifier
	reaper     *reaper.Reaper
	scheduler  *reaper.Scheduler
	router     *events.Router
	hot        *store.Store
	logger     zerolog.Logger

	activeWindow time.Duration
	ingest       func(events.ActivityEvent) bool

	http *http.Server
}

// Deps carries the server's collaborators.
type Deps struct {
	Profiles   *profile.Store
	Indices    *index.Maintainer
	Aggregator *aggregate.Aggregator
	Classifier *device.Classifier
	Reaper     *reaper.Reaper
	Scheduler  *reaper.Scheduler
	Router     *events.Router
	Hot        *store.Store

	// ActiveWindow is the default trailing window for the active-users
	// query when the caller supplies none.
	ActiveWindow time.Duration
}

// NewServer builds the HTTP server on addr.
func NewServer(addr string, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		profiles:   deps.Profiles,
		indices:    deps.Indices,
		aggregator: deps.Aggregator,
		classifier: deps.Classifier,
		reaper:     deps.Reaper,
		scheduler:  deps.Scheduler,
		router:     deps.Router,
		hot:        deps.Hot,
		logger:     logger,

		activeWindow: deps.ActiveWindow,
	}
	if s.activeWindow <= 0 {
		s.activeWindow = 24 * time.Hour
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.routes(), "pulsehub-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetIngest routes inbound activity events through fn, a buffered enqueue
// that reports false when saturated. Without it events apply synchronously.
func (s *Server) SetIngest(fn func(events.ActivityEvent) bool) { s.ingest = fn }

// Handler exposes the routed handler. Tests only.
func (s *Server) Handler() http.Handler { return s.routes() }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/profiles/{userID}", s.handleGetProfile)
		r.Get("/profiles/{userID}/crm", s.handleGetCRM)
		r.Get("/profiles/{userID}/analytics", s.handleGetAnalytics)
		r.Delete("/profiles/{userID}", s.handleDeleteProfile)

		r.Get("/users/active", s.handleActiveUsers)
		r.Get("/users/top-pageviews", s.handleTopPageViews)
		r.Get("/users/totals", s.handleTotals)
		r.Get("/users/by-device/{class}", s.handleByDevice)
		r.Get("/devices/distribution", s.handleDeviceDistribution)

		r.Get("/devices/unknown", s.handleUnknownDevices)
		r.Delete("/devices/unknown", s.handleClearUnknowns)
		r.Post("/devices/mappings", s.handleAddMapping)

		r.Post("/events", s.handleIngestEvent)

		r.Get("/reaper/status", s.handleReaperStatus)
		r.Post("/reaper/run", s.handleReaperRun)
	})
	return r
}

// Start serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "api.listening").
			Str("addr", s.http.Addr).
			Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.hot.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
