// SPDX-License-Identifier: MIT

// Package daemon owns the long-lived runtime lifecycle: the HTTP server,
// the reaper schedule and the inbound event consumer.
package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pulsehub/pulsehub/internal/api"
	"github.com/pulsehub/pulsehub/internal/events"
	"github.com/pulsehub/pulsehub/internal/reaper"
)

// inboundBuffer absorbs ingest bursts before back-pressure kicks in.
const inboundBuffer = 1024

// App orchestrates the engine's background subsystems.
type App struct {
	logger    zerolog.Logger
	server    *api.Server
	scheduler *reaper.Scheduler
	router    *events.Router
	inbound   chan events.ActivityEvent
}

// NewApp assembles the runtime.
func NewApp(server *api.Server, scheduler *reaper.Scheduler, router *events.Router, logger zerolog.Logger) *App {
	return &App{
		logger:    logger,
		server:    server,
		scheduler: scheduler,
		router:    router,
		inbound:   make(chan events.ActivityEvent, inboundBuffer),
	}
}

// Ingest feeds one inbound activity event to the consumer. Returns false
// when the buffer is saturated; the caller decides whether to retry.
func (a *App) Ingest(ev events.ActivityEvent) bool {
	select {
	case a.inbound <- ev:
		return true
	default:
		a.logger.Warn().
			Str("event", "daemon.ingest_saturated").
			Str("user_id", ev.UserID).
			Msg("dropping inbound event, consumer saturated")
		return false
	}
}

// Run starts all subsystems and blocks until ctx is cancelled or a fatal
// error occurs.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(ctx)
	})

	g.Go(func() error {
		return a.scheduler.Start(ctx)
	})

	g.Go(func() error {
		err := a.router.Consume(ctx, a.inbound)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.logger.Info().Str("event", "daemon.started").Msg("profile engine running")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
