// SPDX-License-Identifier: MIT

// Command daemon runs the pulsehub dynamic profile engine: the hot-tier
// profile store, its derived indices, the expiry reaper and the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/api"
	"github.com/pulsehub/pulsehub/internal/config"
	"github.com/pulsehub/pulsehub/internal/daemon"
	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/docstore"
	"github.com/pulsehub/pulsehub/internal/events"
	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/log"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/reaper"
	"github.com/pulsehub/pulsehub/internal/static"
	"github.com/pulsehub/pulsehub/internal/store"
)

func main() {
	log.Configure(log.Config{Service: "pulsehub"})
	logger := log.Base()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Str("event", "config.invalid").Msg("invalid configuration")
	}

	hot, err := store.New(store.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		OpTimeout: cfg.OpTimeout,
	}, log.WithComponent("store"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.unavailable").Msg("hot tier unavailable")
	}
	defer hot.Close()

	statics, err := static.OpenSQLite(cfg.StaticDBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "static.unavailable").Msg("static store unavailable")
	}
	defer statics.Close()

	bus := events.NewBus(log.WithComponent("bus"))
	defer bus.Close()

	indices := index.NewMaintainer(hot, cfg.DefaultTTL, log.WithComponent("index"))
	profiles := profile.NewStore(hot, indices, cfg.DefaultTTL, log.WithComponent("profile"))
	profiles.SetMutationHook(func(p *profile.Profile) {
		bus.PublishProfileUpdated(events.ProfileUpdated{
			UserID:    p.UserID,
			Version:   p.Version,
			UpdatedAt: p.UpdatedAt,
			Source:    events.SourceName,
		})
	})

	classifier := device.NewClassifier(device.NewRedisReviewSet(hot), log.WithComponent("device"))
	router := events.NewRouter(profiles, classifier, log.WithComponent("events"))

	docs := docstore.NewMemoryStore()
	aggregator := aggregate.New(profiles, statics, indices, docs, log.WithComponent("aggregate"))
	defer aggregator.Close()

	rpr := reaper.New(hot, reaper.Config{
		BatchSize:        cfg.BatchSize,
		MaxIterations:    cfg.MaxIterations,
		LockExpireTime:   cfg.LockExpireTime,
		MaxExecutionTime: cfg.MaxExecutionTime,
	}, bus, log.WithComponent("reaper"))

	scheduler, err := reaper.NewScheduler(rpr, indices, cfg.ScheduleCron, log.WithComponent("reaper"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "reaper.schedule_invalid").Msg("invalid reaper schedule")
	}

	server := api.NewServer(cfg.ListenAddr, api.Deps{
		Profiles:   profiles,
		Indices:    indices,
		Aggregator: aggregator,
		Classifier: classifier,
		Reaper:     rpr,
		Scheduler:  scheduler,
		Router:     router,
		Hot:        hot,

		ActiveWindow: cfg.ActiveUsersTTL,
	}, log.WithComponent("api"))

	app := daemon.NewApp(server, scheduler, router, logger)
	server.SetIngest(app.Ingest)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped")
}
