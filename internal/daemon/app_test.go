// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/api"
	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/events"
	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/reaper"
	"github.com/pulsehub/pulsehub/internal/static"
	"github.com/pulsehub/pulsehub/internal/store"
)

func setupApp(t *testing.T) (*App, *profile.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hot := store.NewWithClient(client, zerolog.Nop())

	statics, err := static.OpenSQLite(filepath.Join(t.TempDir(), "static.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = statics.Close() })

	indices := index.NewMaintainer(hot, 7*24*time.Hour, zerolog.Nop())
	profiles := profile.NewStore(hot, indices, 7*24*time.Hour, zerolog.Nop())
	classifier := device.NewClassifier(device.NewRedisReviewSet(hot), zerolog.Nop())
	router := events.NewRouter(profiles, classifier, zerolog.Nop())

	aggregator := aggregate.New(profiles, statics, indices, nil, zerolog.Nop())
	t.Cleanup(aggregator.Close)

	rpr := reaper.New(hot, reaper.Config{
		BatchSize:        1000,
		MaxIterations:    100,
		LockExpireTime:   50 * time.Minute,
		MaxExecutionTime: 45 * time.Minute,
	}, nil, zerolog.Nop())
	scheduler, err := reaper.NewScheduler(rpr, indices, "0 * * * *", zerolog.Nop())
	require.NoError(t, err)

	server := api.NewServer("127.0.0.1:0", api.Deps{
		Profiles:   profiles,
		Indices:    indices,
		Aggregator: aggregator,
		Classifier: classifier,
		Reaper:     rpr,
		Scheduler:  scheduler,
		Router:     router,
		Hot:        hot,
	}, zerolog.Nop())

	app := NewApp(server, scheduler, router, zerolog.Nop())
	server.SetIngest(app.Ingest)
	return app, profiles
}

func TestApp_IngestFeedsConsumer(t *testing.T) {
	app, profiles := setupApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.True(t, app.Ingest(events.ActivityEvent{
		UserID: "u-1",
		Type:   events.PageView,
		Count:  4,
	}))

	assert.Eventually(t, func() bool {
		p, err := profiles.Get(context.Background(), "u-1")
		return err == nil && p != nil && p.PageViewCount == 4
	}, 2*time.Second, 10*time.Millisecond, "queued event must reach the profile store")

	cancel()
	require.NoError(t, <-done)
}

func TestApp_IngestSaturation(t *testing.T) {
	app := NewApp(nil, nil, nil, zerolog.Nop())

	for i := 0; i < inboundBuffer; i++ {
		require.True(t, app.Ingest(events.ActivityEvent{UserID: "u", Type: events.PageView}))
	}
	assert.False(t, app.Ingest(events.ActivityEvent{UserID: "overflow", Type: events.PageView}))
}
