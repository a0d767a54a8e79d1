// SPDX-License-Identifier: MIT

package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/store"
)

func setupMaintainer(t *testing.T) (*store.Store, *Maintainer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hot := store.NewWithClient(client, zerolog.Nop())
	return hot, NewMaintainer(hot, 7*24*time.Hour, zerolog.Nop())
}

func seedProfile(userID string, pageViews uint64, lastActive time.Time, classes ...device.Class) *profile.Profile {
	p := &profile.Profile{
		UserID:        userID,
		PageViewCount: pageViews,
		LastActiveAt:  lastActive,
		Version:       1,
	}
	if len(classes) > 0 {
		p.MainDevice = classes[0]
		p.RecentDevices = classes
	}
	return p
}

func TestMaintainer_OnCreateFansOut(t *testing.T) {
	hot, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedProfile("u-1", 12, now, device.Mobile, device.Tablet)
	require.NoError(t, m.OnCreate(ctx, p))

	score, ok, err := hot.ZScore(ctx, store.ActiveIndexKey, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(now.UnixMilli()), score)

	score, ok, err = hot.ZScore(ctx, store.PageViewIndexKey, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(12), score)

	score, ok, err = hot.ZScore(ctx, store.ExpiryIndexKey, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, score, float64(now.UnixMilli()), "expiry deadline sits one TTL ahead")

	for _, class := range []device.Class{device.Mobile, device.Tablet} {
		members, err := hot.SMembers(ctx, store.DeviceKey(string(class)))
		require.NoError(t, err)
		assert.Contains(t, members, "u-1")
	}

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMaintainer_IndexKeysCarryTTL(t *testing.T) {
	hot, m := setupMaintainer(t)
	ctx := context.Background()

	require.NoError(t, m.OnCreate(ctx, seedProfile("u-1", 1, time.Now().UTC(), device.Mobile)))

	for _, key := range []string{
		store.ActiveIndexKey,
		store.PageViewIndexKey,
		store.ExpiryIndexKey,
		store.DeviceKey(string(device.Mobile)),
	} {
		ttl, err := hot.TTL(ctx, key)
		require.NoError(t, err)
		assert.Greater(t, ttl, 7*24*time.Hour, "index key %s must outlive the slowest profile", key)
	}
}

func TestMaintainer_OnUpdateRescores(t *testing.T) {
	hot, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.OnCreate(ctx, seedProfile("u-1", 5, now)))
	require.NoError(t, m.OnUpdate(ctx, seedProfile("u-1", 25, now.Add(time.Minute))))

	score, _, err := hot.ZScore(ctx, store.PageViewIndexKey, "u-1")
	require.NoError(t, err)
	assert.Equal(t, float64(25), score)

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "updates never change liveness")
}

func TestMaintainer_OnDeleteCleansUp(t *testing.T) {
	hot, m := setupMaintainer(t)
	ctx := context.Background()

	p := seedProfile("u-1", 5, time.Now().UTC(), device.Desktop)
	require.NoError(t, m.OnCreate(ctx, p))
	require.NoError(t, m.OnDelete(ctx, p))

	for _, key := range []string{store.ActiveIndexKey, store.PageViewIndexKey, store.ExpiryIndexKey} {
		_, ok, err := hot.ZScore(ctx, key, "u-1")
		require.NoError(t, err)
		assert.False(t, ok, "stale membership in %s", key)
	}
	members, err := hot.SMembers(ctx, store.DeviceKey(string(device.Desktop)))
	require.NoError(t, err)
	assert.NotContains(t, members, "u-1")

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMaintainer_CounterFlooredAtZero(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()

	p := seedProfile("u-1", 1, time.Now().UTC())
	require.NoError(t, m.OnDelete(ctx, p))
	require.NoError(t, m.OnDelete(ctx, p))

	n, err := m.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQueries_ActiveSince(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.OnCreate(ctx, seedProfile("fresh", 1, now.Add(-time.Minute))))
	require.NoError(t, m.OnCreate(ctx, seedProfile("stale", 1, now.Add(-2*time.Hour))))

	users, err := m.ActiveSince(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, users)

	users, err = m.ActiveSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, users)

	users, err = m.ActiveSince(ctx, -5)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestQueries_TopByPageViews(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 20; i++ {
		p := seedProfile(fmt.Sprintf("u%02d", i), uint64(i*10), now)
		require.NoError(t, m.OnCreate(ctx, p))
	}

	ranked, err := m.TopByPageViews(ctx, 50, 0, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 5)
	assert.Equal(t, "u20", ranked[0].UserID)
	assert.Equal(t, uint64(200), ranked[0].PageViews)
	for i := 1; i < len(ranked); i++ {
		assert.Greater(t, ranked[i-1].PageViews, ranked[i].PageViews, "strict descending order")
	}

	// zero-based pagination continues where the first page stopped
	next, err := m.TopByPageViews(ctx, 50, 1, 5)
	require.NoError(t, err)
	require.Len(t, next, 5)
	assert.Equal(t, "u15", next[0].UserID)

	// threshold excludes the low scorers entirely
	all, err := m.TopByPageViews(ctx, 150, 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = m.TopByPageViews(ctx, 0, 0, 0)
	require.Error(t, err)
	assert.True(t, profile.IsInvalidArgument(err))

	_, err = m.TopByPageViews(ctx, 0, -1, 5)
	require.Error(t, err)
	assert.True(t, profile.IsInvalidArgument(err))
}

func TestQueries_TopByPageViewsWithScore(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.OnCreate(ctx, seedProfile("a", 100, now)))
	require.NoError(t, m.OnCreate(ctx, seedProfile("b", 30, now)))

	got, err := m.TopByPageViewsWithScore(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"a": 100}, got)
}

func TestQueries_ByDevice(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.OnCreate(ctx, seedProfile("a", 1, now, device.Mobile)))
	require.NoError(t, m.OnCreate(ctx, seedProfile("b", 1, now, device.Mobile, device.Tablet)))

	users, err := m.ByDevice(ctx, device.Mobile)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, users)

	users, err = m.ByDevice(ctx, device.SmartTV)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = m.ByDevice(ctx, device.Class("gadget"))
	require.Error(t, err)
	assert.True(t, profile.IsInvalidArgument(err))
}

func TestQueries_DeviceDistribution(t *testing.T) {
	_, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.OnCreate(ctx, seedProfile("a", 1, now, device.Mobile)))
	require.NoError(t, m.OnCreate(ctx, seedProfile("b", 1, now, device.Mobile)))
	require.NoError(t, m.OnCreate(ctx, seedProfile("c", 1, now, device.Desktop)))

	dist, err := m.DeviceDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[device.Class]int64{
		device.Mobile:  2,
		device.Desktop: 1,
	}, dist)
}

func TestQueries_OverdueCandidates(t *testing.T) {
	hot, m := setupMaintainer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// one deadline in the past, one in the future
	require.NoError(t, hot.ZAdd(ctx, store.ExpiryIndexKey, "past", float64(now.Add(-time.Hour).UnixMilli())))
	require.NoError(t, hot.ZAdd(ctx, store.ExpiryIndexKey, "future", float64(now.Add(time.Hour).UnixMilli())))

	n, err := m.OverdueCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
