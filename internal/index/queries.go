// SPDX-License-Identifier: MIT

package index

import (
	"context"
	"math"
	"time"

	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/store"
)

// RankedUser pairs a user id with its page-view score.
type RankedUser struct {
	UserID    string
	PageViews uint64
}

// ActiveSince returns users whose last activity falls within the trailing
// window, most recent first. A non-positive window yields an empty result
// without touching the store.
func (m *Maintainer) ActiveSince(ctx context.Context, windowSeconds int64) ([]string, error) {
	if windowSeconds <= 0 {
		return nil, nil
	}
	cutoff := m.now().UTC().Add(-time.Duration(windowSeconds) * time.Second)
	members, err := m.hot.ZRevRangeByScoreWithScores(ctx, store.ActiveIndexKey,
		float64(cutoff.UnixMilli()), math.Inf(1), 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(members))
	for i, mem := range members {
		out[i] = mem.ID
	}
	return out, nil
}

// TopByPageViews returns users with at least minViews page views in strict
// descending score order. page is zero-based; size must be positive.
// Scores are re-verified at assembly time so a concurrent decrement between
// range fetch and return cannot surface an under-threshold user.
func (m *Maintainer) TopByPageViews(ctx context.Context, minViews uint64, page, size int) ([]RankedUser, error) {
	if size <= 0 {
		return nil, profile.Ef("index.top_by_pageviews", profile.KindInvalidArgument, "size must be positive")
	}
	if page < 0 {
		return nil, profile.Ef("index.top_by_pageviews", profile.KindInvalidArgument, "page must not be negative")
	}
	members, err := m.hot.ZRevRangeByScoreWithScores(ctx, store.PageViewIndexKey,
		float64(minViews), math.Inf(1), int64(page)*int64(size), int64(size))
	if err != nil {
		return nil, err
	}
	out := make([]RankedUser, 0, len(members))
	for _, mem := range members {
		// Second-pass filter against races with concurrent updates.
		if mem.Score < float64(minViews) {
			continue
		}
		out = append(out, RankedUser{UserID: mem.ID, PageViews: uint64(mem.Score)})
	}
	return out, nil
}

// TopByPageViewsWithScore returns every user meeting the threshold keyed by
// id with its current score.
func (m *Maintainer) TopByPageViewsWithScore(ctx context.Context, minViews uint64) (map[string]uint64, error) {
	members, err := m.hot.ZRevRangeByScoreWithScores(ctx, store.PageViewIndexKey,
		float64(minViews), math.Inf(1), 0, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(members))
	for _, mem := range members {
		if mem.Score < float64(minViews) {
			continue
		}
		out[mem.ID] = uint64(mem.Score)
	}
	return out, nil
}

// ByDevice returns the users carrying the given device class.
func (m *Maintainer) ByDevice(ctx context.Context, class device.Class) ([]string, error) {
	if !class.Valid() {
		return nil, profile.Ef("index.by_device", profile.KindInvalidArgument, "unknown device class %q", class)
	}
	return m.hot.SMembers(ctx, store.DeviceKey(string(class)))
}

// DeviceDistribution returns the user count per device class.
func (m *Maintainer) DeviceDistribution(ctx context.Context) (map[device.Class]int64, error) {
	out := make(map[device.Class]int64, len(device.Classes))
	for _, class := range device.Classes {
		n, err := m.hot.SCard(ctx, store.DeviceKey(string(class)))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out[class] = n
		}
	}
	return out, nil
}

// UserCount reads the store-side total-user counter. Exact only after a
// completed reaper reconciliation.
func (m *Maintainer) UserCount(ctx context.Context) (int64, error) {
	return m.hot.GetInt(ctx, store.UserCounterKey)
}

// OverdueCandidates counts expiry-index members whose deadline has passed.
func (m *Maintainer) OverdueCandidates(ctx context.Context) (int64, error) {
	now := m.now().UTC()
	return m.hot.ZCount(ctx, store.ExpiryIndexKey, math.Inf(-1), float64(now.UnixMilli()))
}
