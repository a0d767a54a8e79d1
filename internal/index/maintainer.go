// SPDX-License-Identifier: MIT

// Package index keeps the derived indices coherent with the dynamic profile
// store: active-users by recency, page-view rank, expiry queue, per-device
// membership and the total-user counter.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/store"
)

// indexTTLSlack keeps index keys alive one day past the slowest profile.
const indexTTLSlack = 24 * time.Hour

// Maintainer fans every profile mutation out to the derived indices.
// Each per-index write is idempotent; readers must treat cross-index
// membership as eventual.
type Maintainer struct {
	hot    *store.Store
	ttl    time.Duration // profile TTL, drives expiry scores
	logger zerolog.Logger
	now    func() time.Time
}

// NewMaintainer builds the index maintainer for the given profile TTL.
func NewMaintainer(hot *store.Store, ttl time.Duration, logger zerolog.Logger) *Maintainer {
	return &Maintainer{hot: hot, ttl: ttl, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (m *Maintainer) SetClock(now func() time.Time) { m.now = now }

// OnCreate registers a fresh profile in every index and bumps the counter.
func (m *Maintainer) OnCreate(ctx context.Context, p *profile.Profile) error {
	if err := m.fanOut(ctx, p); err != nil {
		return err
	}
	if _, err := m.hot.IncrBy(ctx, store.UserCounterKey, 1); err != nil {
		return fmt.Errorf("increment user counter: %w", err)
	}
	return nil
}

// OnUpdate re-ranks the profile in every index. The counter is untouched:
// an update never changes liveness.
func (m *Maintainer) OnUpdate(ctx context.Context, p *profile.Profile) error {
	return m.fanOut(ctx, p)
}

// OnDelete removes the profile from every index it participates in and
// decrements the counter, floored at zero.
func (m *Maintainer) OnDelete(ctx context.Context, p *profile.Profile) error {
	if err := m.hot.ZRem(ctx, store.ActiveIndexKey, p.UserID); err != nil {
		return fmt.Errorf("remove from active index: %w", err)
	}
	if err := m.hot.ZRem(ctx, store.PageViewIndexKey, p.UserID); err != nil {
		return fmt.Errorf("remove from page-view index: %w", err)
	}
	if err := m.hot.ZRem(ctx, store.ExpiryIndexKey, p.UserID); err != nil {
		return fmt.Errorf("remove from expiry index: %w", err)
	}
	for _, class := range p.DeviceClasses() {
		if err := m.hot.SRem(ctx, store.DeviceKey(string(class)), p.UserID); err != nil {
			return fmt.Errorf("remove from device index %s: %w", class, err)
		}
	}
	n, err := m.hot.IncrBy(ctx, store.UserCounterKey, -1)
	if err != nil {
		return fmt.Errorf("decrement user counter: %w", err)
	}
	if n < 0 {
		if err := m.hot.SetInt(ctx, store.UserCounterKey, 0); err != nil {
			return fmt.Errorf("floor user counter: %w", err)
		}
	}
	return nil
}

// fanOut issues the index writes in the fixed order
// {active, page-view, expiry, device} and refreshes each index key's TTL.
func (m *Maintainer) fanOut(ctx context.Context, p *profile.Profile) error {
	now := m.now().UTC()
	expiry := now.Add(m.ttl)
	keyTTL := m.ttl + indexTTLSlack

	if err := m.hot.ZAdd(ctx, store.ActiveIndexKey, p.UserID, float64(p.LastActiveAt.UnixMilli())); err != nil {
		return fmt.Errorf("active index: %w", err)
	}
	if err := m.hot.ZAdd(ctx, store.PageViewIndexKey, p.UserID, float64(p.PageViewCount)); err != nil {
		return fmt.Errorf("page-view index: %w", err)
	}
	if err := m.hot.ZAdd(ctx, store.ExpiryIndexKey, p.UserID, float64(expiry.UnixMilli())); err != nil {
		return fmt.Errorf("expiry index: %w", err)
	}
	for _, class := range p.DeviceClasses() {
		if err := m.hot.SAdd(ctx, store.DeviceKey(string(class)), p.UserID); err != nil {
			return fmt.Errorf("device index %s: %w", class, err)
		}
		if err := m.hot.Expire(ctx, store.DeviceKey(string(class)), keyTTL); err != nil {
			m.logExpireFailure(store.DeviceKey(string(class)), err)
		}
	}
	for _, key := range []string{store.ActiveIndexKey, store.PageViewIndexKey, store.ExpiryIndexKey} {
		if err := m.hot.Expire(ctx, key, keyTTL); err != nil {
			m.logExpireFailure(key, err)
		}
	}
	return nil
}

func (m *Maintainer) logExpireFailure(key string, err error) {
	m.logger.Warn().
		Err(err).
		Str("event", "index.ttl_refresh_failed").
		Str("key", key).
		Msg("failed to refresh index key TTL")
}

var _ profile.IndexMaintainer = (*Maintainer)(nil)
