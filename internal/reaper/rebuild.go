// SPDX-License-Identifier: MIT

package reaper

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulsehub/pulsehub/internal/store"
)

// RebuildCounter re-derives the total-user counter and the expiry index
// from the primary keyspace with a non-blocking cursor scan. Used by the
// operator CLI after suspected drift.
func (r *Reaper) RebuildCounter(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	now := r.now().UTC()
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		keys, next, err := r.hot.Scan(ctx, cursor, store.ProfileKeyPrefix+"*", int64(r.cfg.BatchSize))
		if err != nil {
			return total, fmt.Errorf("scan primaries: %w", err)
		}
		for _, key := range keys {
			userID := strings.TrimPrefix(key, store.ProfileKeyPrefix)
			ttl, err := r.hot.TTL(ctx, key)
			if err != nil {
				return total, fmt.Errorf("ttl of %s: %w", key, err)
			}
			if ttl <= 0 {
				// Evicted between scan and ttl read, or persisted without
				// TTL; either way it has no expiry slot.
				continue
			}
			expiry := now.Add(ttl)
			if err := r.hot.ZAdd(ctx, store.ExpiryIndexKey, userID, float64(expiry.UnixMilli())); err != nil {
				return total, fmt.Errorf("rebuild expiry index: %w", err)
			}
			total++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := r.hot.SetInt(ctx, store.UserCounterKey, total); err != nil {
		return total, fmt.Errorf("reset counter: %w", err)
	}
	r.logger.Info().
		Str("event", "reaper.counter_rebuilt").
		Int64("total", total).
		Msg("counter and expiry index rebuilt from primary scan")
	return total, nil
}
