// SPDX-License-Identifier: MIT

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pulsehub/pulsehub/internal/cache"
	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/metrics"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/static"
)

// DocumentSink receives materialized snapshots for the cold tier. The core
// only ever writes to it.
type DocumentSink interface {
	UpsertDocument(ctx context.Context, s *Snapshot) error
}

// Cache TTLs for the scenario read paths. CRM reads are freshness-first,
// analytics reads are throughput-first.
const (
	crmCacheTTL       = 30 * time.Second
	analyticsCacheTTL = 10 * time.Minute
)

// Totals carries the two distinct user-count semantics the engine exposes:
// the hot-tier counter and the static-store row count. Both are kept until
// product decides which is canonical.
type Totals struct {
	TotalUsers  int64 `json:"total_users"` // hot-tier counter
	RedisUsers  int64 `json:"redis_users"` // alias kept for dashboard parity
	StaticUsers int64 `json:"static_users"`
}

// Aggregator composes dynamic and static profiles into snapshots. It holds
// non-owning handles to both stores and degrades instead of failing when a
// side is unavailable.
type Aggregator struct {
	dynamic *profile.Store
	statics static.Store
	indices *index.Maintainer
	sink    DocumentSink // optional

	crmCache       *cache.Cache[*Snapshot]
	analyticsCache *cache.Cache[*Snapshot]
	group          singleflight.Group

	logger zerolog.Logger
	now    func() time.Time
}

// New builds an aggregator. sink may be nil when no cold tier is attached.
func New(dynamic *profile.Store, statics static.Store, indices *index.Maintainer, sink DocumentSink, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		dynamic:        dynamic,
		statics:        statics,
		indices:        indices,
		sink:           sink,
		crmCache:       cache.New[*Snapshot](time.Minute),
		analyticsCache: cache.New[*Snapshot](5 * time.Minute),
		logger:         logger,
		now:            time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Close stops the cache sweepers.
func (a *Aggregator) Close() {
	a.crmCache.Close()
	a.analyticsCache.Close()
}

// GetProfile composes the freshest snapshot. Returns (nil, nil) when the
// user exists on neither side. A transient failure on one side degrades the
// snapshot rather than failing the read.
func (a *Aggregator) GetProfile(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, profile.Ef("aggregate.get_profile", profile.KindInvalidArgument, "user_id must not be empty")
	}
	snap := a.compose(ctx, userID)
	if snap.Static == nil && snap.Dynamic == nil && !snap.Degraded {
		metrics.IncSnapshotCompose("default", "absent")
		return nil, nil
	}
	outcome := "full"
	if snap.Degraded {
		outcome = "degraded"
	}
	metrics.IncSnapshotCompose("default", outcome)
	return snap, nil
}

// GetForCRM is the freshness-first read path. A cached composition is
// served only while the dynamic side is provably unchanged (same version);
// anything older than one cache epoch is recomposed.
func (a *Aggregator) GetForCRM(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, profile.Ef("aggregate.get_for_crm", profile.KindInvalidArgument, "user_id must not be empty")
	}
	current, derr := a.dynamic.Get(ctx, userID)
	if derr == nil {
		if cached, ok := a.crmCache.Get(userID); ok && sameDynamicVersion(cached, current) {
			metrics.IncSnapshotCompose("crm", "cached")
			return cached, nil
		}
	}

	snap := a.composeWithDynamic(ctx, userID, current, derr)
	if snap.Static == nil && snap.Dynamic == nil && !snap.Degraded {
		metrics.IncSnapshotCompose("crm", "absent")
		return nil, nil
	}
	a.crmCache.Set(userID, snap, crmCacheTTL)
	outcome := "full"
	if snap.Degraded {
		outcome = "degraded"
	}
	metrics.IncSnapshotCompose("crm", outcome)
	return snap, nil
}

// GetForAnalytics is the throughput-first read path; stale reads within the
// cache TTL are acceptable. Concurrent misses for one user coalesce into a
// single composition.
func (a *Aggregator) GetForAnalytics(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, profile.Ef("aggregate.get_for_analytics", profile.KindInvalidArgument, "user_id must not be empty")
	}
	if cached, ok := a.analyticsCache.Get(userID); ok {
		metrics.IncSnapshotCompose("analytics", "cached")
		return cached, nil
	}
	v, err, _ := a.group.Do(userID, func() (any, error) {
		snap := a.compose(ctx, userID)
		if snap.Static == nil && snap.Dynamic == nil && !snap.Degraded {
			return (*Snapshot)(nil), nil
		}
		a.analyticsCache.Set(userID, snap, analyticsCacheTTL)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	snap := v.(*Snapshot)
	if snap == nil {
		metrics.IncSnapshotCompose("analytics", "absent")
		return nil, nil
	}
	outcome := "full"
	if snap.Degraded {
		outcome = "degraded"
	}
	metrics.IncSnapshotCompose("analytics", outcome)
	return snap, nil
}

// Materialize composes a snapshot and hands it to the cold-tier sink.
func (a *Aggregator) Materialize(ctx context.Context, userID string) error {
	if a.sink == nil {
		return nil
	}
	snap, err := a.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	if err := a.sink.UpsertDocument(ctx, snap); err != nil {
		return fmt.Errorf("materialize %s: %w", userID, err)
	}
	return nil
}

// UserTotals reports both user-count semantics side by side.
func (a *Aggregator) UserTotals(ctx context.Context) (Totals, error) {
	var t Totals
	hot, err := a.indices.UserCount(ctx)
	if err != nil {
		return t, fmt.Errorf("hot-tier count: %w", err)
	}
	t.TotalUsers = hot
	t.RedisUsers = hot
	cold, err := a.statics.Count(ctx)
	if err != nil {
		return t, fmt.Errorf("static count: %w", err)
	}
	t.StaticUsers = cold
	return t, nil
}

// compose reads both sides and assembles the snapshot, degrading on
// transient failures.
func (a *Aggregator) compose(ctx context.Context, userID string) *Snapshot {
	dyn, derr := a.dynamic.Get(ctx, userID)
	return a.composeWithDynamic(ctx, userID, dyn, derr)
}

func (a *Aggregator) composeWithDynamic(ctx context.Context, userID string, dyn *profile.Profile, derr error) *Snapshot {
	snap := &Snapshot{UserID: userID, Dynamic: dyn}

	if derr != nil {
		snap.Degraded = true
		snap.Warning = "dynamic profile unavailable"
		metrics.IncAggregatorWarning()
		a.logger.Warn().
			Err(derr).
			Str("event", "aggregate.dynamic_degraded").
			Str("user_id", userID).
			Msg("serving static-only snapshot")
	}

	st, serr := a.statics.GetByID(ctx, userID)
	switch {
	case serr == nil:
		snap.Static = st
	case errors.Is(serr, static.ErrNotFound):
		// absent is a valid composition, not a failure
	default:
		snap.Degraded = true
		snap.Warning = "static profile unavailable"
		metrics.IncAggregatorWarning()
		a.logger.Warn().
			Err(serr).
			Str("event", "aggregate.static_degraded").
			Str("user_id", userID).
			Msg("serving dynamic-only snapshot")
	}

	snap.finalize(a.now().UTC())
	return snap
}

func sameDynamicVersion(cached *Snapshot, current *profile.Profile) bool {
	if cached == nil {
		return false
	}
	if cached.Dynamic == nil || current == nil {
		return cached.Dynamic == nil && current == nil
	}
	return cached.Dynamic.Version == current.Version
}
