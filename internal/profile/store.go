// SPDX-License-Identifier: MIT

package profile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/metrics"
	"github.com/pulsehub/pulsehub/internal/store"
)

// IndexMaintainer receives every profile mutation so derived indices stay
// coherent with the primary record. Implementations are idempotent per index.
type IndexMaintainer interface {
	OnCreate(ctx context.Context, p *Profile) error
	OnUpdate(ctx context.Context, p *Profile) error
	OnDelete(ctx context.Context, p *Profile) error
}

// MutationHook observes successful mutations. Used to publish outbound
// profile-update events; failures inside the hook are the hook's problem.
type MutationHook func(p *Profile)

// Store is the TTL-aware keyed store of dynamic profiles.
type Store struct {
	hot     *store.Store
	indices IndexMaintainer
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
	hook    MutationHook
}

// NewStore builds the profile store. ttl is the profile lifetime, reset on
// every mutation.
func NewStore(hot *store.Store, indices IndexMaintainer, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		hot:     hot,
		indices: indices,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// SetMutationHook registers the outbound mutation observer.
func (s *Store) SetMutationHook(hook MutationHook) { s.hook = hook }

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// TTL returns the configured profile lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create persists a new profile with entity defaults applied. An existing
// live entry is overwritten last-writer-wins with its version carried
// forward, so the counter is never double-incremented.
func (s *Store) Create(ctx context.Context, p *Profile) (*Profile, error) {
	const op = "profile.create"
	if p == nil || p.UserID == "" {
		metrics.IncProfileOp("create", "invalid")
		return nil, Ef(op, KindInvalidArgument, "user_id must not be empty")
	}
	start := s.now()
	defer func() { metrics.ObserveProfileOp("create", time.Since(start)) }()

	fresh := p.clone()
	fresh.applyDefaults(s.now().UTC())

	existing, err := s.Get(ctx, fresh.UserID)
	if err != nil {
		metrics.IncProfileOp("create", "error")
		return nil, err
	}
	if existing != nil {
		// Key already live: elect last-writer-wins over raising Conflict.
		fresh.Version = existing.Version + 1
		fresh.CreatedAt = existing.CreatedAt
		if err := s.write(ctx, fresh, false); err != nil {
			metrics.IncProfileOp("create", "error")
			return nil, err
		}
		metrics.IncProfileOp("create", "success")
		return fresh, nil
	}

	if err := s.write(ctx, fresh, true); err != nil {
		metrics.IncProfileOp("create", "error")
		return nil, err
	}
	metrics.IncProfileOp("create", "success")
	return fresh, nil
}

// Get reads a profile; absent keys yield (nil, nil).
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	const op = "profile.get"
	if userID == "" {
		return nil, Ef(op, KindInvalidArgument, "user_id must not be empty")
	}
	var (
		data  []byte
		found bool
	)
	err := s.withRetry(ctx, func() error {
		var err error
		data, found, err = s.hot.Get(ctx, store.ProfileKey(userID))
		return err
	})
	if err != nil {
		return nil, s.classify(op, err)
	}
	if !found {
		return nil, nil
	}
	return Decode(data)
}

// GetMany reads a batch of profiles keyed by user id. Absent users are
// simply missing from the result; callers iterate their request slice to
// recover ordering.
func (s *Store) GetMany(ctx context.Context, userIDs []string) (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, done := out[id]; done {
			continue
		}
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[id] = p
		}
	}
	return out, nil
}

// Update rewrites an existing profile: version bump, refreshed updated_at,
// last_active_at floored at its prior value, TTL reset.
func (s *Store) Update(ctx context.Context, p *Profile) (*Profile, error) {
	const op = "profile.update"
	if p == nil || p.UserID == "" {
		metrics.IncProfileOp("update", "invalid")
		return nil, Ef(op, KindInvalidArgument, "user_id must not be empty")
	}
	start := s.now()
	defer func() { metrics.ObserveProfileOp("update", time.Since(start)) }()

	existing, err := s.Get(ctx, p.UserID)
	if err != nil {
		metrics.IncProfileOp("update", "error")
		return nil, err
	}
	if existing == nil {
		metrics.IncProfileOp("update", "error")
		return nil, Ef(op, KindNotFound, "profile %s not found", p.UserID)
	}

	next := p.clone()
	now := s.now().UTC()
	next.Version = existing.Version + 1
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = now
	if next.LastActiveAt.Before(existing.LastActiveAt) {
		next.LastActiveAt = existing.LastActiveAt
	}
	if next.LastActiveAt.After(now) {
		next.LastActiveAt = now
	}
	if next.MainDevice != "" {
		next.addRecentDevice(next.MainDevice)
	}

	if err := s.write(ctx, next, false); err != nil {
		metrics.IncProfileOp("update", "error")
		return nil, err
	}
	metrics.IncProfileOp("update", "success")
	return next, nil
}

// RecordPageViews adds count page views, creating the profile on first
// signal. count must be positive.
func (s *Store) RecordPageViews(ctx context.Context, userID string, count uint64) (*Profile, error) {
	const op = "profile.record_page_views"
	if count == 0 {
		metrics.IncProfileOp("record_page_views", "invalid")
		return nil, Ef(op, KindInvalidArgument, "count must be positive")
	}
	return s.mutate(ctx, userID, func(p *Profile) {
		p.PageViewCount += count
		p.LastActiveAt = s.now().UTC()
	})
}

// UpdateLastActive refreshes the activity timestamp. A zero at means now.
func (s *Store) UpdateLastActive(ctx context.Context, userID string, at time.Time) (*Profile, error) {
	if at.IsZero() {
		at = s.now().UTC()
	}
	return s.mutate(ctx, userID, func(p *Profile) {
		if at.After(p.LastActiveAt) {
			p.LastActiveAt = at
		}
	})
}

// UpdateDevice sets the main device classification and folds it into the
// recent-device set.
func (s *Store) UpdateDevice(ctx context.Context, userID string, class device.Class) (*Profile, error) {
	const op = "profile.update_device"
	if !class.Valid() {
		return nil, Ef(op, KindInvalidArgument, "unknown device class %q", class)
	}
	return s.mutate(ctx, userID, func(p *Profile) {
		p.MainDevice = class
		p.addRecentDevice(class)
		p.LastActiveAt = s.now().UTC()
	})
}

// BatchUpdatePageViews applies per-user page-view deltas, coalescing to one
// primary write and one index fan-out per user. Returns the number of users
// updated. Zero deltas are skipped.
func (s *Store) BatchUpdatePageViews(ctx context.Context, deltas map[string]uint64) (int, error) {
	applied := 0
	for userID, delta := range deltas {
		if userID == "" || delta == 0 {
			continue
		}
		if _, err := s.RecordPageViews(ctx, userID, delta); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Exists reports whether the user has a live profile.
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var ok bool
	err := s.withRetry(ctx, func() error {
		var err error
		ok, err = s.hot.Exists(ctx, store.ProfileKey(userID))
		return err
	})
	if err != nil {
		return false, s.classify("profile.exists", err)
	}
	return ok, nil
}

// Delete removes the profile, its index memberships and its counter share.
// Returns false when no live profile existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	const op = "profile.delete"
	if userID == "" {
		return false, nil
	}
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	var removed bool
	err = s.withRetry(ctx, func() error {
		var err error
		removed, err = s.hot.Delete(ctx, store.ProfileKey(userID))
		return err
	})
	if err != nil {
		metrics.IncProfileOp("delete", "error")
		return false, s.classify(op, err)
	}

	// Index cleanup proceeds even if the caller has gone away: a committed
	// primary delete must always be followed by an index attempt.
	detached := context.WithoutCancel(ctx)
	if err := s.indices.OnDelete(detached, existing); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event", "profile.index_cleanup_failed").
			Str("user_id", userID).
			Msg("index fan-out failed after delete; reaper will reconcile")
	}
	metrics.IncProfileOp("delete", "success")
	return removed, nil
}

// mutate is the get-or-create-then-update skeleton shared by the
// convenience operations.
func (s *Store) mutate(ctx context.Context, userID string, apply func(*Profile)) (*Profile, error) {
	if userID == "" {
		return nil, Ef("profile.mutate", KindInvalidArgument, "user_id must not be empty")
	}
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		now := s.now().UTC()
		fresh := &Profile{UserID: userID}
		fresh.applyDefaults(now)
		apply(fresh)
		// Client-supplied instants never push activity past updated_at.
		if fresh.LastActiveAt.After(now) {
			fresh.LastActiveAt = now
		}
		if err := s.write(ctx, fresh, true); err != nil {
			return nil, err
		}
		return fresh, nil
	}
	return s.Update(ctx, applyTo(existing, apply))
}

func applyTo(p *Profile, apply func(*Profile)) *Profile {
	next := p.clone()
	apply(next)
	return next
}

// write serializes and commits the primary record, then fans out to the
// indices. The fan-out runs on a cancellation-detached context so a caller
// cancel cannot strand a committed primary without an index attempt.
func (s *Store) write(ctx context.Context, p *Profile, isNew bool) error {
	const op = "profile.write"
	if err := ctx.Err(); err != nil {
		return E(op, KindTransient, err)
	}
	data, err := Encode(p)
	if err != nil {
		return err
	}
	err = s.withRetry(ctx, func() error {
		return s.hot.Set(ctx, store.ProfileKey(p.UserID), data, s.ttl)
	})
	if err != nil {
		return s.classify(op, err)
	}

	detached := context.WithoutCancel(ctx)
	if isNew {
		err = s.indices.OnCreate(detached, p)
	} else {
		err = s.indices.OnUpdate(detached, p)
	}
	if err != nil {
		// Primary committed; indices converge on the next mutation or
		// reaper cycle. Surface nothing to the caller.
		s.logger.Warn().
			Err(err).
			Str("event", "profile.index_fanout_failed").
			Str("user_id", p.UserID).
			Bool("create", isNew).
			Msg("index fan-out failed after primary write")
	}

	if s.hook != nil {
		s.hook(p)
	}
	return nil
}

// withRetry retries fn once on a transient store failure.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !store.IsTransient(err) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	s.logger.Debug().Err(err).Str("event", "profile.retry").Msg("retrying transient store failure")
	return fn()
}

// classify maps raw store errors onto the engine's error kinds.
func (s *Store) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if store.IsTransient(err) {
		return E(op, KindTransient, err)
	}
	return E(op, KindFatal, err)
}
