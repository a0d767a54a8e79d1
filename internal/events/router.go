// SPDX-License-Identifier: MIT

package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/metrics"
	"github.com/pulsehub/pulsehub/internal/profile"
)

// Router maps inbound activity events onto profile store mutations:
// PAGE_VIEW → page-view counter, SESSION_START → last-active refresh,
// DEVICE_OBSERVED → classification then device update.
type Router struct {
	profiles   *profile.Store
	classifier *device.Classifier
	logger     zerolog.Logger
}

// NewRouter wires the event boundary to the profile store.
func NewRouter(profiles *profile.Store, classifier *device.Classifier, logger zerolog.Logger) *Router {
	return &Router{profiles: profiles, classifier: classifier, logger: logger}
}

// Handle applies one inbound event. Unroutable events are dropped with a
// warning rather than failing the feed.
func (r *Router) Handle(ctx context.Context, ev ActivityEvent) error {
	if ev.UserID == "" {
		metrics.IncEventRouted(string(ev.Type), "dropped")
		return fmt.Errorf("activity event without user_id")
	}

	var err error
	switch ev.Type {
	case PageView:
		count := ev.Count
		if count == 0 {
			count = 1
		}
		_, err = r.profiles.RecordPageViews(ctx, ev.UserID, count)
	case SessionStart:
		_, err = r.profiles.UpdateLastActive(ctx, ev.UserID, ev.Timestamp)
	case DeviceObserved:
		class := r.classifier.Classify(ctx, ev.DeviceRawToken)
		_, err = r.profiles.UpdateDevice(ctx, ev.UserID, class)
	default:
		metrics.IncEventRouted(string(ev.Type), "dropped")
		r.logger.Warn().
			Str("event", "events.unroutable").
			Str("type", string(ev.Type)).
			Str("user_id", ev.UserID).
			Msg("dropping event with unknown type")
		return nil
	}

	if err != nil {
		metrics.IncEventRouted(string(ev.Type), "error")
		return fmt.Errorf("route %s for %s: %w", ev.Type, ev.UserID, err)
	}
	metrics.IncEventRouted(string(ev.Type), "applied")
	return nil
}

// Consume drains inbound events from ch until ctx is cancelled or the
// channel closes. Routing failures are logged and do not stop the feed.
func (r *Router) Consume(ctx context.Context, ch <-chan ActivityEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.Error().
					Err(err).
					Str("event", "events.route_failed").
					Str("user_id", ev.UserID).
					Msg("failed to apply activity event")
			}
		}
	}
}
