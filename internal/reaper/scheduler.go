// SPDX-License-Identifier: MIT

package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/store"
)

// Status is the operator-facing view of the reaper.
type Status struct {
	Running           bool      `json:"running"`
	OverdueCandidates int64     `json:"overdue_candidate_count"`
	CurrentUserCount  int64     `json:"current_user_count"`
	NextScheduledAt   time.Time `json:"next_scheduled_at"`
}

// Scheduler drives the reaper on a wall-clock cron schedule (UTC). The cron
// runner owns the scheduling channel; tick execution happens in the job
// goroutine, so a slow tick cannot starve the schedule. A saturated executor
// simply loses the next lease race, which is the intended back-pressure.
type Scheduler struct {
	reaper  *Reaper
	indices *index.Maintainer
	cron    *cron.Cron
	entryID cron.EntryID
	logger  zerolog.Logger
}

// NewScheduler wires the reaper to the given cron expression.
func NewScheduler(r *Reaper, indices *index.Maintainer, spec string, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		reaper:  r,
		indices: indices,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger,
	}
	entryID, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", spec, err)
	}
	s.entryID = entryID
	return s, nil
}

// Start launches the schedule and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().
		Str("event", "reaper.schedule_started").
		Time("next", s.cron.Entry(s.entryID).Schedule.Next(time.Now().UTC())).
		Msg("reaper schedule started")
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let an in-flight tick finish; its outer deadline bounds the wait.
	<-stopCtx.Done()
	return nil
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if _, err := s.reaper.RunScheduled(ctx); err != nil && !errors.Is(err, ErrLeaseHeld) {
		s.logger.Error().Err(err).Str("event", "reaper.scheduled_tick_failed").Msg("scheduled tick failed")
	}
}

// NextRun returns the next scheduled tick time.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Status reports whether a tick is running (lease held), the overdue
// candidate backlog, the current counter value and the next schedule slot.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	st := Status{NextScheduledAt: s.NextRun()}

	for _, key := range []string{store.ReaperLockKey, store.ReaperManualLockKey} {
		held, err := s.reaper.hot.Exists(ctx, key)
		if err != nil {
			return st, fmt.Errorf("check lease %s: %w", key, err)
		}
		if held {
			st.Running = true
			break
		}
	}

	overdue, err := s.indices.OverdueCandidates(ctx)
	if err != nil {
		return st, fmt.Errorf("count overdue candidates: %w", err)
	}
	st.OverdueCandidates = overdue

	count, err := s.indices.UserCount(ctx)
	if err != nil {
		return st, fmt.Errorf("read user counter: %w", err)
	}
	st.CurrentUserCount = count
	return st, nil
}
