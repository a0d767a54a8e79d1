// SPDX-License-Identifier: MIT

// Package reaper reconciles the total-user counter and the derived indices
// with actual primary-store membership as profiles expire. Exactly one
// reaper executes per tick, guarded by a non-blocking TTL-bounded lease.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/metrics"
	"github.com/pulsehub/pulsehub/internal/store"
)

// ErrLeaseHeld means another reaper owns the tick. Callers log and move on.
var ErrLeaseHeld = errors.New("reaper lease already held")

const (
	maxAttempts    = 3
	initialBackoff = time.Second
	batchPause     = 10 * time.Millisecond
)

// Config bounds one reaper tick.
type Config struct {
	BatchSize        int           // candidates per atomic batch
	MaxIterations    int           // hard cap on batches per tick
	LockExpireTime   time.Duration // lease TTL, must exceed MaxExecutionTime
	MaxExecutionTime time.Duration // outer deadline for the whole tick
}

// Result is the triple returned by one atomic reconciliation batch.
type Result struct {
	Expired    int64
	Candidates int64
	Remaining  int64
}

// Summary aggregates a completed tick.
type Summary struct {
	TaskID          string
	TotalExpired    int64
	TotalCandidates int64
	Iterations      int
	Duration        time.Duration
}

// Reaper owns tick execution. Scheduling lives in Scheduler.
type Reaper struct {
	hot    *store.Store
	cfg    Config
	sink   EventSink
	logger zerolog.Logger
	now    func() time.Time
}

// New builds a reaper. A nil sink discards terminal events.
func New(hot *store.Store, cfg Config, sink EventSink, logger zerolog.Logger) *Reaper {
	if sink == nil {
		sink = NopSink{}
	}
	return &Reaper{hot: hot, cfg: cfg, sink: sink, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (r *Reaper) SetClock(now func() time.Time) { r.now = now }

// RunScheduled executes one tick under the scheduler's lease key.
func (r *Reaper) RunScheduled(ctx context.Context) (Summary, error) {
	return r.run(ctx, store.ReaperLockKey)
}

// RunManual executes one operator-triggered tick under a distinct lease key
// so it cannot collide with the schedule.
func (r *Reaper) RunManual(ctx context.Context) (Summary, error) {
	return r.run(ctx, store.ReaperManualLockKey)
}

func (r *Reaper) run(ctx context.Context, lockKey string) (Summary, error) {
	taskID := uuid.NewString()
	logger := r.logger.With().Str("task_id", taskID).Logger()

	token := uuid.NewString()
	acquired, err := r.hot.AcquireLease(ctx, lockKey, token, r.cfg.LockExpireTime)
	if err != nil {
		logger.Error().Err(err).Str("event", "reaper.lease_error").Msg("lease acquisition failed")
		return Summary{TaskID: taskID}, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		logger.Info().Str("event", "reaper.lease_held").Str("lock", lockKey).Msg("skipping tick, lease held elsewhere")
		metrics.IncReaperTick("skipped")
		return Summary{TaskID: taskID}, ErrLeaseHeld
	}
	defer func() {
		// Release in all paths. A failed release is logged and superseded
		// by the lease TTL before the next tick.
		if err := r.hot.ReleaseLease(context.WithoutCancel(ctx), lockKey); err != nil {
			logger.Warn().Err(err).Str("event", "reaper.lease_release_failed").Msg("failed to release lease")
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, r.cfg.MaxExecutionTime)
	defer cancel()

	start := r.now()
	summary, err := r.runWithRetry(tickCtx, logger)
	summary.TaskID = taskID
	summary.Duration = r.now().Sub(start)

	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "reaper.tick_failed").
			Dur("duration", summary.Duration).
			Msg("reaper tick failed")
		metrics.IncReaperTick("failed")
		r.sink.CleanupFailed(CleanupFailed{TaskID: taskID, Error: err.Error(), Timestamp: r.now().UTC()})
		return summary, err
	}

	logger.Info().
		Str("event", "reaper.tick_completed").
		Int64("total_expired", summary.TotalExpired).
		Int64("total_candidates", summary.TotalCandidates).
		Int("iterations", summary.Iterations).
		Dur("duration", summary.Duration).
		Msg("reaper tick completed")
	metrics.IncReaperTick("completed")
	metrics.AddReaperExpired(summary.TotalExpired)
	metrics.ObserveReaperTick(summary.Duration)
	r.sink.CleanupCompleted(CleanupCompleted{
		TaskID:          taskID,
		TotalExpired:    summary.TotalExpired,
		TotalCandidates: summary.TotalCandidates,
		Iterations:      summary.Iterations,
		Duration:        summary.Duration,
	})
	return summary, nil
}

// runWithRetry executes the batch loop with exponential backoff on transient
// failures, up to three attempts per tick.
func (r *Reaper) runWithRetry(ctx context.Context, logger zerolog.Logger) (Summary, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		summary, err := r.reconcile(ctx, logger)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if !store.IsTransient(err) || ctx.Err() != nil {
			return summary, err
		}
		logger.Warn().
			Err(err).
			Str("event", "reaper.attempt_failed").
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient failure, backing off")
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return Summary{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

// reconcile drains the overdue expiry range in bounded atomic batches.
func (r *Reaper) reconcile(ctx context.Context, logger zerolog.Logger) (Summary, error) {
	var summary Summary
	for i := 0; i < r.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := r.runBatch(ctx)
		if err != nil {
			return summary, err
		}
		summary.Iterations++
		summary.TotalExpired += res.Expired
		summary.TotalCandidates += res.Candidates

		logger.Debug().
			Str("event", "reaper.batch").
			Int64("expired", res.Expired).
			Int64("candidates", res.Candidates).
			Int64("remaining", res.Remaining).
			Msg("batch reconciled")

		if res.Remaining == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-time.After(batchPause):
		}
	}
	return summary, nil
}

// runBatch executes the atomic reconciliation script once.
func (r *Reaper) runBatch(ctx context.Context) (Result, error) {
	nowMs := r.now().UTC().UnixMilli()
	raw, err := r.hot.RunScript(ctx, reconcileScript,
		[]string{store.ExpiryIndexKey, store.UserCounterKey},
		store.ProfileKeyPrefix, nowMs, r.cfg.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile script: %w", err)
	}
	vals, ok := raw.([]any)
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("reconcile script returned unexpected shape %T", raw)
	}
	res := Result{
		Expired:    asInt64(vals[0]),
		Candidates: asInt64(vals[1]),
		Remaining:  asInt64(vals[2]),
	}
	return res, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
