// SPDX-License-Identifier: MIT

package reaper

import "time"

// CleanupCompleted is the terminal event of a successful tick.
type CleanupCompleted struct {
	TaskID          string        `json:"task_id"`
	TotalExpired    int64         `json:"total_expired"`
	TotalCandidates int64         `json:"total_candidates"`
	Iterations      int           `json:"iterations"`
	Duration        time.Duration `json:"duration"`
}

// CleanupFailed is the terminal event of a tick that exhausted its retries.
type CleanupFailed struct {
	TaskID    string    `json:"task_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives the one terminal event each tick emits.
// Implementations must not block.
type EventSink interface {
	CleanupCompleted(ev CleanupCompleted)
	CleanupFailed(ev CleanupFailed)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) CleanupCompleted(CleanupCompleted) {}
func (NopSink) CleanupFailed(CleanupFailed)       {}
