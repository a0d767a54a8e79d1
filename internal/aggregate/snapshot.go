// SPDX-License-Identifier: MIT

// Package aggregate composes the dynamic behavioral profile with the static
// demographic profile into ephemeral, scenario-tagged snapshots.
package aggregate

import (
	"time"

	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/static"
)

// ActivityLevel buckets how recently the user was active.
type ActivityLevel string

const (
	VeryActive      ActivityLevel = "VERY_ACTIVE"
	Active          ActivityLevel = "ACTIVE"
	Dormant         ActivityLevel = "DORMANT"
	UnknownActivity ActivityLevel = "UNKNOWN"
)

// Snapshot is the immutable composed read of one user. It is materialized
// per read and never persisted as-is.
type Snapshot struct {
	UserID  string
	Static  *static.Profile  // nil when absent or unavailable
	Dynamic *profile.Profile // nil when absent or unavailable

	ActivityLevel   ActivityLevel
	ValueScore      int // 0-100
	IsHighValueUser bool

	// Degraded marks a snapshot composed despite a collaborator failure.
	Degraded bool
	Warning  string

	ComposedAt time.Time
}

// highValueThreshold gates IsHighValueUser alongside recent activity.
const highValueThreshold = 80

// activity windows
const (
	veryActiveWindow = time.Hour
	activeWindow     = 24 * time.Hour
	dormantWindow    = 30 * 24 * time.Hour
)

// deriveActivity buckets last activity relative to now. A nil dynamic side
// always yields UNKNOWN.
func deriveActivity(p *profile.Profile, now time.Time) ActivityLevel {
	if p == nil || p.LastActiveAt.IsZero() {
		return UnknownActivity
	}
	idle := now.Sub(p.LastActiveAt)
	switch {
	case idle <= veryActiveWindow:
		return VeryActive
	case idle <= activeWindow:
		return Active
	case idle <= dormantWindow:
		return Dormant
	}
	return UnknownActivity
}

// deriveValueScore combines demographic completeness with behavioral
// engagement, equal weight, bounded 0-100. Unknown sides score zero, so a
// fully degraded snapshot can never clear the high-value threshold.
func deriveValueScore(s *static.Profile, p *profile.Profile) int {
	completeness := 0
	if s != nil {
		completeness = s.Completeness()
	}
	engagement := 0
	if p != nil {
		engagement = int(p.PageViewCount / 10)
		if engagement > 100 {
			engagement = 100
		}
	}
	return (completeness + engagement) / 2
}

// finalize fills the derived fields from the composed sides.
func (s *Snapshot) finalize(now time.Time) {
	s.ActivityLevel = deriveActivity(s.Dynamic, now)
	s.ValueScore = deriveValueScore(s.Static, s.Dynamic)
	s.IsHighValueUser = s.ValueScore >= highValueThreshold &&
		(s.ActivityLevel == VeryActive || s.ActivityLevel == Active)
	s.ComposedAt = now
}
