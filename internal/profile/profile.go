// SPDX-License-Identifier: MIT

// Package profile owns the dynamic behavioral profile: the hot-tier entity,
// its serialization and the TTL-aware keyed store.
package profile

import (
	"time"

	"github.com/pulsehub/pulsehub/internal/device"
)

// MaxRecentDevices bounds the recent-device set per profile.
const MaxRecentDevices = 8

// Profile is the hot-tier behavioral state for one user.
type Profile struct {
	UserID        string
	LastActiveAt  time.Time
	PageViewCount uint64
	MainDevice    device.Class   // empty when never observed
	RecentDevices []device.Class // bounded, deduplicated, insertion order
	Version       uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasDevice reports whether class appears as main or recent device.
func (p *Profile) HasDevice(class device.Class) bool {
	if p.MainDevice == class {
		return true
	}
	for _, d := range p.RecentDevices {
		if d == class {
			return true
		}
	}
	return false
}

// DeviceClasses returns the distinct set of classes the profile carries.
func (p *Profile) DeviceClasses() []device.Class {
	seen := make(map[device.Class]bool, len(p.RecentDevices)+1)
	out := make([]device.Class, 0, len(p.RecentDevices)+1)
	if p.MainDevice != "" {
		seen[p.MainDevice] = true
		out = append(out, p.MainDevice)
	}
	for _, d := range p.RecentDevices {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// addRecentDevice appends class to the recent set, evicting the oldest entry
// once the cap is reached. No-op when already present.
func (p *Profile) addRecentDevice(class device.Class) {
	for _, d := range p.RecentDevices {
		if d == class {
			return
		}
	}
	p.RecentDevices = append(p.RecentDevices, class)
	if len(p.RecentDevices) > MaxRecentDevices {
		p.RecentDevices = p.RecentDevices[1:]
	}
}

// applyDefaults fills zero values per the entity contract: a fresh profile
// starts at version 1 with an empty device set.
func (p *Profile) applyDefaults(now time.Time) {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.LastActiveAt.IsZero() {
		p.LastActiveAt = now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.MainDevice != "" {
		p.addRecentDevice(p.MainDevice)
	}
}

// clone returns a deep copy so callers never alias the store's view.
func (p *Profile) clone() *Profile {
	cp := *p
	cp.RecentDevices = append([]device.Class(nil), p.RecentDevices...)
	return &cp
}
