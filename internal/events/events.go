// SPDX-License-Identifier: MIT

// Package events defines the engine's event boundary: inbound activity
// events from the tracking pipeline and outbound profile-update
// notifications for downstream consumers.
package events

import "time"

// EventType tags inbound activity events.
type EventType string

const (
	PageView       EventType = "PAGE_VIEW"
	SessionStart   EventType = "SESSION_START"
	DeviceObserved EventType = "DEVICE_OBSERVED"
)

// ActivityEvent is one inbound behavioral signal.
type ActivityEvent struct {
	UserID         string    `json:"user_id"`
	Type           EventType `json:"event_type"`
	DeviceRawToken string    `json:"device_raw_token,omitempty"`
	Count          uint64    `json:"count,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ProfileUpdated is published after every successful profile mutation.
type ProfileUpdated struct {
	UserID    string    `json:"user_id"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// SourceName identifies this engine on outbound events.
const SourceName = "profile-core"

// Publisher delivers outbound events. Delivery is best-effort; publishers
// must never block mutation paths.
type Publisher interface {
	PublishProfileUpdated(ev ProfileUpdated)
}
