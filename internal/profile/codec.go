// SPDX-License-Identifier: MIT

package profile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsehub/pulsehub/internal/device"
)

// SchemaVersion tags every stored payload. Decoding tolerates unknown fields
// and any schema version up to the current one; newer versions are rejected
// as corruption rather than silently misread.
const SchemaVersion = 1

// wireProfile is the stored JSON shape. Instants are epoch milliseconds so
// payloads stay human-debuggable and stable across timezones.
type wireProfile struct {
	Schema        int      `json:"schema_version"`
	UserID        string   `json:"user_id"`
	LastActiveAt  int64    `json:"last_active_at,omitempty"`
	PageViewCount uint64   `json:"page_view_count,omitempty"`
	MainDevice    string   `json:"main_device,omitempty"`
	RecentDevices []string `json:"recent_devices,omitempty"`
	Version       uint64   `json:"version,omitempty"`
	CreatedAt     int64    `json:"created_at,omitempty"`
	UpdatedAt     int64    `json:"updated_at,omitempty"`
}

// Encode serializes a profile to its stored payload.
func Encode(p *Profile) ([]byte, error) {
	w := wireProfile{
		Schema:        SchemaVersion,
		UserID:        p.UserID,
		LastActiveAt:  toMillis(p.LastActiveAt),
		PageViewCount: p.PageViewCount,
		MainDevice:    string(p.MainDevice),
		Version:       p.Version,
		CreatedAt:     toMillis(p.CreatedAt),
		UpdatedAt:     toMillis(p.UpdatedAt),
	}
	if len(p.RecentDevices) > 0 {
		w.RecentDevices = make([]string, len(p.RecentDevices))
		for i, d := range p.RecentDevices {
			w.RecentDevices[i] = string(d)
		}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, E("profile.encode", KindFatal, err)
	}
	return data, nil
}

// Decode deserializes a stored payload, mapping absent or legacy fields to
// entity defaults. Unknown fields are ignored for forward compatibility.
func Decode(data []byte) (*Profile, error) {
	var w wireProfile
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, E("profile.decode", KindFatal, fmt.Errorf("corrupt payload: %w", err))
	}
	if w.Schema > SchemaVersion {
		return nil, Ef("profile.decode", KindFatal, "schema version %d ahead of supported %d", w.Schema, SchemaVersion)
	}
	if w.UserID == "" {
		return nil, Ef("profile.decode", KindFatal, "payload missing user_id")
	}
	p := &Profile{
		UserID:        w.UserID,
		LastActiveAt:  fromMillis(w.LastActiveAt),
		PageViewCount: w.PageViewCount,
		Version:       w.Version,
		CreatedAt:     fromMillis(w.CreatedAt),
		UpdatedAt:     fromMillis(w.UpdatedAt),
	}
	if w.Version == 0 {
		p.Version = 1
	}
	if w.MainDevice != "" {
		p.MainDevice = device.ParseClass(w.MainDevice)
	}
	for _, d := range w.RecentDevices {
		p.addRecentDevice(device.ParseClass(d))
	}
	// Legacy payloads may carry a main device without a recent set; the main
	// device is always a member of the recent set.
	if p.MainDevice != "" {
		p.addRecentDevice(p.MainDevice)
	}
	return p, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
