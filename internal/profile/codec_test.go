// SPDX-License-Identifier: MIT

package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehub/pulsehub/internal/device"
)

func TestCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	in := &Profile{
		UserID:        "u-1",
		LastActiveAt:  now,
		PageViewCount: 42,
		MainDevice:    device.Mobile,
		RecentDevices: []device.Class{device.Mobile, device.Tablet},
		Version:       7,
		CreatedAt:     now.Add(-time.Hour),
		UpdatedAt:     now,
	}

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_LegacyDefaults(t *testing.T) {
	// minimal payload: only the identity survives, everything else defaults
	out, err := Decode([]byte(`{"schema_version":1,"user_id":"u-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "u-1", out.UserID)
	assert.Equal(t, uint64(1), out.Version)
	assert.Zero(t, out.PageViewCount)
	assert.Empty(t, out.MainDevice)
	assert.Empty(t, out.RecentDevices)
	assert.True(t, out.LastActiveAt.IsZero())
}

func TestCodec_LegacyMainDeviceJoinsRecent(t *testing.T) {
	// older payloads stored only main_device; the main device is always a
	// member of the recent set
	out, err := Decode([]byte(`{"schema_version":1,"user_id":"u-1","main_device":"MOBILE"}`))
	require.NoError(t, err)
	assert.Equal(t, device.Mobile, out.MainDevice)
	assert.Equal(t, []device.Class{device.Mobile}, out.RecentDevices)
}

func TestCodec_UnknownFieldsTolerated(t *testing.T) {
	out, err := Decode([]byte(`{"schema_version":1,"user_id":"u-1","future_field":{"x":1},"version":3}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out.Version)
}

func TestCodec_UnknownDeviceMapsToUnknown(t *testing.T) {
	out, err := Decode([]byte(`{"schema_version":1,"user_id":"u-1","main_device":"HOVERBOARD","recent_devices":["HOVERBOARD","MOBILE"]}`))
	require.NoError(t, err)
	assert.Equal(t, device.Unknown, out.MainDevice)
	assert.Equal(t, []device.Class{device.Unknown, device.Mobile}, out.RecentDevices)
}

func TestCodec_SchemaAheadRejected(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":99,"user_id":"u-1"}`))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestCodec_CorruptPayloadRejected(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":`))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestCodec_MissingUserIDRejected(t *testing.T) {
	_, err := Decode([]byte(`{"schema_version":1}`))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestProfile_RecentDeviceBound(t *testing.T) {
	p := &Profile{UserID: "u-1"}
	classes := []device.Class{
		device.Mobile, device.Desktop, device.Tablet, device.SmartTV,
		device.Other, device.Unknown,
	}
	for i := 0; i < 3; i++ {
		for _, c := range classes {
			p.addRecentDevice(c)
		}
	}
	assert.LessOrEqual(t, len(p.RecentDevices), MaxRecentDevices)
	assert.Equal(t, classes, p.RecentDevices, "re-adding must not duplicate or reorder")
}

func TestProfile_DeviceClasses(t *testing.T) {
	p := &Profile{
		UserID:        "u-1",
		MainDevice:    device.Mobile,
		RecentDevices: []device.Class{device.Mobile, device.Tablet},
	}
	assert.Equal(t, []device.Class{device.Mobile, device.Tablet}, p.DeviceClasses())
	assert.True(t, p.HasDevice(device.Tablet))
	assert.False(t, p.HasDevice(device.Desktop))
}
