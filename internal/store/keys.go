// SPDX-License-Identifier: MIT

package store

// Key namespace. Everything pulsehub persists lives under the "ph:" prefix,
// partitioned by kind so operators can reason about the keyspace.
const (
	ProfileKeyPrefix = "ph:profile:"

	ActiveIndexKey   = "ph:idx:active"
	PageViewIndexKey = "ph:idx:pageviews"
	ExpiryIndexKey   = "ph:idx:expiry"
	DeviceIndexKey   = "ph:idx:device:" // + device class

	UserCounterKey = "ph:counter:users"

	UnknownDeviceKey = "ph:device:unknown"

	ReaperLockKey       = "ph:lock:reaper"
	ReaperManualLockKey = "ph:lock:reaper:manual"
)

// ProfileKey returns the primary-record key for a user.
func ProfileKey(userID string) string {
	return ProfileKeyPrefix + userID
}

// DeviceKey returns the per-variant device index key.
func DeviceKey(class string) string {
	return DeviceIndexKey + class
}
