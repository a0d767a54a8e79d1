// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Transient error markers in server replies. Kept aligned with the reaper's
// retry policy: connection, timeout, busy, loading and overload conditions
// are retriable; everything else fails fast.
var transientMarkers = []string{
	"connection",
	"timeout",
	"socket",
	"busy",
	"loading",
	"overload",
	"i/o",
	"broken pipe",
	"refused",
	"reset",
}

// IsTransient reports whether err is a retriable transport or load failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
