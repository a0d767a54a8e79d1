// SPDX-License-Identifier: MIT

// Package device normalizes free-form device tokens into a bounded
// classification domain and records unmapped tokens for human review.
package device

import "fmt"

// Class is the bounded device classification domain.
type Class string

const (
	Mobile  Class = "MOBILE"
	Desktop Class = "DESKTOP"
	Tablet  Class = "TABLET"
	SmartTV Class = "SMART_TV"
	Other   Class = "OTHER"
	Unknown Class = "UNKNOWN"
)

// Classes lists every variant, Unknown last.
var Classes = []Class{Mobile, Desktop, Tablet, SmartTV, Other, Unknown}

// Valid reports whether c is one of the bounded variants.
func (c Class) Valid() bool {
	switch c {
	case Mobile, Desktop, Tablet, SmartTV, Other, Unknown:
		return true
	}
	return false
}

// ParseClass converts a stored string back into a Class. Unrecognised
// values map to Unknown so legacy payloads stay readable.
func ParseClass(s string) Class {
	c := Class(s)
	if c.Valid() {
		return c
	}
	return Unknown
}

// MustClass is ParseClass that rejects unknown variants instead of mapping
// them. Used where the caller supplies the variant explicitly.
func MustClass(s string) (Class, error) {
	c := Class(s)
	if !c.Valid() {
		return Unknown, fmt.Errorf("unknown device class %q", s)
	}
	return c, nil
}
