// SPDX-License-Identifier: MIT

// Package static defines the persistent demographic profile collaborator:
// the entity, the store contract and a SQLite implementation.
package static

import "time"

// Gender is the bounded demographic variant.
type Gender string

const (
	Male        Gender = "MALE"
	Female      Gender = "FEMALE"
	OtherGender Gender = "OTHER"
)

// AgeGroup is the bounded age bracket variant.
type AgeGroup string

const (
	Child      AgeGroup = "CHILD"
	Teen       AgeGroup = "TEEN"
	YoungAdult AgeGroup = "YOUNG_ADULT"
	Adult      AgeGroup = "ADULT"
	Senior     AgeGroup = "SENIOR"
)

// Profile is the persistent demographic record keyed by user id.
// Email and phone are unique among non-deleted profiles.
type Profile struct {
	UserID           string
	RegistrationDate time.Time
	Gender           Gender   // optional, empty when unknown
	AgeGroup         AgeGroup // optional
	RealName         string   // optional
	Email            string   // optional
	PhoneNumber      string   // optional
	City             string   // optional
	SourceChannel    string   // optional
	IsDeleted        bool
	Version          int64
}

// Completeness weights. Fixed so the score is deterministic and
// monotonically non-decreasing as fields fill in.
const (
	weightRealName = 20
	weightEmail    = 20
	weightPhone    = 15
	weightCity     = 15
	weightGender   = 15
	weightAgeGroup = 15
)

// Completeness scores how filled-in the optional fields are, 0-100.
func (p *Profile) Completeness() int {
	score := 0
	if p.RealName != "" {
		score += weightRealName
	}
	if p.Email != "" {
		score += weightEmail
	}
	if p.PhoneNumber != "" {
		score += weightPhone
	}
	if p.City != "" {
		score += weightCity
	}
	if p.Gender != "" {
		score += weightGender
	}
	if p.AgeGroup != "" {
		score += weightAgeGroup
	}
	return score
}

// IsComplete reports whether every optional field is filled.
func (p *Profile) IsComplete() bool {
	return p.Completeness() == 100
}
