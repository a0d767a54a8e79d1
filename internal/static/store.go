// SPDX-License-Identifier: MIT

package static

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	ErrNotFound        = errors.New("static profile not found")
	ErrVersionConflict = errors.New("static profile version conflict")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrDuplicatePhone  = errors.New("phone number already registered")
)

// Store is the static-profile collaborator contract consumed by the
// aggregator. The engine references it by user id only and never owns it.
type Store interface {
	GetByID(ctx context.Context, userID string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByPhone(ctx context.Context, phone string) (*Profile, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
	ExistsPhone(ctx context.Context, phone string) (bool, error)

	Create(ctx context.Context, p *Profile) error
	// Update rewrites the record iff the stored version matches p.Version,
	// then bumps it.
	Update(ctx context.Context, p *Profile) error
	// PartialUpdate patches the named fields without a version check.
	PartialUpdate(ctx context.Context, userID string, fields map[string]any) error
	SoftDelete(ctx context.Context, userID string) error
	Restore(ctx context.Context, userID string) error

	ListBySourceChannel(ctx context.Context, channel string) ([]*Profile, error)
	ListByCity(ctx context.Context, city string) ([]*Profile, error)
	ListByGender(ctx context.Context, gender Gender) ([]*Profile, error)
	ListNewUsers(ctx context.Context, days int) ([]*Profile, error)
	ListCompleteProfiles(ctx context.Context) ([]*Profile, error)
	CountByRegistrationDateAfter(ctx context.Context, after time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
