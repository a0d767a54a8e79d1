// SPDX-License-Identifier: MIT

// Package docstore defines the cold-tier document collaborator: the durable,
// schemaless per-user document the aggregator materializes into. The core
// only ever writes here; reads belong to downstream analytics.
package docstore

import (
	"context"
	"time"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/device"
)

// DocumentStatus is the lifecycle state of a cold-tier document.
type DocumentStatus string

const (
	StatusActive   DocumentStatus = "ACTIVE"
	StatusArchived DocumentStatus = "ARCHIVED"
	StatusDeleted  DocumentStatus = "DELETED"
)

// Document is the durable per-user aggregate. The dynamic maps carry ad-hoc
// enrichment written by downstream pipelines.
type Document struct {
	UserID        string
	Status        DocumentStatus
	DataVersion   int64
	ActivityLevel aggregate.ActivityLevel
	ValueScore    int
	HighValue     bool
	PageViewCount uint64
	LastActiveAt  time.Time
	MainDevice    device.Class
	City          string
	SourceChannel string

	ExtendedProperties map[string]any
	SocialMedia        map[string]any
	ComputedMetrics    map[string]any
	Tags               map[string]struct{}

	UpdatedAt time.Time
}

// Store is the cold-tier contract. Upserts are idempotent and bump
// DataVersion; finders only see ACTIVE documents unless stated otherwise.
type Store interface {
	UpsertDocument(ctx context.Context, s *aggregate.Snapshot) error
	GetActive(ctx context.Context, userID string) (*Document, error)
	MarkDeleted(ctx context.Context, userID string) error

	FindByCity(ctx context.Context, city string) ([]*Document, error)
	FindByDeviceClass(ctx context.Context, class device.Class) ([]*Document, error)
	FindByInterest(ctx context.Context, interest string) ([]*Document, error)
	FindByIndustry(ctx context.Context, industry string) ([]*Document, error)
	FindHighValueActive(ctx context.Context, minScore int, since time.Time) ([]*Document, error)
	CountActive(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)

	AddTag(ctx context.Context, userID, tag string) error
	FindByTag(ctx context.Context, tag string) ([]*Document, error)
}
