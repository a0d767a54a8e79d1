// SPDX-License-Identifier: MIT

package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/static"
)

func snapshotFor(userID string, pageViews uint64, city string) *aggregate.Snapshot {
	now := time.Now().UTC()
	return &aggregate.Snapshot{
		UserID:        userID,
		ActivityLevel: aggregate.Active,
		ValueScore:    60,
		Dynamic: &profile.Profile{
			UserID:        userID,
			PageViewCount: pageViews,
			LastActiveAt:  now,
			MainDevice:    device.Mobile,
			Version:       1,
		},
		Static:     &static.Profile{UserID: userID, City: city},
		ComposedAt: now,
	}
}

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 10, "Lisbon")))

	doc, err := m.GetActive(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, int64(1), doc.DataVersion)
	assert.Equal(t, uint64(10), doc.PageViewCount)
	assert.Equal(t, "Lisbon", doc.City)
	assert.Equal(t, device.Mobile, doc.MainDevice)

	// a second upsert folds in and bumps the data version
	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 25, "Porto")))
	doc, err = m.GetActive(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.DataVersion)
	assert.Equal(t, uint64(25), doc.PageViewCount)
	assert.Equal(t, "Porto", doc.City)

	_, err = m.GetActive(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Error(t, m.UpsertDocument(ctx, &aggregate.Snapshot{}))
}

func TestMemoryStore_DeleteAndReactivate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 1, "")))
	require.NoError(t, m.MarkDeleted(ctx, "u-1"))

	_, err := m.GetActive(ctx, "u-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.MarkDeleted(ctx, "ghost"), ErrNotFound)

	// an upsert reactivates the deleted document
	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 2, "")))
	doc, err := m.GetActive(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, int64(3), doc.DataVersion)
}

func TestMemoryStore_Finders(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("a", 10, "Lisbon")))
	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("b", 900, "Lisbon")))
	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("c", 5, "Porto")))
	require.NoError(t, m.MarkDeleted(ctx, "c"))

	byCity, err := m.FindByCity(ctx, "Lisbon")
	require.NoError(t, err)
	assert.Len(t, byCity, 2)

	byDevice, err := m.FindByDeviceClass(ctx, device.Mobile)
	require.NoError(t, err)
	assert.Len(t, byDevice, 2, "deleted documents are invisible to finders")

	n, err := m.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = m.CountActiveSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	high, err := m.FindHighValueActive(ctx, 50, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, high, 2)
}

func TestMemoryStore_EnrichmentFields(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 1, "")))
	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-2", 1, "")))

	// downstream pipelines write the schemaless sections directly
	m.mu.Lock()
	m.docs["u-1"].ExtendedProperties["industry"] = "retail"
	m.docs["u-1"].ExtendedProperties["interests"] = []string{"cycling", "chess"}
	m.mu.Unlock()

	byIndustry, err := m.FindByIndustry(ctx, "retail")
	require.NoError(t, err)
	require.Len(t, byIndustry, 1)
	assert.Equal(t, "u-1", byIndustry[0].UserID)

	byInterest, err := m.FindByInterest(ctx, "chess")
	require.NoError(t, err)
	require.Len(t, byInterest, 1)

	byInterest, err = m.FindByInterest(ctx, "skydiving")
	require.NoError(t, err)
	assert.Empty(t, byInterest)
}

func TestMemoryStore_Tags(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 1, "")))
	require.NoError(t, m.AddTag(ctx, "u-1", "beta-cohort"))
	assert.ErrorIs(t, m.AddTag(ctx, "ghost", "x"), ErrNotFound)

	tagged, err := m.FindByTag(ctx, "beta-cohort")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "u-1", tagged[0].UserID)
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertDocument(ctx, snapshotFor("u-1", 1, "")))

	doc, err := m.GetActive(ctx, "u-1")
	require.NoError(t, err)
	doc.Tags["mutated"] = struct{}{}
	doc.ExtendedProperties["mutated"] = true

	fresh, err := m.GetActive(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Tags, "callers must never alias the stored document")
	assert.Empty(t, fresh.ExtendedProperties)
}
