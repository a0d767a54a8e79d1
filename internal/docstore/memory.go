// SPDX-License-Identifier: MIT

package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/device"
)

// ErrNotFound means no active document exists for the user.
var ErrNotFound = errors.New("document not found")

// MemoryStore is an in-process Store used for wiring without a document
// database and as the test double. A production deployment substitutes a
// MongoDB-class implementation behind the same interface.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
	now  func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document), now: time.Now}
}

// UpsertDocument folds a snapshot into the user's document, bumping
// DataVersion and reactivating deleted documents.
func (m *MemoryStore) UpsertDocument(ctx context.Context, s *aggregate.Snapshot) error {
	if s == nil || s.UserID == "" {
		return errors.New("docstore: snapshot without user_id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[s.UserID]
	if !ok {
		doc = &Document{
			UserID:             s.UserID,
			ExtendedProperties: make(map[string]any),
			SocialMedia:        make(map[string]any),
			ComputedMetrics:    make(map[string]any),
			Tags:               make(map[string]struct{}),
		}
		m.docs[s.UserID] = doc
	}
	doc.Status = StatusActive
	doc.DataVersion++
	doc.ActivityLevel = s.ActivityLevel
	doc.ValueScore = s.ValueScore
	doc.HighValue = s.IsHighValueUser
	if s.Dynamic != nil {
		doc.PageViewCount = s.Dynamic.PageViewCount
		doc.LastActiveAt = s.Dynamic.LastActiveAt
		doc.MainDevice = s.Dynamic.MainDevice
	}
	if s.Static != nil {
		doc.City = s.Static.City
		doc.SourceChannel = s.Static.SourceChannel
	}
	doc.UpdatedAt = m.now().UTC()
	return nil
}

// GetActive returns the user's document when it is ACTIVE.
func (m *MemoryStore) GetActive(ctx context.Context, userID string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[userID]
	if !ok || doc.Status != StatusActive {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

// MarkDeleted transitions the document to DELETED.
func (m *MemoryStore) MarkDeleted(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return ErrNotFound
	}
	doc.Status = StatusDeleted
	doc.DataVersion++
	doc.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) FindByCity(ctx context.Context, city string) ([]*Document, error) {
	return m.findActive(func(d *Document) bool { return d.City == city })
}

func (m *MemoryStore) FindByDeviceClass(ctx context.Context, class device.Class) ([]*Document, error) {
	return m.findActive(func(d *Document) bool { return d.MainDevice == class })
}

func (m *MemoryStore) FindByInterest(ctx context.Context, interest string) ([]*Document, error) {
	return m.findActive(func(d *Document) bool {
		return hasListEntry(d.ExtendedProperties, "interests", interest)
	})
}

func (m *MemoryStore) FindByIndustry(ctx context.Context, industry string) ([]*Document, error) {
	return m.findActive(func(d *Document) bool {
		v, ok := d.ExtendedProperties["industry"]
		return ok && v == industry
	})
}

func (m *MemoryStore) FindHighValueActive(ctx context.Context, minScore int, since time.Time) ([]*Document, error) {
	return m.findActive(func(d *Document) bool {
		return d.ValueScore >= minScore && d.LastActiveAt.After(since)
	})
}

func (m *MemoryStore) CountActive(ctx context.Context) (int64, error) {
	docs, err := m.findActive(func(*Document) bool { return true })
	return int64(len(docs)), err
}

func (m *MemoryStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	docs, err := m.findActive(func(d *Document) bool { return d.LastActiveAt.After(since) })
	return int64(len(docs)), err
}

// AddTag attaches a tag to the user's document.
func (m *MemoryStore) AddTag(ctx context.Context, userID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return ErrNotFound
	}
	doc.Tags[tag] = struct{}{}
	doc.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) FindByTag(ctx context.Context, tag string) ([]*Document, error) {
	return m.findActive(func(d *Document) bool {
		_, ok := d.Tags[tag]
		return ok
	})
}

func (m *MemoryStore) findActive(match func(*Document) bool) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Document
	for _, doc := range m.docs {
		if doc.Status == StatusActive && match(doc) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func hasListEntry(props map[string]any, key, want string) bool {
	list, ok := props[key].([]string)
	if !ok {
		return false
	}
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func cloneDoc(d *Document) *Document {
	cp := *d
	cp.ExtendedProperties = cloneMap(d.ExtendedProperties)
	cp.SocialMedia = cloneMap(d.SocialMedia)
	cp.ComputedMetrics = cloneMap(d.ComputedMetrics)
	cp.Tags = make(map[string]struct{}, len(d.Tags))
	for t := range d.Tags {
		cp.Tags[t] = struct{}{}
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
var _ aggregate.DocumentSink = (*MemoryStore)(nil)
