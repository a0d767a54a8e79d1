// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/metrics"
	"github.com/pulsehub/pulsehub/internal/store"
)

// ReviewSet records raw tokens that could not be classified. Implementations
// deduplicate and survive process restarts.
type ReviewSet interface {
	Add(ctx context.Context, token string) error
	Members(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// defaultMappings seeds the classifier. Tokens are matched lower-cased.
var defaultMappings = map[string]Class{
	"iphone":      Mobile,
	"android":     Mobile,
	"mobile":      Mobile,
	"phone":       Mobile,
	"ipad":        Tablet,
	"tablet":      Tablet,
	"kindle":      Tablet,
	"windows":     Desktop,
	"macos":       Desktop,
	"mac":         Desktop,
	"linux":       Desktop,
	"desktop":     Desktop,
	"pc":          Desktop,
	"smarttv":     SmartTV,
	"smart-tv":    SmartTV,
	"roku":        SmartTV,
	"firetv":      SmartTV,
	"appletv":     SmartTV,
	"chromecast":  SmartTV,
	"watch":       Other,
	"wearable":    Other,
	"console":     Other,
	"playstation": Other,
	"xbox":        Other,
}

// Classifier maps raw device tokens to Classes. The mapping table is
// process-wide: lock-free reads, serialized writes via the underlying map.
type Classifier struct {
	mappings *xsync.Map[string, Class]
	review   ReviewSet
	logger   zerolog.Logger
}

// NewClassifier builds a classifier seeded with the built-in mappings.
func NewClassifier(review ReviewSet, logger zerolog.Logger) *Classifier {
	m := xsync.NewMap[string, Class]()
	for token, class := range defaultMappings {
		m.Store(token, class)
	}
	return &Classifier{mappings: m, review: review, logger: logger}
}

// Classify normalizes raw and resolves it against the mapping table.
// Blank input yields Unknown without touching the review set; an unmapped
// token is recorded best-effort and yields Unknown.
func (c *Classifier) Classify(ctx context.Context, raw string) Class {
	token := normalize(raw)
	if token == "" {
		return Unknown
	}
	if class, ok := c.mappings.Load(token); ok {
		return class
	}
	metrics.IncUnknownDevice()
	if c.review != nil {
		if err := c.review.Add(ctx, token); err != nil {
			c.logger.Warn().
				Err(err).
				Str("event", "device.review_append_failed").
				Str("token", token).
				Msg("failed to record unknown device token")
		}
	}
	return Unknown
}

// ClassifyBatch resolves a set of raw tokens in one pass. The result is
// keyed by the original raw token.
func (c *Classifier) ClassifyBatch(ctx context.Context, raws []string) map[string]Class {
	out := make(map[string]Class, len(raws))
	for _, raw := range raws {
		if _, done := out[raw]; done {
			continue
		}
		out[raw] = c.Classify(ctx, raw)
	}
	return out
}

// AddMapping registers a raw token → class mapping at runtime. The class
// must be a bounded variant other than Unknown.
func (c *Classifier) AddMapping(raw string, class Class) error {
	if !class.Valid() || class == Unknown {
		return &InvalidMappingError{Raw: raw, Class: string(class)}
	}
	token := normalize(raw)
	if token == "" {
		return &InvalidMappingError{Raw: raw, Class: string(class)}
	}
	c.mappings.Store(token, class)
	c.logger.Info().
		Str("event", "device.mapping_added").
		Str("token", token).
		Str("class", string(class)).
		Msg("device mapping registered")
	return nil
}

// IsKnown reports whether the normalized token has a mapping.
func (c *Classifier) IsKnown(raw string) bool {
	_, ok := c.mappings.Load(normalize(raw))
	return ok
}

// CurrentMappings snapshots the mapping table.
func (c *Classifier) CurrentMappings() map[string]Class {
	out := make(map[string]Class, c.mappings.Size())
	c.mappings.Range(func(token string, class Class) bool {
		out[token] = class
		return true
	})
	return out
}

// Unknowns returns the persisted review set.
func (c *Classifier) Unknowns(ctx context.Context) ([]string, error) {
	if c.review == nil {
		return nil, nil
	}
	return c.review.Members(ctx)
}

// ClearUnknowns empties the review set.
func (c *Classifier) ClearUnknowns(ctx context.Context) error {
	if c.review == nil {
		return nil
	}
	return c.review.Clear(ctx)
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// InvalidMappingError rejects AddMapping calls with a blank token or an
// out-of-domain class.
type InvalidMappingError struct {
	Raw   string
	Class string
}

func (e *InvalidMappingError) Error() string {
	return "invalid device mapping " + e.Raw + " -> " + e.Class
}

// RedisReviewSet persists unknown tokens in the hot tier's plain set.
type RedisReviewSet struct {
	store *store.Store
}

// NewRedisReviewSet builds the hot-tier backed review set.
func NewRedisReviewSet(s *store.Store) *RedisReviewSet {
	return &RedisReviewSet{store: s}
}

func (r *RedisReviewSet) Add(ctx context.Context, token string) error {
	return r.store.SAdd(ctx, store.UnknownDeviceKey, token)
}

func (r *RedisReviewSet) Members(ctx context.Context) ([]string, error) {
	return r.store.SMembers(ctx, store.UnknownDeviceKey)
}

func (r *RedisReviewSet) Clear(ctx context.Context) error {
	_, err := r.store.Delete(ctx, store.UnknownDeviceKey)
	return err
}
