// SPDX-License-Identifier: MIT

// Package store provides the hot-tier keyed store abstraction backing the
// profile engine: opaque values with per-key TTL, ordered-by-score sets,
// plain sets, atomic counters, server-side scripting and a TTL-bounded lease.
package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Member pairs an ordered-set member with its score.
type Member struct {
	ID    string
	Score float64
}

// Store is the Redis-backed implementation of the hot tier.
type Store struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

// Config holds Redis connection configuration.
type Config struct {
	Addr      string        // Redis server address (host:port)
	Password  string        // Redis password (optional)
	DB        int           // Redis database number
	OpTimeout time.Duration // per-operation read/write deadline (0 = 3s)
}

// New connects to Redis and verifies the connection with a bounded ping.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("event", "store.connected").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to hot tier")

	return &Store{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client redis.UniversalClient, logger zerolog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Set writes an opaque value with a TTL. A zero ttl persists the key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get reads an opaque value. The second return is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Delete removes a key; reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	return n > 0, err
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// TTL returns the remaining lifetime of a key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

// Expire extends or sets the lifetime of an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// ZAdd inserts or rescores a member in an ordered set.
func (s *Store) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRem removes members from an ordered set.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

// ZRangeByScore returns members with min ≤ score ≤ max in ascending order,
// up to limit entries (0 = unlimited).
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if limit > 0 {
		opt.Count = limit
	}
	return s.client.ZRangeByScore(ctx, key, opt).Result()
}

// ZRevRangeByScoreWithScores returns members with min ≤ score ≤ max in
// descending score order, honouring offset and count (0 count = unlimited).
func (s *Store) ZRevRangeByScoreWithScores(ctx context.Context, key string, min, max float64, offset, count int64) ([]Member, error) {
	opt := &redis.ZRangeBy{
		Min:    formatScore(min),
		Max:    formatScore(max),
		Offset: offset,
	}
	if count > 0 {
		opt.Count = count
	}
	zs, err := s.client.ZRevRangeByScoreWithScores(ctx, key, opt).Result()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(zs))
	for _, z := range zs {
		members = append(members, Member{ID: fmt.Sprint(z.Member), Score: z.Score})
	}
	return members, nil
}

// ZCount counts members with min ≤ score ≤ max.
func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

// ZRemRangeByScore removes all members with min ≤ score ≤ max.
func (s *Store) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
}

// ZScore returns the score of a member; false when the member is absent.
func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// SAdd inserts members into a plain set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

// SRem removes members from a plain set.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

// SMembers returns all members of a plain set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

// SCard returns the size of a plain set.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

// IncrBy adds delta to an integer key, creating it at zero first.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

// GetInt reads an integer key; absent keys read as zero.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// SetInt overwrites an integer key.
func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// RunScript executes a server-side script under a single atomic context.
func (s *Store) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, s.client, keys, args...).Result()
}

// AcquireLease atomically claims a TTL-bounded lease key. Returns false when
// the lease is already held.
func (s *Store) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

// ReleaseLease drops the lease regardless of holder.
func (s *Store) ReleaseLease(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Scan walks keys matching pattern with a non-blocking cursor.
func (s *Store) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	return s.client.Scan(ctx, cursor, pattern, count).Result()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
