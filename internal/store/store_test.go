// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewWithClient(client, zerolog.Nop())
}

func TestNew_OpTimeout(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(Config{Addr: mr.Addr(), OpTimeout: 500 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	val, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)

	// zero falls back to the 3s default rather than an unbounded socket
	s2, err := New(Config{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	require.NoError(t, s2.Ping(ctx))
}

func TestStore_SetGetTTL(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), time.Second))

	val, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"a":1}`), val)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(2 * time.Second)

	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_GetMissing(t *testing.T) {
	_, s := setupStore(t)

	val, found, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestStore_Delete(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	removed, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_OrderedSet(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "rank", "u1", 10))
	require.NoError(t, s.ZAdd(ctx, "rank", "u2", 30))
	require.NoError(t, s.ZAdd(ctx, "rank", "u3", 20))

	// rescore is an overwrite, not an insert
	require.NoError(t, s.ZAdd(ctx, "rank", "u1", 40))

	members, err := s.ZRevRangeByScoreWithScores(ctx, "rank", 15, math.Inf(1), 0, 0)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "u1", members[0].ID)
	assert.Equal(t, float64(40), members[0].Score)
	assert.Equal(t, "u2", members[1].ID)
	assert.Equal(t, "u3", members[2].ID)

	n, err := s.ZCount(ctx, "rank", math.Inf(-1), 25)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	asc, err := s.ZRangeByScore(ctx, "rank", 20, 40, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2"}, asc)

	removed, err := s.ZRemRangeByScore(ctx, "rank", math.Inf(-1), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	score, ok, err := s.ZScore(ctx, "rank", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(40), score)

	_, ok, err = s.ZScore(ctx, "rank", "u3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_OrderedSetPagination(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		require.NoError(t, s.ZAdd(ctx, "rank", fmt.Sprintf("u%d", i), float64(i)))
	}

	page, err := s.ZRevRangeByScoreWithScores(ctx, "rank", 0, math.Inf(1), 3, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "u7", page[0].ID)
	assert.Equal(t, "u5", page[2].ID)
}

func TestStore_PlainSet(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "set", "a", "b", "a"))

	n, err := s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SRem(ctx, "set", "a"))
	members, err := s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestStore_Counter(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	n, err := s.GetInt(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.IncrBy(ctx, "counter", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.SetInt(ctx, "counter", 0))
	n, err = s.GetInt(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStore_Lease(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	acquired, err := s.AcquireLease(ctx, "lock", "holder-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = s.AcquireLease(ctx, "lock", "holder-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second holder must not acquire a held lease")

	require.NoError(t, s.ReleaseLease(ctx, "lock"))

	acquired, err = s.AcquireLease(ctx, "lock", "holder-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	// lease expires on its own
	mr.FastForward(2 * time.Minute)
	acquired, err = s.AcquireLease(ctx, "lock", "holder-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestStore_Scan(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("ph:profile:u%d", i), []byte("x"), 0))
	}
	require.NoError(t, s.Set(ctx, "other:key", []byte("x"), 0))

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.Scan(ctx, cursor, "ph:profile:*", 2)
		require.NoError(t, err)
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	assert.Len(t, keys, 5)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"loading", errors.New("LOADING Redis is loading the dataset in memory"), true},
		{"busy", errors.New("BUSY Redis is busy running a script"), true},
		{"overload", errors.New("server overload, try later"), true},
		{"wrongtype", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
