// SPDX-License-Identifier: MIT

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCache_SetGet(t *testing.T) {
	c := New[string](0)
	defer c.Close()

	c.Set("k", "v", time.Minute)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = c.Get("absent")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	c.Set("k", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "expired entries are invisible even without the sweeper")
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Purge()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().CurrentSize)
}

func TestCache_Stats(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	c.Set("k", 1, time.Minute)
	c.Get("k")
	c.Get("k")
	c.Get("miss")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, 1, s.CurrentSize)
}

func TestCache_JanitorEvicts(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	defer c.Close()

	c.Set("k", 1, time.Millisecond)
	assert.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set("k", j, time.Minute)
				c.Get("k")
			}
		}()
	}
	wg.Wait()
}
