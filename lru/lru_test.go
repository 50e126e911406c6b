package lru

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertFindBasic(t *testing.T) {
	c := New[string, int](0, 0)
	c.Insert("a", 1)
	c.Insert("b", 2)
	v, ok := c.Find("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestAtNotFound(t *testing.T) {
	c := New[string, int](0, 0)
	_, err := c.At("missing")
	require.Error(t, err)
}

// TestSizeBound is property P10: size() <= max_size after every operation.
func TestSizeBound(t *testing.T) {
	c := New[int, int](3, 0)
	for i := 0; i < 10; i++ {
		c.Insert(i, i)
		assert.LessOrEqual(t, c.Size(), 3)
	}
	// most-recently inserted entries survive
	_, ok := c.Find(9)
	assert.True(t, ok)
	_, ok = c.Find(0)
	assert.False(t, ok)
}

// TestAging is property P9: an entry inserted at t is not returned by Find
// after t+T.
func TestAging(t *testing.T) {
	c := New[string, int](0, 20*time.Millisecond)
	c.Insert("a", 1)
	_, ok := c.Find("a")
	assert.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	_, ok = c.Find("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](2, 0)
	c.Insert(1, 1)
	c.Insert(2, 2)
	c.Find(1) // promote 1 so 2 is least-recent
	c.Insert(3, 3)
	_, ok := c.Find(2)
	assert.False(t, ok, "2 should have been evicted")
	_, ok = c.Find(1)
	assert.True(t, ok)
	_, ok = c.Find(3)
	assert.True(t, ok)
}

func TestCustomPolicyRenewSkipsEviction(t *testing.T) {
	c := New[int, int](2, 0)
	c.Insert(1, 1)
	c.Insert(2, 2)
	// custom policy: never evict key 1. Registered before the overflowing
	// Insert so its own automatic trim (not just a later explicit Trim
	// call) honors it.
	pol := func(k, _ int, _ time.Duration) Action {
		if k == 1 {
			return RENEW
		}
		return EVICT
	}
	c.SetPolicy(pol)
	c.Insert(3, 3)
	_, ok := c.Find(1)
	assert.True(t, ok, "key 1 protected by custom policy should survive")
}

func TestCustomPolicyStopAbortsScan(t *testing.T) {
	c := New[int, int](1, 0)
	// LEAVE keeps both entries through Insert's own trim, so the cache is
	// over its bound when Trim runs with the STOP policy below.
	c.SetPolicy(func(_, _ int, _ time.Duration) Action { return LEAVE })
	c.Insert(1, 1)
	c.Insert(2, 2)
	calls := 0
	pol := func(_, _ int, _ time.Duration) Action {
		calls++
		return STOP
	}
	c.Trim(pol)
	assert.Equal(t, 1, calls)
}

func TestOnEvictCallback(t *testing.T) {
	c := New[int, int](1, 0)
	var evicted []int
	c.OnEvict(func(k, _ int) { evicted = append(evicted, k) })
	c.Insert(1, 1)
	c.Insert(2, 2)
	assert.Equal(t, []int{1}, evicted)
}

func TestEmplace(t *testing.T) {
	c := New[string, int](0, 0)
	calls := 0
	build := func() int { calls++; return 42 }
	v, existed := c.Emplace("a", build)
	assert.Equal(t, 42, v)
	assert.False(t, existed)
	v, existed = c.Emplace("a", build)
	assert.Equal(t, 42, v)
	assert.True(t, existed)
	assert.Equal(t, 1, calls)
}
