package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetHotTier(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)

	c.Set("k", []byte("v"), 0)
	val, ver, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, uint64(1), ver)
}

func TestVersionIncrementsPerKey(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)

	c.Set("k", []byte("v1"), 0)
	c.Set("k", []byte("v2"), 0)
	_, ver, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, uint64(2), ver)

	// A different key starts its own version sequence.
	c.Set("other", []byte("x"), 0)
	_, ver, ok = c.Get("other")
	require.True(t, ok)
	assert.Equal(t, uint64(1), ver)
}

func TestWarmTierExpiresByTTL(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)

	c.Set("k", []byte("v"), 10*time.Millisecond)
	_, _, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	// The warm read promoted k into the hot tier, so invalidate first to
	// exercise expiry on a fresh warm entry.
	c.Invalidate("k")
	c.Set("k", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, _, ok = c.Get("k")
	assert.False(t, ok)
}

func TestGetFallsBackToStorage(t *testing.T) {
	calls := 0
	fallback := func(key string) ([]byte, bool) {
		calls++
		if key == "present" {
			return []byte("from-storage"), true
		}
		return nil, false
	}
	c := New(Config{NodeID: "n1"}, fallback, nil)

	val, _, ok := c.Get("present")
	require.True(t, ok)
	assert.Equal(t, []byte("from-storage"), val)
	assert.Equal(t, 1, calls)

	// The storage hit was promoted to hot; a second read must not touch
	// the fallback again.
	_, _, ok = c.Get("present")
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	_, _, ok = c.Get("absent")
	assert.False(t, ok)
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)

	c.Set("hot", []byte("v"), 0)
	c.Set("warm", []byte("v"), time.Minute)
	c.Invalidate("hot")
	c.Invalidate("warm")

	_, _, ok := c.Get("hot")
	assert.False(t, ok)
	_, _, ok = c.Get("warm")
	assert.False(t, ok)
}

func TestHotEvictionPrefersColdRarelyUsedEntries(t *testing.T) {
	c := New(Config{NodeID: "n1", HotMaxSize: 4, HotEvictionThreshold: 0.5}, nil, nil)

	c.Set("popular", []byte("v"), 0)
	for i := 0; i < 5; i++ {
		_, _, ok := c.Get("popular")
		require.True(t, ok)
	}
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("cold-%d", i), []byte("v"), 0)
	}

	assert.LessOrEqual(t, c.HotSize(), 2)
	_, _, ok := c.Get("popular")
	assert.True(t, ok, "frequently accessed entry should survive eviction")
}

func TestApplyRemoteRespectsVersionOrdering(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)

	c.Set("k", []byte("v"), 0)
	c.Set("k", []byte("v"), 0)
	c.Set("k", []byte("v"), 0) // local version now 3

	c.ApplyRemote(SyncMessage{Op: SyncInvalidate, Key: "k", Version: 2, NodeID: "n2"})
	_, _, ok := c.Get("k")
	assert.True(t, ok, "stale remote invalidation must be ignored")

	c.ApplyRemote(SyncMessage{Op: SyncInvalidate, Key: "k", Version: 4, NodeID: "n2"})
	_, _, ok = c.Get("k")
	assert.False(t, ok, "newer remote invalidation must drop the entry")
}

func TestHitRatio(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)
	assert.Equal(t, 0.0, c.HitRatio())

	c.Set("k", []byte("v"), 0)
	c.Get("k")
	c.Get("missing")
	assert.InDelta(t, 0.5, c.HitRatio(), 1e-9)
}

func TestClearEmptiesBothTiers(t *testing.T) {
	c := New(Config{NodeID: "n1"}, nil, nil)
	c.Set("a", []byte("v"), 0)
	c.Set("b", []byte("v"), time.Minute)

	c.Clear()
	assert.Equal(t, 0, c.HotSize())
	_, _, ok := c.Get("b")
	assert.False(t, ok)
}

func TestAutoTuneSkippedWhileFrozen(t *testing.T) {
	c := New(Config{NodeID: "n1", HotMaxSize: 100, AutoTuneTargetHitRate: 0.99}, nil, func() float64 { return 1.0 })
	c.SetFrozen(true)

	c.Set("k", []byte("v"), 0)
	c.Get("missing") // force hit ratio below target
	c.autoTune()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 100, c.cfg.HotMaxSize, "frozen cache must not retune capacity")
}

func TestAutoTuneRaisesCapacityUnderTarget(t *testing.T) {
	c := New(Config{NodeID: "n1", HotMaxSize: 100, AutoTuneTargetHitRate: 0.99}, nil, func() float64 { return 1.0 })

	c.Set("k", []byte("v"), 0)
	c.Get("missing")
	c.autoTune()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Greater(t, c.cfg.HotMaxSize, 100)
}
