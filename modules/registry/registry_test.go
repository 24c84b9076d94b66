package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		EvictionTimeout:   1 * time.Second,
		HeartbeatInterval: 500 * time.Millisecond,
	}
}

func TestRegisterIsIdempotentAndResetsState(t *testing.T) {
	r := New(testConfig())

	require.NoError(t, r.Register("a", "http://a", 100))
	require.True(t, r.IncrementLoad("a"))

	require.NoError(t, r.Register("a", "http://a-v2", 50))

	node, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, "http://a-v2", node.URL)
	require.Equal(t, 50, node.MaxCapacity)
	require.Equal(t, 0, node.CurrentLoad)
	require.True(t, node.Healthy)
}

func TestRegisterRejectsNonPositiveCapacity(t *testing.T) {
	r := New(testConfig())
	require.Error(t, r.Register("a", "http://a", 0))
	require.Error(t, r.Register("a", "http://a", -1))
}

func TestHeartbeatUnknownNode(t *testing.T) {
	r := New(testConfig())
	require.False(t, r.Heartbeat("missing"))
}

func TestIncrementDecrementLoad(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("a", "http://a", 10))

	require.True(t, r.IncrementLoad("a"))
	require.True(t, r.IncrementLoad("a"))
	node, _ := r.Get("a")
	require.Equal(t, 2, node.CurrentLoad)

	r.DecrementLoad("a")
	node, _ = r.Get("a")
	require.Equal(t, 1, node.CurrentLoad)

	// saturates at 0
	r.DecrementLoad("a")
	r.DecrementLoad("a")
	node, _ = r.Get("a")
	require.Equal(t, 0, node.CurrentLoad)
}

func TestIncrementLoadRejectsUnhealthyOrUnknown(t *testing.T) {
	r := New(testConfig())
	require.False(t, r.IncrementLoad("missing"))

	require.NoError(t, r.Register("a", "http://a", 10))
	r.mu.Lock()
	r.nodes["a"].Healthy = false
	r.mu.Unlock()
	require.False(t, r.IncrementLoad("a"))
}

func TestHealthyNodesExcludesStaleAndUnhealthy(t *testing.T) {
	r := New(testConfig())
	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	require.NoError(t, r.Register("a", "http://a", 10))
	require.NoError(t, r.Register("b", "http://b", 10))

	r.mu.Lock()
	r.nodes["b"].Healthy = false
	r.mu.Unlock()

	healthy := r.HealthyNodes()
	require.Len(t, healthy, 1)
	require.Equal(t, "a", healthy[0].NodeID)

	// advance time past eviction timeout without a heartbeat
	fakeNow = fakeNow.Add(2 * time.Second)
	require.Empty(t, r.HealthyNodes())
}

func TestEvictStaleMarksThenDeletes(t *testing.T) {
	r := New(testConfig())
	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	require.NoError(t, r.Register("a", "http://a", 10))

	fakeNow = fakeNow.Add(1200 * time.Millisecond)
	r.evictStale()

	node, ok := r.Get("a")
	require.True(t, ok)
	require.False(t, node.Healthy)

	fakeNow = fakeNow.Add(2 * time.Second)
	r.evictStale()

	_, ok = r.Get("a")
	require.False(t, ok)
}
