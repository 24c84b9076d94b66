package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("/infer", 200)
	r.RecordRequest("/infer", 200)
	r.RecordRequest("/infer", 503)
	r.RecordError("/infer")
	r.RecordRateLimitHit()
	r.RecordCircuitBreakerOpen()
	r.RecordLatency("/infer", 100*time.Millisecond)
	r.RecordLatency("/infer", 300*time.Millisecond)

	snap := r.Snapshot()

	require.EqualValues(t, 2, snap.RequestsTotal["/infer:2xx"])
	require.EqualValues(t, 1, snap.RequestsTotal["/infer:5xx"])
	require.EqualValues(t, 1, snap.ErrorsTotal["/infer"])
	require.EqualValues(t, 1, snap.RateLimitHitsTotal)
	require.EqualValues(t, 1, snap.CircuitBreakerOpensTotal)
	require.InDelta(t, 0.2, snap.LatencyAvgSeconds["/infer"], 0.001)
}

func TestRegistryIndependentInstances(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.RecordRequest("/infer", 200)

	require.Len(t, a.Snapshot().RequestsTotal, 1)
	require.Len(t, b.Snapshot().RequestsTotal, 0)
	require.NotSame(t, a.Registerer(), b.Registerer())
}
