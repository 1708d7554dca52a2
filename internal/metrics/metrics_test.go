package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter(QueryHits, nil, "cache hits")
	assert.Equal(t, 1.0, registry.CounterValue(QueryHits, nil))

	labels := map[string]string{"resource": "analytics"}
	registry.IncrementCounter(QueryHits, labels, "cache hits")
	registry.IncrementCounter(QueryHits, labels, "cache hits")

	assert.Equal(t, 1.0, registry.CounterValue(QueryHits, nil))
	assert.Equal(t, 2.0, registry.CounterValue(QueryHits, labels))

	snap := registry.GetAllMetrics()
	counter, ok := snap.Counters["query_cache_hits_total_resource:analytics"]
	require.True(t, ok)
	assert.Equal(t, Counter, counter.Type)
	assert.Equal(t, "analytics", counter.Labels["resource"])
}

func TestRegistry_AddToCounter(t *testing.T) {
	registry := NewRegistry()

	registry.AddToCounter("bytes_total", 5.5, nil, "")
	registry.AddToCounter("bytes_total", 2.5, nil, "")

	assert.Equal(t, 8.0, registry.CounterValue("bytes_total", nil))
	assert.Zero(t, registry.CounterValue("missing", nil))
}

func TestRegistry_LabelOrderDoesNotMatter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter(APIRequests, map[string]string{"method": "GET", "endpoint": "/contacts"}, "")
	registry.IncrementCounter(APIRequests, map[string]string{"endpoint": "/contacts", "method": "GET"}, "")

	snap := registry.GetAllMetrics()
	assert.Len(t, snap.Counters, 1)
	assert.Equal(t, 2.0, registry.CounterValue(APIRequests, map[string]string{"method": "GET", "endpoint": "/contacts"}))
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	registry.RecordTimer(QueryFetchTime, 100*time.Millisecond, nil, "")
	registry.RecordTimer(QueryFetchTime, 300*time.Millisecond, nil, "")

	snap := registry.GetAllMetrics()
	timer, ok := snap.Timers[QueryFetchTime]
	require.True(t, ok)
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 100, timer.Min, 0.001)
	assert.InDelta(t, 300, timer.Max, 0.001)
	assert.InDelta(t, 200, timer.Average, 0.001)
	assert.Nil(t, timer.samples)
}

func TestRegistry_RecordTimer_Percentiles(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 100; i++ {
		registry.RecordTimer("latency", time.Duration(101-i)*time.Millisecond, nil, "")
	}

	timer := registry.GetAllMetrics().Timers["latency"]
	assert.InDelta(t, 96, timer.P95, 0.001)
	assert.InDelta(t, 100, timer.P99, 0.001)
}

func TestRegistry_StartTimer(t *testing.T) {
	registry := NewRegistry()

	stop := registry.StartTimer(APIRequestLatency, map[string]string{"endpoint": "/health"}, "")
	elapsed := stop()

	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.Equal(t, int64(1), registry.TimerCount(APIRequestLatency, map[string]string{"endpoint": "/health"}))
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge(QueryEntries, 3, nil, "")
	registry.SetGauge(QueryEntries, 1, nil, "")

	assert.Equal(t, 1.0, registry.GaugeValue(QueryEntries, nil))
	assert.Equal(t, Gauge, registry.GetAllMetrics().Gauges[QueryEntries].Type)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	registry := NewRegistry()
	labels := map[string]string{"k": "v"}
	registry.IncrementCounter("c", labels, "")

	labels["k"] = "changed"
	snap := registry.GetAllMetrics()
	registry.IncrementCounter("c", map[string]string{"k": "v"}, "")

	assert.Equal(t, 1.0, snap.Counters["c_k:v"].Value)
	assert.Equal(t, "v", snap.Counters["c_k:v"].Labels["k"])
}

func TestRegistry_Reset(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("c", nil, "")
	registry.Reset()

	snap := registry.GetAllMetrics()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Timers)
	assert.Empty(t, snap.Gauges)
}

func TestRegistry_Concurrent(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.IncrementCounter(QueryMisses, nil, "")
			registry.RecordTimer(QueryFetchTime, time.Millisecond, nil, "")
			_ = registry.GetAllMetrics()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, registry.CounterValue(QueryMisses, nil))
	assert.Equal(t, int64(50), registry.TimerCount(QueryFetchTime, nil))
}

func TestGlobalRegistry(t *testing.T) {
	before := GetRegistry().CounterValue("global_test_total", nil)
	IncrementCounter("global_test_total", nil, "")
	AddToCounter("global_test_total", 2, nil, "")

	assert.Equal(t, before+3, GetRegistry().CounterValue("global_test_total", nil))
	_, ok := GetAllMetrics().Counters["global_test_total"]
	assert.True(t, ok)
}
