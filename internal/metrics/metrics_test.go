package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrements(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("requests_total", nil, "Total requests")
	registry.IncrementCounter("requests_total", nil, "Total requests")
	registry.AddToCounter("requests_total", 3, nil, "Total requests")

	all := registry.GetAllMetrics()
	counters := all["counters"].(map[string]*Metric)
	require.Contains(t, counters, "requests_total")
	assert.Equal(t, float64(5), counters["requests_total"].Value)
}

func TestCounterLabelsSeparateSeries(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("http_requests_total", map[string]string{"status": "200"}, "")
	registry.IncrementCounter("http_requests_total", map[string]string{"status": "500"}, "")
	registry.IncrementCounter("http_requests_total", map[string]string{"status": "200"}, "")

	counters := registry.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Equal(t, float64(2), counters["http_requests_total_status:200"].Value)
	assert.Equal(t, float64(1), counters["http_requests_total_status:500"].Value)
}

func TestMetricKeyOrdersLabels(t *testing.T) {
	a := metricKey("m", map[string]string{"b": "2", "a": "1"})
	b := metricKey("m", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "m_a:1_b:2", a)
}

func TestTimerAggregates(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 10; i++ {
		registry.RecordTimer("op_duration", time.Duration(i)*time.Millisecond, nil, "")
	}

	timers := registry.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	timer := timers["op_duration"]
	require.NotNil(t, timer)
	assert.Equal(t, int64(10), timer.Count)
	assert.Equal(t, float64(1), timer.Min)
	assert.Equal(t, float64(10), timer.Max)
	assert.InDelta(t, 5.5, timer.Average, 0.001)
	// Percentiles appear once there are ten samples.
	assert.Greater(t, timer.P95, 0.0)
	assert.GreaterOrEqual(t, timer.P99, timer.P95)
}

func TestGaugeOverwrites(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge("sessions_active", 4, nil, "")
	registry.SetGauge("sessions_active", 2, nil, "")

	gauges := registry.GetAllMetrics()["gauges"].(map[string]*Metric)
	assert.Equal(t, float64(2), gauges["sessions_active"].Value)
}

func TestGetAllMetricsShape(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("c", nil, "")

	all := registry.GetAllMetrics()
	assert.Contains(t, all, "counters")
	assert.Contains(t, all, "timers")
	assert.Contains(t, all, "gauges")
	assert.Contains(t, all, "uptime_ms")
	assert.Contains(t, all, "timestamp")
}
