package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherByName(t *testing.T, r *Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestRegisterAndGather(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mavrelay",
		Subsystem: "test",
		Name:      "frames_total",
		Help:      "test counter",
	})
	require.NoError(t, r.RegisterCounter("test", "frames", counter))
	counter.Add(3)

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mavrelay",
		Subsystem: "test",
		Name:      "queue_depth",
		Help:      "test gauge",
	})
	require.NoError(t, r.RegisterGauge("test", "queue_depth", gauge))
	gauge.Set(7)

	byName := gatherByName(t, r)

	frames, ok := byName["mavrelay_test_frames_total"]
	require.True(t, ok)
	assert.Equal(t, float64(3), frames.GetMetric()[0].GetCounter().GetValue())

	depth, ok := byName["mavrelay_test_queue_depth"]
	require.True(t, ok)
	assert.Equal(t, float64(7), depth.GetMetric()[0].GetGauge().GetValue())

	// Runtime collectors come pre-registered
	_, ok = byName["go_goroutines"]
	assert.True(t, ok)
}

func TestRegisterCounterVecLabels(t *testing.T) {
	r := NewRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mavrelay",
		Subsystem: "router",
		Name:      "frames_dropped_total",
		Help:      "test vec",
	}, []string{"sink"})
	require.NoError(t, r.RegisterCounterVec("router", "frames_dropped", vec))

	vec.WithLabelValues("archive").Add(2)
	vec.WithLabelValues("live").Inc()

	byName := gatherByName(t, r)
	family, ok := byName["mavrelay_router_frames_dropped_total"]
	require.True(t, ok)
	require.Len(t, family.GetMetric(), 2)

	values := make(map[string]float64)
	for _, m := range family.GetMetric() {
		require.Len(t, m.GetLabel(), 1)
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), values["archive"])
	assert.Equal(t, float64(1), values["live"])
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total"})
	require.NoError(t, r.RegisterCounter("a", "dup", counter))

	err := r.RegisterCounter("a", "dup", counter)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total"})
	require.NoError(t, r.RegisterCounter("a", "gone", counter))

	assert.True(t, r.Unregister("a", "gone"))
	assert.False(t, r.Unregister("a", "gone"))

	// Re-registration after unregister works
	assert.NoError(t, r.RegisterCounter("a", "gone", counter))
}

func TestScrapeEndpoint(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mavrelay",
		Subsystem: "ingress",
		Name:      "packets_received_total",
		Help:      "test counter",
	})
	require.NoError(t, r.RegisterCounter("ingress", "packets_received", counter))
	counter.Inc()

	handler := promhttp.HandlerFor(r.PrometheusRegistry(), promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mavrelay_ingress_packets_received_total 1")
}
