package metric

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markheger/streamsx.metrics/errors"
)

func TestNewMetricsRegistry_CoreMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())

	r.Metrics.RecordsEmitted.WithLabelValues("src", "metric").Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Metrics.RecordsEmitted.WithLabelValues("src", "metric")))

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "streamsmon_records_emitted_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestCoreMetrics_NilRegistry(t *testing.T) {
	var r *MetricsRegistry
	assert.Nil(t, r.CoreMetrics())
}

func TestRegisterGauge_Duplicate(t *testing.T) {
	r := NewMetricsRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "isConnected", ConstLabels: prometheus.Labels{"source": "a"}})

	require.NoError(t, r.RegisterGauge("a", "isConnected", g))
	err := r.RegisterGauge("a", "isConnected", g)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "isConnected", ConstLabels: prometheus.Labels{"source": "b"}})
	assert.NoError(t, r.RegisterGauge("b", "isConnected", other), "distinct const labels do not collide")
}

func TestRegisterCounter_PrometheusConflict(t *testing.T) {
	r := NewMetricsRegistry()
	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "nJMXConnectionAttempts"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "nJMXConnectionAttempts"})

	require.NoError(t, r.RegisterCounter("a", "attempts", c1))
	err := r.RegisterCounter("b", "attempts", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "x_total"}, []string{"k"})
	require.NoError(t, r.RegisterCounterVec("svc", "x", vec))

	assert.True(t, r.Unregister("svc", "x"))
	assert.False(t, r.Unregister("svc", "x"))
	assert.NoError(t, r.RegisterCounterVec("svc", "x", vec))
}

func TestServer_Handler(t *testing.T) {
	r := NewMetricsRegistry()
	var unhealthy atomic.Bool
	s := NewServer("127.0.0.1:0", "", r, func() (bool, any) {
		ok := !unhealthy.Load()
		return ok, map[string]bool{"healthy": ok}
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unhealthy.Store(true)
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"healthy":false}`, string(body))
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics", NewMetricsRegistry(), nil)
	require.NoError(t, s.Start())
	assert.Contains(t, s.Address(), "/metrics")
	assert.Error(t, s.Start())

	resp, err := http.Get(s.Address())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, s.Address())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartWithoutRegistry(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", nil, nil)
	err := s.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
