package connection

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/metric"
)

// Metric names, as the runtime names them.
const (
	MetricIsConnected        = "isConnected"
	MetricConnectionAttempts = "nJMXConnectionAttempts"
	MetricBrokenConnections  = "nBrokenJMXConnections"
)

// Metrics are the connection metrics of one source. The Prometheus
// collectors carry a constant "source" label; atomic mirrors back Snapshot.
type Metrics struct {
	source      string
	isConnected prometheus.Gauge
	attempts    prometheus.Counter
	broken      prometheus.Counter

	connectedValue atomic.Int64
	attemptsValue  atomic.Int64
	brokenValue    atomic.Int64
}

// Snapshot is a point-in-time copy of the connection metrics.
type Snapshot struct {
	IsConnected int64 `json:"isConnected"`
	Attempts    int64 `json:"nJMXConnectionAttempts"`
	Broken      int64 `json:"nBrokenJMXConnections"`
}

// NewMetrics creates the metrics of source and registers them with
// registry. A nil registry leaves them unregistered but functional.
func NewMetrics(source string, registry *metric.MetricsRegistry) (*Metrics, error) {
	labels := prometheus.Labels{"source": source}
	m := &Metrics{
		source: source,
		isConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        MetricIsConnected,
			Help:        "1 while connected to the management endpoint, else 0",
			ConstLabels: labels,
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricConnectionAttempts,
			Help:        "Connection attempts to management endpoints",
			ConstLabels: labels,
		}),
		broken: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        MetricBrokenConnections,
			Help:        "Connections lost because of a failure",
			ConstLabels: labels,
		}),
	}
	if registry == nil {
		return m, nil
	}
	if err := registry.RegisterGauge(source, MetricIsConnected, m.isConnected); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register "+MetricIsConnected)
	}
	if err := registry.RegisterCounter(source, MetricConnectionAttempts, m.attempts); err != nil {
		registry.Unregister(source, MetricIsConnected)
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register "+MetricConnectionAttempts)
	}
	if err := registry.RegisterCounter(source, MetricBrokenConnections, m.broken); err != nil {
		registry.Unregister(source, MetricIsConnected)
		registry.Unregister(source, MetricConnectionAttempts)
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register "+MetricBrokenConnections)
	}
	return m, nil
}

// Unregister removes the metrics from registry.
func (m *Metrics) Unregister(registry *metric.MetricsRegistry) {
	if registry == nil {
		return
	}
	registry.Unregister(m.source, MetricIsConnected)
	registry.Unregister(m.source, MetricConnectionAttempts)
	registry.Unregister(m.source, MetricBrokenConnections)
}

func (m *Metrics) attempt() {
	m.attempts.Inc()
	m.attemptsValue.Add(1)
}

func (m *Metrics) setConnected(connected bool) {
	var v int64
	if connected {
		v = 1
	}
	m.isConnected.Set(float64(v))
	m.connectedValue.Store(v)
}

func (m *Metrics) brokenConnection() {
	m.broken.Inc()
	m.brokenValue.Add(1)
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		IsConnected: m.connectedValue.Load(),
		Attempts:    m.attemptsValue.Load(),
		Broken:      m.brokenValue.Load(),
	}
}
