package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Source states reported by SourceState.
const (
	StateStopped  = 0
	StateStarting = 1
	StateRunning  = 2
	StateStopping = 3
	StateFailed   = 4
)

// Metrics are the process-wide metrics shared by every source of a host.
// Per-source connection metrics live with the connection manager.
type Metrics struct {
	SourceState           *prometheus.GaugeVec
	RecordsEmitted        *prometheus.CounterVec
	EmitErrors            *prometheus.CounterVec
	NotificationsReceived *prometheus.CounterVec
	Reconciliations       *prometheus.CounterVec
	PollDuration          *prometheus.HistogramVec
	HandlerNodes          *prometheus.GaugeVec
}

// NewMetrics creates the core metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SourceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamsmon",
			Subsystem: "source",
			Name:      "state",
			Help:      "Source state (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
		}, []string{"source"}),

		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamsmon",
			Subsystem: "records",
			Name:      "emitted_total",
			Help:      "Records handed to output sinks",
		}, []string{"source", "kind"}),

		EmitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamsmon",
			Subsystem: "records",
			Name:      "errors_total",
			Help:      "Records an output sink rejected",
		}, []string{"source", "kind"}),

		NotificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamsmon",
			Subsystem: "jmx",
			Name:      "notifications_total",
			Help:      "Notifications received from the management endpoint",
		}, []string{"source", "type"}),

		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamsmon",
			Subsystem: "source",
			Name:      "reconciliations_total",
			Help:      "Filter drift checks by outcome (unchanged, rebuilt, error)",
		}, []string{"source", "result"}),

		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamsmon",
			Subsystem: "source",
			Name:      "metric_poll_seconds",
			Help:      "Duration of one metric poll over the handler tree",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		HandlerNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamsmon",
			Subsystem: "handler",
			Name:      "nodes",
			Help:      "Live handler nodes by level",
		}, []string{"source", "level"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SourceState,
		m.RecordsEmitted,
		m.EmitErrors,
		m.NotificationsReceived,
		m.Reconciliations,
		m.PollDuration,
		m.HandlerNodes,
	}
}
