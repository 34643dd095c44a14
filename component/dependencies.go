package component

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/markheger/streamsx.metrics/appconfig"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/metric"
	"github.com/markheger/streamsx.metrics/natsclient"
)

// Dependencies provides all external dependencies needed by components.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for record output (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Connector       *jmx.Connector          // Management endpoint dialers by protocol
	AppConfig       appconfig.Store         // Application configuration lookup (can be nil)
	Host            appconfig.HostInfo      // Identity of the hosting instance
	Clock           clock.Clock             // Time source (can be nil, defaults to the wall clock)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetClock returns the configured clock or the wall clock.
func (d *Dependencies) GetClock() clock.Clock {
	if d.Clock != nil {
		return d.Clock
	}
	return clock.New()
}
