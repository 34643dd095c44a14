package source

import (
	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/connection"
)

// Meta implements component.Discoverable.
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        "input",
		Description: s.spec.description,
		Version:     "1.0.0",
	}
}

// OutputPorts implements component.Discoverable.
func (s *Source) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        s.spec.name,
			Index:       0,
			Subject:     s.config.Subject,
			Description: s.spec.description,
		},
		{
			Name:        "connection",
			Index:       1,
			Subject:     s.config.ConnectionSubject,
			Optional:    true,
			Description: "jmx.remote.connection.* notifications",
		},
	}
}

// ConfigSchema implements component.Discoverable.
func (s *Source) ConfigSchema() component.ConfigSchema {
	return sourceSchema
}

// Health implements component.Discoverable. A running source whose
// connection is not up is degraded.
func (s *Source) Health() component.HealthStatus {
	s.mu.Lock()
	lastErr, errorCount, start := s.lastErr, s.errorCount, s.startTime
	state := s.state
	s.mu.Unlock()

	connected := s.manager != nil && s.manager.State() == connection.StateConnected
	running := s.running.Load()
	status := component.HealthStatus{
		Healthy:    running && connected && state == component.StateStarted,
		Degraded:   running && !connected,
		LastCheck:  s.clock.Now(),
		ErrorCount: errorCount,
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	if running && !start.IsZero() {
		status.Uptime = s.clock.Since(start)
	}
	return status
}

// DataFlow implements component.Discoverable.
func (s *Source) DataFlow() component.FlowMetrics {
	emitted, failed, last := s.records.Stats()
	nEmitted, nFailed, nLast := s.notices.Stats()
	emitted += nEmitted
	failed += nFailed
	if nLast.After(last) {
		last = nLast
	}
	flow := component.FlowMetrics{
		RecordsEmitted: emitted,
		EmitErrors:     failed,
		LastActivity:   last,
	}
	if total := emitted + failed; total > 0 {
		flow.ErrorRate = float64(failed) / float64(total)
	}
	return flow
}
