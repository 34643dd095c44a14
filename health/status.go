// Package health reports the health of monitoring sources and of the host
// that runs them.
package health

import (
	"regexp"
	"time"

	"github.com/markheger/streamsx.metrics/component"
)

var (
	serviceURLRegex = regexp.MustCompile(`service:jmx:[^\s,]+`)
	netURLRegex     = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s,]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credentials?)\s*[:=]\s*[^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// sanitizeErrorMessage strips endpoint URLs and credentials from messages
// that are served over the health endpoint.
func sanitizeErrorMessage(msg string) string {
	msg = serviceURLRegex.ReplaceAllString(msg, "[URL]")
	msg = netURLRegex.ReplaceAllString(msg, "[URL]")
	return credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
}

// FromComponentHealth converts a component.HealthStatus. A component that
// is running but reports an error (for example a broken management
// connection awaiting reconnection) is degraded rather than unhealthy.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	var s Status
	switch {
	case ch.Healthy:
		s = NewHealthy(name, "Component healthy")
	case ch.Degraded:
		s = NewDegraded(name, sanitizeErrorMessage(ch.LastError))
	default:
		s = NewUnhealthy(name, sanitizeErrorMessage(ch.LastError))
	}
	s.Metrics = &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}
	return s
}
