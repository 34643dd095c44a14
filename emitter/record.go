package emitter

import (
	"time"
)

// Kind names a record type.
type Kind string

// Record kinds.
const (
	KindJobStatus    Kind = "jobStatus"
	KindLog          Kind = "log"
	KindMetric       Kind = "metric"
	KindNotification Kind = "notification"
	KindConnection   Kind = "connectionNotification"
)

// MetricKind is the kind of MBean a metric was read from.
type MetricKind string

// Metric kinds.
const (
	MetricKindPE         MetricKind = "pe"
	MetricKindOperator   MetricKind = "operator"
	MetricKindInputPort  MetricKind = "inputPort"
	MetricKindOutputPort MetricKind = "outputPort"
)

// Record is one output tuple.
type Record interface {
	Kind() Kind
}

// JobStatus reports a job's status, on creation and on every change.
type JobStatus struct {
	InstanceID string    `json:"instanceId"`
	JobID      string    `json:"jobId"`
	JobName    string    `json:"jobName"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"ts"`
}

// Kind implements Record.
func (JobStatus) Kind() Kind { return KindJobStatus }

// Log is one application log message.
type Log struct {
	InstanceID string    `json:"instanceId"`
	JobID      string    `json:"jobId"`
	PEID       string    `json:"peId"`
	Operator   string    `json:"operator"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"ts"`
}

// Kind implements Record.
func (Log) Kind() Kind { return KindLog }

// Metric is one metric value read during a poll.
type Metric struct {
	InstanceID string     `json:"instanceId"`
	JobID      string     `json:"jobId"`
	JobName    string     `json:"jobName"`
	PEID       string     `json:"peId"`
	Operator   string     `json:"operator,omitempty"`
	MetricKind MetricKind `json:"metricKind"`
	// Port is the port index of inputPort and outputPort metrics.
	Port       *int      `json:"port,omitempty"`
	MetricType string    `json:"metricType"`
	MetricName string    `json:"metricName"`
	Value      int64     `json:"value"`
	Timestamp  time.Time `json:"ts"`
}

// Kind implements Record.
func (Metric) Kind() Kind { return KindMetric }

// Notification is a lifecycle notification of a matching MBean.
type Notification struct {
	InstanceID string    `json:"instanceId"`
	JobID      string    `json:"jobId,omitempty"`
	JobName    string    `json:"jobName,omitempty"`
	PEID       string    `json:"peId,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	NotifyType string    `json:"notifyType"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

// Kind implements Record.
func (Notification) Kind() Kind { return KindNotification }

// ConnectionNotification reports a jmx.remote.connection.* event.
type ConnectionNotification struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Sequence  int64     `json:"sequence"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Kind implements Record.
func (ConnectionNotification) Kind() Kind { return KindConnection }

// stamp returns r with its timestamp set to ts.
func stamp(r Record, ts time.Time) Record {
	switch v := r.(type) {
	case JobStatus:
		v.Timestamp = ts
		return v
	case Log:
		v.Timestamp = ts
		return v
	case Metric:
		v.Timestamp = ts
		return v
	case Notification:
		v.Timestamp = ts
		return v
	case ConnectionNotification:
		v.Timestamp = ts
		return v
	default:
		return r
	}
}
