package jmx

import (
	"strings"
	"time"
)

// Notification types emitted by the runtime's MBeans.
const (
	NotifyJobAdded            = Domain + ".job.added"
	NotifyJobRemoved          = Domain + ".job.removed"
	NotifyJobStatusChanged    = Domain + ".job.status.changed"
	NotifyPEAdded             = Domain + ".pe.added"
	NotifyPERemoved           = Domain + ".pe.removed"
	NotifyOperatorAdded       = Domain + ".operator.added"
	NotifyOperatorRemoved     = Domain + ".operator.removed"
	NotifyInputPortAdded      = Domain + ".inputport.added"
	NotifyInputPortRemoved    = Domain + ".inputport.removed"
	NotifyOutputPortAdded     = Domain + ".outputport.added"
	NotifyOutputPortRemoved   = Domain + ".outputport.removed"
	NotifyMetricAdded         = Domain + ".metric.added"
	NotifyMetricRemoved       = Domain + ".metric.removed"
	NotifyLogPrefix           = Domain + ".log.application."
	NotifyConnectionOpened    = "jmx.remote.connection.opened"
	NotifyConnectionClosed    = "jmx.remote.connection.closed"
	NotifyConnectionFailed    = "jmx.remote.connection.failed"
	NotifyConnectionNotifLost = "jmx.remote.connection.notifs.lost"
)

// Keys carried in Notification.UserData.
const (
	UserDataStatus   = "status"
	UserDataJobID    = "jobId"
	UserDataPEID     = "peId"
	UserDataOperator = "operator"
	UserDataMetric   = "metric"
)

// Notification is one event pushed by the management endpoint.
type Notification struct {
	Type      string            `json:"type"`
	Source    ObjectName        `json:"source"`
	Child     ObjectName        `json:"child,omitempty"`
	Sequence  int64             `json:"sequence"`
	TimeStamp time.Time         `json:"timeStamp"`
	Message   string            `json:"message,omitempty"`
	UserData  map[string]string `json:"userData,omitempty"`
}

// Listener receives notifications. It is called on a transport goroutine.
type Listener func(Notification)

// ListenerID identifies a registered listener for removal.
type ListenerID string

// ChildNotifications returns the added and removed notification types an
// MBean emits for children of childType.
func ChildNotifications(childType string) (added, removed string) {
	switch childType {
	case TypeJob:
		return NotifyJobAdded, NotifyJobRemoved
	case TypePE:
		return NotifyPEAdded, NotifyPERemoved
	case TypeOperator:
		return NotifyOperatorAdded, NotifyOperatorRemoved
	case TypeInputPort:
		return NotifyInputPortAdded, NotifyInputPortRemoved
	case TypeOutputPort:
		return NotifyOutputPortAdded, NotifyOutputPortRemoved
	}
	return "", ""
}

// LogLevel returns the level of a log notification, or "" for other types.
func LogLevel(notificationType string) string {
	level, ok := strings.CutPrefix(notificationType, NotifyLogPrefix)
	if !ok {
		return ""
	}
	return level
}

// IsConnectionNotification reports whether t is one of the four
// jmx.remote.connection.* types.
func IsConnectionNotification(t string) bool {
	switch t {
	case NotifyConnectionOpened, NotifyConnectionClosed, NotifyConnectionFailed, NotifyConnectionNotifLost:
		return true
	}
	return false
}
