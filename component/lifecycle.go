package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent defines components that support full lifecycle management.
// Initialize validates and resolves configuration, Start begins I/O under the
// given context, and Stop shuts down within timeout.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent tracks a component and its lifecycle state for the host.
// The host owns Context and Cancel; the component only receives the context
// as the argument of Start.
type ManagedComponent struct {
	Name       string
	Component  Discoverable
	State      State
	Context    context.Context
	Cancel     context.CancelFunc
	StartOrder int
	LastError  error
}

// Transition records a lifecycle step, moving to StateFailed when err is
// non-nil.
func (mc *ManagedComponent) Transition(next State, err error) {
	if err != nil {
		mc.State = StateFailed
		mc.LastError = err
		return
	}
	mc.State = next
}

// IsLifecycleComponent checks if a component supports lifecycle management
func IsLifecycleComponent(comp Discoverable) bool {
	_, ok := comp.(LifecycleComponent)
	return ok
}

// AsLifecycleComponent safely casts a component to LifecycleComponent
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}
