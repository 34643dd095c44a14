// Package source provides the monitoring source component: it connects to a
// management endpoint, mirrors the selected part of one instance as a
// handler tree, and emits records on its output ports.
//
// A source has exactly one role, fixed at construction:
//
//	job_status    JobStatus records on job creation and status change
//	log           Log records for application log notifications
//	metrics       Metric records read by a periodic poll
//	notification  Notification records for MBean lifecycle events
//
// Port 0 carries the role's records. Port 1 is optional and carries one
// ConnectionNotification per jmx.remote.connection.* event.
//
// # Lifecycle
//
// Initialize checks the environment, resolves the configuration from
// parameters and the application configuration, and compiles the filter.
// Every failure there is fatal. Start connects and builds the handler tree;
// failing to connect at startup is fatal as well. While running, the source
// reconciles its filter with the application configuration on a ticker,
// polls metrics when its role needs it, and tears the tree down when the
// connection breaks. With Reconnect enabled it then reconnects with backoff
// and rebuilds the tree.
//
// # Registration
//
//	registry := component.NewRegistry()
//	if err := source.Register(registry); err != nil {
//	    return err
//	}
//	comp, err := registry.CreateComponent("jobs", source.FactoryName, rawConfig, deps)
package source
