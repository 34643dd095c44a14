// Package component provides the host infrastructure for monitoring sources:
// self-description, lifecycle management, dependency injection, and a
// registry of factories and running instances.
//
// # Registration Pattern
//
// Factories are registered explicitly rather than from init():
//
//	// In source/register.go
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "jmx-source",
//			Factory:     CreateSource,
//			Schema:      sourceSchema,
//			Type:        "input",
//			Protocol:    "jmx",
//			Domain:      "monitoring",
//			Description: "Streams instance monitoring source",
//			Version:     "1.0.0",
//		})
//	}
//
//	// In componentregistry/register.go
//	func RegisterAll(registry *component.Registry) error {
//		return source.Register(registry)
//	}
//
// The binary then creates instances by factory name:
//
//	comp, err := registry.CreateComponent("jobs", "jmx-source", rawConfig, deps)
//
// # Lifecycle
//
// Components that do I/O implement LifecycleComponent:
//
//	Initialize() error                  // validate and resolve, no I/O on the data plane
//	Start(ctx context.Context) error    // connect and begin emitting
//	Stop(timeout time.Duration) error   // orderly shutdown
//
// Factories never perform I/O. Start receives the context and the component
// never stores it beyond the goroutines it spawns.
//
// # Dependencies
//
// Dependencies carries the shared services a factory may use. Every field is
// optional: a nil NATS client disables NATS output, a nil metrics registry
// disables Prometheus metrics, and a nil logger falls back to slog.Default().
package component
