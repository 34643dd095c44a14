// Package componentregistry registers the monitoring components with a
// component registry. Hosts call Register once at startup and then create
// instances by factory name from their configuration.
package componentregistry

import (
	"errors"

	"github.com/markheger/streamsx.metrics/component"
	pkgerrors "github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/source"
)

// Register registers every component factory of this module:
//   - jmx-source: the management endpoint source, in any of its four roles
//     (job_status, log, metrics, notification)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := source.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "JMX source component registration")
	}

	return nil
}
