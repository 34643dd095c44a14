package source

import (
	"encoding/json"

	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/errors"
)

// FactoryName is the registry name of the source factory.
const FactoryName = "jmx-source"

// CreateSource is the component factory for sources.
func CreateSource(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.Wrap(err, "jmx-source-factory", "create", "secure config parsing")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "jmx-source-factory", "create", "config validation")
	}

	name := cfg.Name
	if name == "" {
		role, _ := ParseRole(cfg.Role)
		name = "jmx-" + role.String() + "-source"
	}
	return NewSource(name, cfg, deps)
}

// Register registers the source factory with the registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        FactoryName,
		Factory:     CreateSource,
		Schema:      sourceSchema,
		Type:        "input",
		Protocol:    "jmx",
		Domain:      "monitoring",
		Description: "Monitoring source for jobs, logs, metrics, and notifications of a streaming instance",
		Version:     "1.0.0",
	})
}
