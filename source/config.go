package source

import (
	"fmt"
	"time"

	"github.com/markheger/streamsx.metrics/appconfig"
	"github.com/markheger/streamsx.metrics/component"
	"github.com/markheger/streamsx.metrics/errors"
)

// Config holds the configuration of a source.
type Config struct {
	// Name labels the source's metrics. It defaults to jmx-<role>-source.
	Name string `json:"name,omitempty" schema:"type:string,description:Source name for metrics and logs,category:basic"`

	// Role is one of RoleNames.
	Role string `json:"role" schema:"type:enum,description:What the source emits,category:basic"`

	// Connection, credentials, filter, and application configuration
	// parameters.
	appconfig.Params

	// Subject receives the role's records (port 0).
	Subject string `json:"subject" schema:"type:string,description:NATS subject for records,category:basic"`
	// ConnectionSubject receives connection notifications (port 1). Empty
	// leaves the port unconnected.
	ConnectionSubject string `json:"connection_subject,omitempty" schema:"type:string,description:NATS subject for connection notifications,category:basic"`

	// ReconcileInterval is how often the application configuration is
	// checked for a changed filter document.
	ReconcileInterval time.Duration `json:"reconcile_interval,omitempty" schema:"type:duration,description:Filter drift check interval,category:advanced"`
	// PollInterval is how often metrics are read. Metrics role only.
	PollInterval time.Duration `json:"poll_interval,omitempty" schema:"type:duration,description:Metric poll interval,category:advanced"`
	// Reconnect re-establishes a broken connection with backoff instead of
	// staying in the error state.
	Reconnect bool `json:"reconnect" schema:"type:bool,description:Reconnect after a broken connection,category:advanced"`
	// FilterBaseDir resolves relative filter document paths.
	FilterBaseDir string `json:"filter_base_dir,omitempty" schema:"type:string,description:Directory for relative filter paths,category:advanced"`
}

// DefaultConfig returns the defaults applied before user configuration.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 30 * time.Second,
		PollInterval:      10 * time.Second,
		Reconnect:         true,
	}
}

// Validate checks the configuration without resolving it against the
// application configuration; required credentials may still come from
// there.
func (c Config) Validate() error {
	if _, err := ParseRole(c.Role); err != nil {
		return err
	}
	if c.ReconcileInterval < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: reconcile_interval must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "interval check")
	}
	if c.PollInterval < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: poll_interval must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "interval check")
	}
	if c.Subject != "" && c.Subject == c.ConnectionSubject {
		return errors.WrapInvalid(fmt.Errorf("%w: subject and connection_subject must differ", errors.ErrInvalidConfig),
			"Config", "Validate", "port check")
	}
	return nil
}

// withDefaults fills zero intervals.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = d.ReconcileInterval
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

var sourceSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"name": {Type: "string", Description: "Source name for metrics and logs", Category: "basic"},
		"role": {
			Type: "enum", Description: "What the source emits", Enum: RoleNames(), Category: "basic",
		},
		"connection_url": {
			Type: "string", Description: "Comma-separated service:jmx: URLs, tried last to first; empty discovers them", Category: "basic",
		},
		"user":     {Type: "string", Description: "Management user", Category: "basic"},
		"password": {Type: "string", Description: "Management password", Secret: true, Category: "basic"},
		"ssl_option": {
			Type: "string", Description: "Comma-separated TLS protocols, for example TLSv1.2", Category: "advanced",
		},
		"instance_id": {
			Type: "string", Description: "Instance to monitor; defaults to the host instance", Category: "basic",
		},
		"filter_document": {
			Type: "string", Description: "Filter document path or inline JSON", Category: "basic",
		},
		"application_configuration_name": {
			Type: "string", Description: "Application configuration overriding the parameters", Category: "advanced",
		},
		"subject": {Type: "string", Description: "NATS subject for records", Category: "basic"},
		"connection_subject": {
			Type: "string", Description: "NATS subject for connection notifications", Category: "basic",
		},
		"reconcile_interval": {
			Type: "duration", Description: "Filter drift check interval", Default: "30s", Category: "advanced",
		},
		"poll_interval": {
			Type: "duration", Description: "Metric poll interval", Default: "10s", Category: "advanced",
		},
		"reconnect": {
			Type: "bool", Description: "Reconnect after a broken connection", Default: true, Category: "advanced",
		},
		"filter_base_dir": {
			Type: "string", Description: "Directory for relative filter paths", Category: "advanced",
		},
	},
	Required: []string{"role"},
}
