package appconfig

import (
	"context"
	"log/slog"
	"sync"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
)

// Recognized application configuration keys.
const (
	KeyConnectionURL  = "connectionURL"
	KeyUser           = "user"
	KeyPassword       = "password"
	KeySSLOption      = "sslOption"
	KeyFilterDocument = "filterDocument"
	KeyInstanceID     = "instanceId"
)

// Params are the parameters a source was configured with. An empty string
// means the parameter was not given.
type Params struct {
	ConnectionURL                string `json:"connection_url,omitempty"`
	User                         string `json:"user,omitempty"`
	Password                     string `json:"password,omitempty"`
	SSLOption                    string `json:"ssl_option,omitempty"`
	InstanceID                   string `json:"instance_id,omitempty"`
	FilterDocument               string `json:"filter_document,omitempty"`
	ApplicationConfigurationName string `json:"application_configuration_name,omitempty"`
}

// HostInfo identifies the instance the source itself runs in.
type HostInfo struct {
	InstanceID string `json:"instance_id"`
	DomainID   string `json:"domain_id"`
	Standalone bool   `json:"standalone"`
}

// Resolved is the effective configuration of a source.
type Resolved struct {
	ConnectionURL string
	User          string
	Password      string
	SSLOption     string
	// InstanceID is the instance to monitor.
	InstanceID string
	// DefaultFilterInstance is the instance pattern of the default filter
	// document: the host instance, or ".*" in standalone mode.
	DefaultFilterInstance string
	// FilterDocument is the filter text: a path or inline JSON. Empty means
	// the default document.
	FilterDocument string
	// FilterFromAppConfig reports whether FilterDocument came from the
	// application configuration, in which case it is always inline JSON.
	FilterFromAppConfig bool
	// LocalInstance reports whether the monitored instance is the one the
	// source runs in, which allows endpoint discovery.
	LocalInstance bool
	DomainID      string
}

// LogValue keeps the password out of logs.
func (r Resolved) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("connection_url", r.ConnectionURL),
		slog.String("user", r.User),
		slog.String("ssl_option", r.SSLOption),
		slog.String("instance_id", r.InstanceID),
		slog.Bool("filter_from_app_config", r.FilterFromAppConfig),
		slog.Bool("local_instance", r.LocalInstance),
	)
}

// Resolver layers defaults, parameters, and the application configuration.
type Resolver struct {
	params Params
	host   HostInfo
	store  Store
	logger *slog.Logger

	mu           sync.Mutex
	activeFilter *string // filter document last accepted from the application configuration
}

// NewResolver creates a resolver. store may be nil when no application
// configuration service is available.
func NewResolver(params Params, host HostInfo, store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{params: params, host: host, store: store, logger: logger}
}

// Params returns the parameters the resolver was created with.
func (r *Resolver) Params() Params { return r.params }

// Host returns the host identity.
func (r *Resolver) Host() HostInfo { return r.host }

// appConfig returns the application configuration properties, or an empty
// map when none applies.
func (r *Resolver) appConfig(ctx context.Context) (map[string]string, error) {
	name := r.params.ApplicationConfigurationName
	if name == "" {
		return map[string]string{}, nil
	}
	if r.host.Standalone {
		return map[string]string{}, nil
	}
	if r.store == nil {
		r.logger.Warn("Application configuration requested but no store is available",
			"application_configuration", name)
		return map[string]string{}, nil
	}
	props, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "appConfig", "application configuration lookup")
	}
	return props, nil
}

// Resolve computes the effective configuration. Missing credentials and a
// missing instance id in standalone mode are fatal.
func (r *Resolver) Resolve(ctx context.Context) (Resolved, error) {
	if r.params.ApplicationConfigurationName != "" && r.host.Standalone {
		r.logger.Warn("Application configuration is supported in distributed mode only, ignoring it",
			"application_configuration", r.params.ApplicationConfigurationName)
	}
	props, err := r.appConfig(ctx)
	if err != nil {
		return Resolved{}, err
	}
	// A key present in the application configuration overrides the
	// parameter even when its value is empty.
	pick := func(key, param string) string {
		if v, ok := props[key]; ok {
			return v
		}
		return param
	}

	res := Resolved{
		ConnectionURL: pick(KeyConnectionURL, r.params.ConnectionURL),
		User:          pick(KeyUser, r.params.User),
		Password:      pick(KeyPassword, r.params.Password),
		SSLOption:     pick(KeySSLOption, r.params.SSLOption),
		InstanceID:    pick(KeyInstanceID, r.params.InstanceID),
		DomainID:      r.host.DomainID,
	}

	if res.User == "" {
		return Resolved{}, errors.WrapFatal(errors.MissingParameter(KeyUser), "Resolver", "Resolve", "credential resolution")
	}
	if res.Password == "" {
		return Resolved{}, errors.WrapFatal(errors.MissingParameter(KeyPassword), "Resolver", "Resolve", "credential resolution")
	}

	if res.InstanceID == "" {
		if r.host.Standalone {
			return Resolved{}, errors.WrapFatal(errors.MissingParameter(KeyInstanceID), "Resolver", "Resolve",
				"instance resolution in standalone mode")
		}
		res.InstanceID = r.host.InstanceID
		r.logger.Info("Monitoring the host instance", "instance_id", res.InstanceID)
	}
	res.LocalInstance = !r.host.Standalone && res.InstanceID == r.host.InstanceID
	res.DefaultFilterInstance = r.host.InstanceID
	if r.host.Standalone {
		res.DefaultFilterInstance = ""
	}

	if doc, ok := props[KeyFilterDocument]; ok {
		res.FilterDocument = doc
		res.FilterFromAppConfig = true
	} else {
		res.FilterDocument = r.params.FilterDocument
	}
	return res, nil
}

// CompileFilter compiles the filter a resolved configuration names,
// falling back to the default document. Relative paths resolve against
// baseDir. A filter taken from the application configuration is accepted
// for drift detection once it compiles.
func (r *Resolver) CompileFilter(res Resolved, baseDir string) (*filter.Filter, error) {
	switch {
	case res.FilterFromAppConfig:
		f, err := filter.ParseConfigValue(res.FilterDocument)
		if err != nil {
			return nil, err
		}
		r.Accept(res.FilterDocument)
		return f, nil
	case res.FilterDocument != "":
		return filter.Load(res.FilterDocument, baseDir)
	default:
		r.logger.Info("No filter document specified, using the default",
			"instance_pattern", res.DefaultFilterInstance)
		return filter.Default(res.DefaultFilterInstance), nil
	}
}

// Accept records doc as the active application configuration filter.
func (r *Resolver) Accept(doc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeFilter = &doc
}

// Active returns the filter document last accepted from the application
// configuration, if any.
func (r *Resolver) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeFilter == nil {
		return "", false
	}
	return *r.activeFilter, true
}

// Drifted reports whether the application configuration holds a filter
// document different from the active one. A document appearing when none
// was active counts as a change; a document disappearing does not.
func (r *Resolver) Drifted(ctx context.Context) (string, bool, error) {
	if r.params.ApplicationConfigurationName == "" || r.host.Standalone {
		return "", false, nil
	}
	props, err := r.appConfig(ctx)
	if err != nil {
		return "", false, err
	}
	doc, ok := props[KeyFilterDocument]
	if !ok {
		return "", false, nil
	}
	active, hasActive := r.Active()
	if hasActive && active == doc {
		return "", false, nil
	}
	return doc, true, nil
}
